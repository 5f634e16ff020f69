package guard

import (
	"testing"
	"time"

	"knowshare/internal/session"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func employee() *session.Session {
	return &session.Session{Token: "t", Role: session.RoleEmployee, TokenExpiry: now.Add(time.Hour)}
}

func admin() *session.Session {
	return &session.Session{Token: "t", Role: session.RoleAdmin}
}

func TestDecide(t *testing.T) {
	expired := employee()
	expired.TokenExpiry = now.Add(-time.Second)

	tests := []struct {
		name  string
		sess  *session.Session
		route Route
		want  Outcome
	}{
		{"public anonymous", nil, Route{Access: Access{Kind: Public}}, Allow},
		{"authenticated anonymous", nil, Route{Access: Access{Kind: Authenticated}}, RedirectLogin},
		{"authenticated no token", &session.Session{Role: session.RoleEmployee}, Route{Access: Access{Kind: Authenticated}}, RedirectLogin},
		{"authenticated expired token", expired, Route{Access: Access{Kind: Authenticated}}, RedirectLogin},
		{"authenticated ok", employee(), Route{Access: Access{Kind: Authenticated}}, Allow},
		{"guest anonymous", nil, Route{Access: Access{Kind: GuestOnly}}, Allow},
		{"guest authenticated", employee(), Route{Access: Access{Kind: GuestOnly}}, RedirectHome},
		{"guest expired token", expired, Route{Access: Access{Kind: GuestOnly}}, Allow},
		{"admin route employee", employee(), Route{Access: Roles(session.RoleAdmin)}, RedirectUnauthorized},
		{"admin route admin", admin(), Route{Access: Roles(session.RoleAdmin)}, Allow},
		{"admin route anonymous", nil, Route{Access: Roles(session.RoleAdmin)}, RedirectLogin},
		{"employee route admin", admin(), Route{Access: NotRoles(session.RoleAdmin)}, RedirectUnauthorized},
		{"employee route employee", employee(), Route{Access: NotRoles(session.RoleAdmin)}, Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.sess, tt.route, "/documents?page=2", now)
			if got.Outcome != tt.want {
				t.Errorf("Decide() = %s, want %s", got.Outcome, tt.want)
			}
		})
	}
}

func TestDecide_ReturnURL(t *testing.T) {
	d := Decide(nil, Route{Access: Access{Kind: Authenticated}}, "/documents/5?tab=comments", now)
	if d.ReturnURL != "/documents/5?tab=comments" {
		t.Errorf("ReturnURL = %q", d.ReturnURL)
	}
	if got := d.Location(); got != "/auth/login?returnUrl=%2Fdocuments%2F5%3Ftab%3Dcomments" {
		t.Errorf("Location() = %q", got)
	}
}

func TestDecision_Location(t *testing.T) {
	if got := (Decision{Outcome: RedirectHome}).Location(); got != "/" {
		t.Errorf("home location = %q", got)
	}
	if got := (Decision{Outcome: RedirectUnauthorized}).Location(); got != "/unauthorized" {
		t.Errorf("unauthorized location = %q", got)
	}
	if got := (Decision{Outcome: RedirectLogin}).Location(); got != "/auth/login" {
		t.Errorf("login location = %q", got)
	}
}

func TestPageTable(t *testing.T) {
	table := PageTable()
	tests := map[string]Kind{
		"/auth/login":     GuestOnly,
		"/auth/register":  GuestOnly,
		"/admin":          RolesOnly,
		"/admin/users":    RolesOnly,
		"/documents/12":   NotRolesOnly,
		"/search":         NotRolesOnly,
		"/favorites":      NotRolesOnly,
		"/notifications":  NotRolesOnly,
		"/profile":        NotRolesOnly,
		"/unauthorized":   Public,
		"/":               Public,
		"/main.js":        Public,
		"/administrator":  Public,
		"/documentsearch": Public,
	}
	for path, want := range tests {
		if got := table.Match(path).Access.Kind; got != want {
			t.Errorf("Match(%q) kind = %d, want %d", path, got, want)
		}
	}
}

func TestAPITable(t *testing.T) {
	table := APITable()
	if got := table.Match("/api/admin/users").Access.Kind; got != RolesOnly {
		t.Errorf("admin api kind = %d", got)
	}
	if got := table.Match("/api/documents").Access.Kind; got != Authenticated {
		t.Errorf("documents api kind = %d", got)
	}
	if got := table.Match("/health").Access.Kind; got != Public {
		t.Errorf("health kind = %d", got)
	}
}
