package guard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"knowshare/internal/session"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fixedSession(sess *session.Session) SessionFunc {
	return func(*gin.Context) *session.Session { return sess }
}

func TestPages(t *testing.T) {
	tests := []struct {
		name     string
		sess     *session.Session
		path     string
		wantCode int
		wantLoc  string
	}{
		{"anonymous protected page", nil, "/documents?page=2", http.StatusFound, "/auth/login?returnUrl=%2Fdocuments%3Fpage%3D2"},
		{"employee on admin", &session.Session{Token: "t", Role: session.RoleEmployee}, "/admin", http.StatusFound, "/unauthorized"},
		{"logged in on login", &session.Session{Token: "t", Role: session.RoleEmployee}, "/auth/login", http.StatusFound, "/"},
		{"admin on admin", &session.Session{Token: "t", Role: session.RoleAdmin}, "/admin/users", http.StatusOK, ""},
		{"anonymous home", nil, "/", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Pages(PageTable(), fixedSession(tt.sess)))
			r.NoRoute(func(c *gin.Context) { c.String(http.StatusOK, "page") })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if loc := w.Header().Get("Location"); loc != tt.wantLoc {
				t.Errorf("Location = %q, want %q", loc, tt.wantLoc)
			}
		})
	}
}

func TestAPI(t *testing.T) {
	tests := []struct {
		name     string
		sess     *session.Session
		path     string
		wantCode int
		wantBody string
	}{
		{"anonymous", nil, "/api/documents", http.StatusUnauthorized, `"redirect":"/auth/login"`},
		{"employee on admin api", &session.Session{Token: "t", Role: session.RoleEmployee}, "/api/admin/stats", http.StatusForbidden, `"redirect":"/unauthorized"`},
		{"employee", &session.Session{Token: "t", Role: session.RoleEmployee}, "/api/documents", http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			api := r.Group("/api", API(APITable(), fixedSession(tt.sess)))
			api.Any("/*path", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}
