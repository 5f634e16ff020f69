// Package guard decides whether a session may reach a route. Decide is a
// pure function; the middlewares in this package translate its outcome into
// page redirects or JSON errors.
package guard

import (
	"net/url"
	"slices"
	"time"

	"knowshare/internal/session"
)

// Kind is the access requirement of a route.
type Kind int

const (
	Public Kind = iota
	GuestOnly
	Authenticated
	RolesOnly
	NotRolesOnly
)

// Access is a route's requirement plus the roles it names.
type Access struct {
	Kind  Kind
	Roles []string
}

// Roles requires one of roles.
func Roles(roles ...string) Access { return Access{Kind: RolesOnly, Roles: roles} }

// NotRoles requires an authenticated user holding none of roles.
func NotRoles(roles ...string) Access { return Access{Kind: NotRolesOnly, Roles: roles} }

// Route binds a path pattern to an access requirement.
type Route struct {
	Pattern string
	Access  Access
}

// Outcome names the result of a decision.
type Outcome int

const (
	Allow Outcome = iota
	RedirectLogin
	RedirectHome
	RedirectUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	default:
		return "unknown"
	}
}

// Paths the guard redirects to.
const (
	LoginPath        = "/auth/login"
	HomePath         = "/"
	UnauthorizedPath = "/unauthorized"
)

// Decision is the outcome for one request. ReturnURL is set for
// RedirectLogin.
type Decision struct {
	Outcome   Outcome
	ReturnURL string
}

// Location is where a redirecting decision sends the browser.
func (d Decision) Location() string {
	switch d.Outcome {
	case RedirectLogin:
		if d.ReturnURL == "" {
			return LoginPath
		}
		return LoginPath + "?" + url.Values{"returnUrl": {d.ReturnURL}}.Encode()
	case RedirectHome:
		return HomePath
	case RedirectUnauthorized:
		return UnauthorizedPath
	default:
		return ""
	}
}

// Decide evaluates route for sess at now. requested is the path and query
// the browser asked for, kept as the login return URL.
func Decide(sess *session.Session, route Route, requested string, now time.Time) Decision {
	authed := sess.Authenticated(now)

	switch route.Access.Kind {
	case Public:
		return Decision{Outcome: Allow}
	case GuestOnly:
		if authed {
			return Decision{Outcome: RedirectHome}
		}
		return Decision{Outcome: Allow}
	}

	if !authed {
		return Decision{Outcome: RedirectLogin, ReturnURL: requested}
	}

	switch route.Access.Kind {
	case RolesOnly:
		if len(route.Access.Roles) > 0 && !slices.Contains(route.Access.Roles, sess.Role) {
			return Decision{Outcome: RedirectUnauthorized}
		}
	case NotRolesOnly:
		if slices.Contains(route.Access.Roles, sess.Role) {
			return Decision{Outcome: RedirectUnauthorized}
		}
	}
	return Decision{Outcome: Allow}
}
