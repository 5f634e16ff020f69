package session

import "time"

// Role values issued by the backend.
const (
	RoleAdmin    = "ADMIN"
	RoleEmployee = "EMPLOYEE"
)

// Session is the server-side record behind a browser's session cookie.
// Token is the backend bearer token and never leaves the gateway.
type Session struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Token       string    `json:"token"`
	TokenExpiry time.Time `json:"token_expiry,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HasToken reports whether a bearer token is present.
func (s *Session) HasToken() bool {
	return s != nil && s.Token != ""
}

// TokenExpired is the advisory expiry check. A zero TokenExpiry means the
// token carried no exp claim.
func (s *Session) TokenExpired(now time.Time) bool {
	if s == nil || s.TokenExpiry.IsZero() {
		return false
	}
	return !now.Before(s.TokenExpiry)
}

// Authenticated is the soft check used by route gating: a token is present
// and not known to be expired. The backend remains authoritative.
func (s *Session) Authenticated(now time.Time) bool {
	return s.HasToken() && !s.TokenExpired(now)
}

// HasRole reports whether the session user has exactly the given role.
func (s *Session) HasRole(role string) bool {
	return s != nil && s.Role == role
}

// User is the browser-facing view of a session.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// User returns the public view of the session user.
func (s *Session) User() User {
	return User{ID: s.UserID, Username: s.Username, Email: s.Email, Role: s.Role}
}
