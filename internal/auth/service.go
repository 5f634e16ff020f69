// Package auth turns backend logins into gateway sessions. The backend
// issues the bearer token; the gateway keeps it in the session store and
// only ever hands the browser an opaque session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"knowshare/internal/backend"
	"knowshare/internal/events"
	"knowshare/internal/logger"
	"knowshare/internal/session"
)

// forgetAfter bounds how long a finished forced logout is remembered, so
// late 401s for the same session are still absorbed.
const forgetAfter = time.Minute

var (
	// ErrNotAuthenticated is returned when a request has no live session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Backend is the subset of the backend client used for authentication.
type Backend interface {
	Login(ctx context.Context, username, password string) (*backend.LoginResponse, error)
	Register(ctx context.Context, req backend.RegisterRequest) (*backend.LoginResponse, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*backend.User, error)
}

// Notifier opens and closes the per-session notification channel.
type Notifier interface {
	Open(ctx context.Context, sess *session.Session)
	Close(sessionID string)
}

// Service defines the authentication service interface
type Service interface {
	Login(ctx context.Context, username, password string) (*session.Session, error)
	Register(ctx context.Context, req backend.RegisterRequest) (*session.Session, error)
	Logout(ctx context.Context, sessionID string) error
	ForceLogout(ctx context.Context, sessionID, reason string) bool
	Current(ctx context.Context, sessionID string) (*session.Session, error)
	Me(ctx context.Context, sessionID string) (*session.Session, error)
}

// Options configures a Service.
type Options struct {
	MaxAge    int // session lifetime in seconds
	Notifier  Notifier
	Publisher events.Publisher
	Logger    *slog.Logger
}

type service struct {
	backend   Backend
	sessions  session.Manager
	notifier  Notifier
	publisher events.Publisher
	logger    *slog.Logger
	maxAge    int
	now       func() time.Time

	forced sync.Map // session id -> *sync.Once
}

// NewService creates a new authentication service
func NewService(b Backend, sessions session.Manager, opts Options) Service {
	s := &service{
		backend:   b,
		sessions:  sessions,
		notifier:  opts.Notifier,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		maxAge:    opts.MaxAge,
		now:       time.Now,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	if s.maxAge <= 0 {
		s.maxAge = 86400
	}
	return s
}

// Login authenticates against the backend and starts a session. A failed
// login creates nothing.
func (s *service) Login(ctx context.Context, username, password string) (*session.Session, error) {
	resp, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, resp)
}

// Register creates the account on the backend and starts a session.
func (s *service) Register(ctx context.Context, req backend.RegisterRequest) (*session.Session, error) {
	resp, err := s.backend.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, resp)
}

func (s *service) start(ctx context.Context, resp *backend.LoginResponse) (*session.Session, error) {
	expiry, err := TokenExpiry(resp.Token)
	if err != nil {
		s.logger.Warn("token exp unreadable, treating as expired", "user_id", resp.ID, "error", err)
	}

	sess := &session.Session{
		UserID:      resp.ID,
		Username:    resp.Username,
		Email:       resp.Email,
		Role:        resp.Role,
		Token:       resp.Token,
		TokenExpiry: expiry,
	}
	if _, err := s.sessions.Create(ctx, sess, s.maxAge); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.notifier.Open(ctx, sess)
	s.emit(ctx, events.TypeLogin, sess, "")
	s.logger.Info("session started", "session_id", sess.ID, "user_id", sess.UserID, "role", sess.Role)
	return sess, nil
}

// Logout ends a session. The backend call is best effort; the local
// session is always removed.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil && !isGone(err) {
		s.logger.Warn("logout: load session failed", "session_id", sessionID, "error", err)
	}

	if sess != nil && sess.HasToken() {
		if err := s.backend.Logout(ctx, sess.Token); err != nil {
			s.logger.Warn("backend logout failed, logging out locally", "session_id", sessionID, "error", err)
		}
	}

	s.notifier.Close(sessionID)
	if err := s.sessions.Delete(context.WithoutCancel(ctx), sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if sess != nil {
		s.emit(ctx, events.TypeLogout, sess, "")
	}
	return nil
}

// ForceLogout ends a session after the backend rejected its token. It runs
// at most once per session id, however many 401s race for it, and reports
// whether this call was the one that ran.
func (s *service) ForceLogout(ctx context.Context, sessionID, reason string) bool {
	if sessionID == "" {
		return false
	}
	v, _ := s.forced.LoadOrStore(sessionID, &sync.Once{})
	ran := false
	v.(*sync.Once).Do(func() {
		ran = true
		s.forceLogout(context.WithoutCancel(ctx), sessionID, reason)
		time.AfterFunc(forgetAfter, func() { s.forced.Delete(sessionID) })
	})
	return ran
}

func (s *service) forceLogout(ctx context.Context, sessionID, reason string) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil && !isGone(err) {
		s.logger.Warn("forced logout: load session failed", "session_id", sessionID, "error", err)
	}

	s.notifier.Close(sessionID)
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Error("forced logout: delete session failed", "session_id", sessionID, "error", err)
	}
	if sess != nil {
		s.emit(ctx, events.TypeForcedLogout, sess, reason)
	}
	s.logger.Info("session force-logged-out", "session_id", sessionID, "reason", reason)
}

// Current returns the live session for sessionID.
func (s *service) Current(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if isGone(err) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	return sess, nil
}

// Me refreshes the session user from GET /auth/me. A 401 ends the session.
func (s *service) Me(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := s.backend.Me(ctx, sess.Token)
	if err != nil {
		if backend.IsUnauthorized(err) {
			s.ForceLogout(ctx, sessionID, "backend rejected token on /auth/me")
		}
		return nil, err
	}

	if user.Username != sess.Username || user.Email != sess.Email || user.Role != sess.Role {
		sess.Username, sess.Email, sess.Role = user.Username, user.Email, user.Role
		if err := s.sessions.Update(ctx, sess); err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
	}
	return sess, nil
}

func (s *service) emit(ctx context.Context, t events.Type, sess *session.Session, reason string) {
	ev := events.New(t, sess.ID, sess.UserID, sess.Username)
	ev.Reason = reason
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("publish session event failed", "type", t, "session_id", sess.ID, "error", err)
	}
}

// IsAuthenticated is the soft check: a token is present and not past its
// exp claim. A backend 401 still overrides it.
func IsAuthenticated(sess *session.Session, now time.Time) bool {
	return sess.Authenticated(now)
}

// HasRole reports whether the session user has role.
func HasRole(sess *session.Session, role string) bool {
	return sess.HasRole(role)
}

func isGone(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrSessionExpired) ||
		errors.Is(err, session.ErrInvalidSession)
}

type nopNotifier struct{}

func (nopNotifier) Open(context.Context, *session.Session) {}
func (nopNotifier) Close(string)                           {}
