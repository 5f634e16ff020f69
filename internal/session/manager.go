// Package session keeps the gateway's server-side sessions. Each browser
// cookie maps to exactly one Session, stored in Redis with a TTL.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when a session is not found
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session has expired
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidSession is returned when session data is invalid
	ErrInvalidSession = errors.New("invalid session")
)

// Manager defines the interface for session management operations
type Manager interface {
	Create(ctx context.Context, sess *Session, maxAge int) (string, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, sessionID string) error
	Validate(ctx context.Context, sessionID string) (bool, error)
}

// manager implements Manager interface
type manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a new session manager
func NewManager(store Store) Manager {
	return &manager{store: store, now: time.Now}
}

func key(sessionID string) string {
	return "session:" + sessionID
}

// Create assigns a fresh id to sess, stamps its lifetime and stores it.
func (m *manager) Create(ctx context.Context, sess *Session, maxAge int) (string, error) {
	if sess == nil {
		return "", ErrInvalidSession
	}
	if maxAge <= 0 {
		return "", fmt.Errorf("max age must be positive, got %d", maxAge)
	}

	now := m.now()
	sess.ID = uuid.New().String()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(time.Duration(maxAge) * time.Second)

	if err := m.save(ctx, sess, time.Duration(maxAge)*time.Second); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// Get retrieves a session by ID
func (m *manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	data, err := m.store.Get(ctx, key(sessionID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, ErrInvalidSession
	}

	if !m.now().Before(sess.ExpiresAt) {
		_ = m.store.Delete(ctx, key(sessionID))
		return nil, ErrSessionExpired
	}

	return &sess, nil
}

// Update rewrites a live session, keeping its remaining lifetime.
func (m *manager) Update(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return ErrInvalidSession
	}
	ttl := sess.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		_ = m.store.Delete(ctx, key(sess.ID))
		return ErrSessionExpired
	}
	return m.save(ctx, sess, ttl)
}

// Delete removes a session. Deleting an absent session is not an error.
func (m *manager) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return m.store.Delete(ctx, key(sessionID))
}

// Validate checks if a session exists and is valid
func (m *manager) Validate(ctx context.Context, sessionID string) (bool, error) {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return sess != nil, nil
}

func (m *manager) save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.store.Set(ctx, key(sess.ID), string(data), ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}
