// Package events publishes session lifecycle activity (login, logout,
// forced logout) for auditing. Publishing never blocks or fails a request.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a session lifecycle transition.
type Type string

const (
	TypeLogin        Type = "login"
	TypeLogout       Type = "logout"
	TypeForcedLogout Type = "forced_logout"
)

// Event is the JSON payload written to the session events topic.
type Event struct {
	ID         string    `json:"event_id"`
	Type       Type      `json:"type"`
	SessionID  string    `json:"session_id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New stamps an event with a fresh id and the current time.
func New(t Type, sessionID string, userID int64, username string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		SessionID:  sessionID,
		UserID:     userID,
		Username:   username,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Nop drops every event. It is used when KAFKA_BROKERS is empty.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() {}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
