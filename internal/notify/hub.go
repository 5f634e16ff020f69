package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"knowshare/internal/logger"
	"knowshare/internal/session"
)

// closedTTL is how long a closed session id stays refused. It only has to
// outlast requests that loaded the session before it was closed.
const closedTTL = 5 * time.Minute

// UnauthorizedFunc ends a session whose token the backend rejected.
type UnauthorizedFunc func(ctx context.Context, sessionID, reason string) bool

// HubConfig configures every channel the hub opens.
type HubConfig struct {
	Enabled        bool // open broker sockets; inboxes work either way
	URL            string
	ReconnectDelay time.Duration
	Heartbeat      time.Duration
}

type entry struct {
	inbox     *Inbox
	channel   *Channel
	expiresAt time.Time
}

// Hub holds at most one inbox and channel per session.
type Hub struct {
	api    API
	cfg    HubConfig
	logger *slog.Logger
	base   context.Context

	mu             sync.Mutex
	entries        map[string]*entry
	closed         map[string]time.Time // session id -> when it was closed
	onUnauthorized UnauthorizedFunc
	now            func() time.Time
}

// NewHub creates an empty hub. Channels outlive the request that opened
// them and stop on Close, CloseAll, a rejected token or, via Sweep, once
// their session has expired.
func NewHub(api API, cfg HubConfig, log *slog.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		api:     api,
		cfg:     cfg,
		logger:  log,
		base:    context.Background(),
		entries: make(map[string]*entry),
		closed:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetUnauthorizedHandler installs the forced-logout hook.
func (h *Hub) SetUnauthorizedHandler(fn UnauthorizedFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onUnauthorized = fn
}

// Open starts the session's inbox and channel. Opening an open session is
// a no-op.
func (h *Hub) Open(_ context.Context, sess *session.Session) {
	h.Inbox(sess)
}

// Inbox returns the session's inbox, opening it if needed. A session that
// was closed, or has expired, gets a detached inbox: REST calls still go
// through but no socket is opened and its streams end at once.
func (h *Hub) Inbox(sess *session.Session) *Inbox {
	sessionID := sess.ID
	log := h.logger.With("session_id", sessionID)

	h.mu.Lock()
	if e, ok := h.entries[sessionID]; ok {
		h.mu.Unlock()
		return e.inbox
	}
	if _, gone := h.closed[sessionID]; gone || h.expired(sess.ExpiresAt) {
		h.mu.Unlock()
		log.Debug("not reopening notifications for a closed session")
		inbox := NewInbox(h.api, sess.Token, log, nil)
		inbox.Close()
		return inbox
	}

	inbox := NewInbox(h.api, sess.Token, log, func() { h.unauthorized(sessionID, "backend rejected notification request") })
	e := &entry{inbox: inbox, expiresAt: sess.ExpiresAt}
	if h.cfg.Enabled && h.cfg.URL != "" {
		e.channel = NewChannel(ChannelConfig{
			URL:            h.cfg.URL,
			Token:          sess.Token,
			UserID:         sess.UserID,
			ReconnectDelay: h.cfg.ReconnectDelay,
			Heartbeat:      h.cfg.Heartbeat,
			Logger:         log,
			OnRejected:     func() { h.unauthorized(sessionID, "broker rejected notification socket") },
		}, inbox)
	}
	h.entries[sessionID] = e
	if e.channel != nil {
		e.channel.Start(h.base)
	}
	h.mu.Unlock()

	go inbox.Load(h.base)
	log.Debug("notification channel opened")
	return inbox
}

// Lookup returns the inbox of an already open session.
func (h *Hub) Lookup(sessionID string) (*Inbox, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[sessionID]
	if !ok {
		return nil, false
	}
	return e.inbox, true
}

// Close stops the session's channel and ends its streams.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	e, ok := h.entries[sessionID]
	delete(h.entries, sessionID)
	h.closed[sessionID] = h.now()
	h.mu.Unlock()
	if !ok {
		return
	}
	h.shutdown(e)
	h.logger.Debug("notification channel closed", "session_id", sessionID)
}

// Sweep closes every session that expired before now and forgets closed
// ids older than closedTTL. It returns the number of sessions closed.
func (h *Hub) Sweep() int {
	h.mu.Lock()
	now := h.now()
	var stale []*entry
	for id, e := range h.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			stale = append(stale, e)
			delete(h.entries, id)
			h.closed[id] = now
		}
	}
	for id, at := range h.closed {
		if now.Sub(at) > closedTTL {
			delete(h.closed, id)
		}
	}
	h.mu.Unlock()

	for _, e := range stale {
		h.shutdown(e)
	}
	if len(stale) > 0 {
		h.logger.Debug("closed expired notification sessions", "count", len(stale))
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Sweep()
		}
	}
}

// CloseAll closes every session; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	entries := h.entries
	h.entries = make(map[string]*entry)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.shutdown(e)
		}()
	}
	wg.Wait()
}

// Len reports the number of open sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *Hub) shutdown(e *entry) {
	if e.channel != nil {
		e.channel.Stop()
	}
	e.inbox.Close()
}

// expired must be called with mu held.
func (h *Hub) expired(at time.Time) bool {
	return !at.IsZero() && !h.now().Before(at)
}

// unauthorized runs the hook off the caller's goroutine: the caller may be
// the channel loop that Close waits for.
func (h *Hub) unauthorized(sessionID, reason string) {
	h.mu.Lock()
	fn := h.onUnauthorized
	h.mu.Unlock()

	go func() {
		if fn != nil && fn(h.base, sessionID, reason) {
			return
		}
		// already logged out elsewhere: make sure the socket is gone
		h.Close(sessionID)
	}()
}
