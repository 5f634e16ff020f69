package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"knowshare/internal/backend"
	"knowshare/internal/logger"
)

// Event types delivered to subscribers.
const (
	EventNotification  = "notification"
	EventNotifications = "notifications"
	EventUnreadCount   = "unread-count"
	EventConnection    = "connection"
)

// Event is one item on a subscriber stream.
type Event struct {
	Type string
	Data any
}

// ConnectionStatus is the payload of a connection event.
type ConnectionStatus struct {
	Connected bool `json:"connected"`
}

// API is the notification REST surface of the backend.
type API interface {
	ListNotifications(ctx context.Context, token string) ([]backend.Notification, error)
	UnreadCount(ctx context.Context, token string) (int, error)
	MarkRead(ctx context.Context, token string, id int64) error
	MarkAllRead(ctx context.Context, token string) error
	DeleteNotification(ctx context.Context, token string, id int64) error
	ClearNotifications(ctx context.Context, token string) error
}

// Subscription is a bounded event stream. C is closed when the
// subscriber is dropped or the inbox closes.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// Inbox is one session's notification list. The unread count it
// publishes is always derived from the list.
type Inbox struct {
	api            API
	token          string
	logger         *slog.Logger
	onUnauthorized func()

	mu        sync.Mutex
	items     []backend.Notification
	loaded    bool
	badge     int // REST count, used only until the list first loads
	connected bool
	subs      map[*Subscription]struct{}
	closed    bool
}

// NewInbox creates an empty inbox for token. onUnauthorized runs when the
// backend rejects the token.
func NewInbox(api API, token string, log *slog.Logger, onUnauthorized func()) *Inbox {
	if log == nil {
		log = logger.Discard()
	}
	if onUnauthorized == nil {
		onUnauthorized = func() {}
	}
	return &Inbox{
		api:            api,
		token:          token,
		logger:         log,
		onUnauthorized: onUnauthorized,
		subs:           make(map[*Subscription]struct{}),
	}
}

// Load is the initial fetch. If the list is unavailable the REST unread
// count still seeds the badge.
func (in *Inbox) Load(ctx context.Context) {
	if err := in.Refresh(ctx); err == nil || backend.IsUnauthorized(err) {
		return
	}
	count, err := in.api.UnreadCount(ctx, in.token)
	if err != nil {
		in.fail(err, "unread count")
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.loaded {
		in.badge = count
		in.publish(Event{Type: EventUnreadCount, Data: count})
	}
}

// Refresh replaces the list with the server's. On failure the previous
// list is kept.
func (in *Inbox) Refresh(ctx context.Context) error {
	items, err := in.api.ListNotifications(ctx, in.token)
	if err != nil {
		in.fail(err, "list notifications")
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = items
	in.loaded = true
	in.publishList()
	return nil
}

// HandleNotification is a push from the broker. The pushed item is
// forwarded, then the list is reloaded.
func (in *Inbox) HandleNotification(ctx context.Context, n backend.Notification) {
	in.mu.Lock()
	in.publish(Event{Type: EventNotification, Data: n})
	in.mu.Unlock()

	_ = in.Refresh(ctx)
}

// HandleCount reconciles a pushed unread count with the list.
func (in *Inbox) HandleCount(ctx context.Context, count int) {
	in.mu.Lock()
	derived := in.unread()
	in.mu.Unlock()

	if count != derived {
		_ = in.Refresh(ctx)
	}
}

// HandleConnection records and publishes the socket state.
func (in *Inbox) HandleConnection(connected bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.connected = connected
	in.publish(Event{Type: EventConnection, Data: ConnectionStatus{Connected: connected}})
}

// MarkRead marks id read locally, then on the server.
func (in *Inbox) MarkRead(ctx context.Context, id int64) error {
	return in.update(ctx, "mark read", func(items []backend.Notification) []backend.Notification {
		for i := range items {
			if items[i].ID == id {
				items[i].IsRead = true
			}
		}
		return items
	}, func() error { return in.api.MarkRead(ctx, in.token, id) })
}

// MarkAllRead marks every item read locally, then on the server.
func (in *Inbox) MarkAllRead(ctx context.Context) error {
	return in.update(ctx, "mark all read", func(items []backend.Notification) []backend.Notification {
		for i := range items {
			items[i].IsRead = true
		}
		return items
	}, func() error { return in.api.MarkAllRead(ctx, in.token) })
}

// Delete removes id locally, then on the server.
func (in *Inbox) Delete(ctx context.Context, id int64) error {
	return in.update(ctx, "delete", func(items []backend.Notification) []backend.Notification {
		return slices.DeleteFunc(items, func(n backend.Notification) bool { return n.ID == id })
	}, func() error { return in.api.DeleteNotification(ctx, in.token, id) })
}

// ClearAll empties the list locally, then on the server.
func (in *Inbox) ClearAll(ctx context.Context) error {
	return in.update(ctx, "clear all", func([]backend.Notification) []backend.Notification {
		return []backend.Notification{}
	}, func() error { return in.api.ClearNotifications(ctx, in.token) })
}

// UnreadCount returns the derived count, asking the server only when the
// list has never loaded.
func (in *Inbox) UnreadCount(ctx context.Context) (int, error) {
	in.mu.Lock()
	loaded, count := in.loaded, in.unread()
	in.mu.Unlock()
	if loaded {
		return count, nil
	}

	n, err := in.api.UnreadCount(ctx, in.token)
	if err != nil {
		in.fail(err, "unread count")
		return count, err
	}
	return n, nil
}

// Snapshot returns a copy of the list and the published count.
func (in *Inbox) Snapshot() ([]backend.Notification, int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.copyItems(), in.unread()
}

// Connected reports whether the broker socket is up.
func (in *Inbox) Connected() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.connected
}

// Subscribe opens a stream of buffer events. The current connection
// state, list and count are queued first.
func (in *Inbox) Subscribe(buffer int) *Subscription {
	ch := make(chan Event, max(buffer, 3))
	sub := &Subscription{C: ch, ch: ch}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		close(ch)
		return sub
	}
	ch <- Event{Type: EventConnection, Data: ConnectionStatus{Connected: in.connected}}
	ch <- Event{Type: EventNotifications, Data: in.copyItems()}
	ch <- Event{Type: EventUnreadCount, Data: in.unread()}
	in.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe ends a stream. It is safe to call more than once.
func (in *Inbox) Unsubscribe(sub *Subscription) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.drop(sub)
}

// Close ends every stream. Later publishes are discarded.
func (in *Inbox) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	for sub := range in.subs {
		in.drop(sub)
	}
}

// update applies change to the loaded list, then runs call on the server.
// A 401 ends the session and any other failure reloads the server state.
// Without a loaded list there is nothing to change locally, so a
// successful call is followed by a full load instead.
func (in *Inbox) update(ctx context.Context, op string, change func([]backend.Notification) []backend.Notification, call func() error) error {
	applied := in.mutate(change)
	if err := call(); err != nil {
		in.fail(err, op)
		if !backend.IsUnauthorized(err) {
			_ = in.Refresh(ctx)
		}
		return err
	}
	if !applied {
		in.Load(ctx)
	}
	return nil
}

// mutate reports false and leaves the inbox untouched until the list has
// loaded.
func (in *Inbox) mutate(change func([]backend.Notification) []backend.Notification) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.loaded {
		return false
	}
	in.items = change(in.items)
	in.publishList()
	return true
}

func (in *Inbox) fail(err error, op string) {
	if backend.IsUnauthorized(err) {
		in.logger.Info("notification call rejected, ending session", "op", op)
		in.onUnauthorized()
		return
	}
	in.logger.Warn("notification call failed", "op", op, "error", err)
}

// unread must be called with mu held.
func (in *Inbox) unread() int {
	if !in.loaded {
		return in.badge
	}
	n := 0
	for _, it := range in.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

func (in *Inbox) copyItems() []backend.Notification {
	out := make([]backend.Notification, len(in.items))
	copy(out, in.items)
	return out
}

// publishList must be called with mu held.
func (in *Inbox) publishList() {
	in.publish(Event{Type: EventNotifications, Data: in.copyItems()})
	in.publish(Event{Type: EventUnreadCount, Data: in.unread()})
}

// publish must be called with mu held. A subscriber with a full buffer is
// dropped.
func (in *Inbox) publish(ev Event) {
	if in.closed {
		return
	}
	for sub := range in.subs {
		select {
		case sub.ch <- ev:
		default:
			in.logger.Debug("dropping slow notification subscriber")
			in.drop(sub)
		}
	}
}

func (in *Inbox) drop(sub *Subscription) {
	if _, ok := in.subs[sub]; !ok {
		return
	}
	delete(in.subs, sub)
	close(sub.ch)
}
