package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"knowshare/internal/backend"
	"knowshare/internal/logger"

	"github.com/go-stomp/stomp/v3/frame"
)

const dialTimeout = 10 * time.Second

var errRejected = errors.New("broker rejected CONNECT")

// Sink receives what a Channel hears from the broker, in arrival order.
type Sink interface {
	HandleNotification(ctx context.Context, n backend.Notification)
	HandleCount(ctx context.Context, count int)
	HandleConnection(connected bool)
}

// ChannelConfig describes one session's subscription.
type ChannelConfig struct {
	URL            string
	Token          string
	UserID         int64
	ReconnectDelay time.Duration
	Heartbeat      time.Duration
	Logger         *slog.Logger

	// OnRejected runs when the broker answers CONNECT with an ERROR frame.
	// When set, the loop stops instead of retrying the same credentials.
	OnRejected func()
}

// Channel owns the broker connection of one session. It reconnects after
// a fixed delay until stopped and never holds more than one connection.
type Channel struct {
	cfg  ChannelConfig
	sink Sink

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	dials   int
	started bool
}

// NewChannel creates a stopped channel.
func NewChannel(cfg ChannelConfig, sink Sink) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &Channel{cfg: cfg, sink: sink}
}

// Topic is the per-user notification destination.
func Topic(userID int64) string {
	return "/topic/notifications/" + strconv.FormatInt(userID, 10)
}

// CountTopic is the per-user unread count destination.
func CountTopic(userID int64) string {
	return Topic(userID) + "/count"
}

// Start launches the connect loop. Calling Start twice is a no-op.
func (ch *Channel) Start(ctx context.Context) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.started {
		return
	}
	ch.started = true

	ctx, ch.cancel = context.WithCancel(ctx)
	ch.done = make(chan struct{})
	go ch.run(ctx)
}

// Stop cancels the loop, closes the live connection and waits for the
// loop to exit.
func (ch *Channel) Stop() {
	ch.mu.Lock()
	cancel, done := ch.cancel, ch.done
	ch.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Dials reports how many connection attempts have been made.
func (ch *Channel) Dials() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.dials
}

func (ch *Channel) run(ctx context.Context) {
	defer close(ch.done)
	log := ch.cfg.Logger.With("user_id", ch.cfg.UserID)

	for {
		err := ch.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errRejected) && ch.cfg.OnRejected != nil {
			log.Info("notification socket rejected, giving up", "error", err)
			ch.cfg.OnRejected()
			return
		}
		log.Warn("notification socket closed, reconnecting", "error", err, "delay", ch.cfg.ReconnectDelay)

		t := time.NewTimer(ch.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session runs one connection from dial to disconnect.
func (ch *Channel) session(ctx context.Context) error {
	ch.mu.Lock()
	ch.dials++
	ch.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	client, err := Dial(dialCtx, DialOptions{URL: ch.cfg.URL, Token: ch.cfg.Token, Heartbeat: ch.cfg.Heartbeat})
	cancel()
	if errors.Is(err, ErrBrokerError) {
		return fmt.Errorf("%w: %w", errRejected, err)
	}
	if err != nil {
		return err
	}

	connCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stop()
		wg.Wait()
		ch.sink.HandleConnection(false)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		_ = client.Close()
	}()

	if err := client.Subscribe("sub-0", Topic(ch.cfg.UserID)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := client.Subscribe("sub-1", CountTopic(ch.cfg.UserID)); err != nil {
		return fmt.Errorf("subscribe count: %w", err)
	}
	ch.sink.HandleConnection(true)
	ch.cfg.Logger.Debug("notification socket connected", "user_id", ch.cfg.UserID)

	if every := client.HeartbeatInterval(); every > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			heartbeat(connCtx, client, every)
		}()
	}

	for {
		f, err := client.Receive()
		if err != nil {
			return err
		}
		ch.dispatch(ctx, f)
	}
}

func heartbeat(ctx context.Context, c *Client, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (ch *Channel) dispatch(ctx context.Context, f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	switch {
	case strings.HasSuffix(dest, "/count"):
		var count int
		if err := json.Unmarshal(f.Body, &count); err != nil {
			ch.cfg.Logger.Warn("bad unread count payload", "destination", dest, "error", err)
			return
		}
		ch.sink.HandleCount(ctx, count)
	default:
		var n backend.Notification
		if err := json.Unmarshal(f.Body, &n); err != nil {
			ch.cfg.Logger.Warn("bad notification payload", "destination", dest, "error", err)
			return
		}
		ch.sink.HandleNotification(ctx, n)
	}
}
