// Package notify keeps one STOMP-over-WebSocket connection per session to
// the backend's notification broker and fans the pushed events out to the
// browser. Each session has an Inbox that reconciles pushes with the REST
// notification list.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// ErrBrokerError is returned when the broker sends an ERROR frame.
var ErrBrokerError = errors.New("stomp error frame")

const writeTimeout = 10 * time.Second

// DialOptions configures one broker connection.
type DialOptions struct {
	URL       string
	Token     string
	Heartbeat time.Duration // requested in both directions
	Dialer    *websocket.Dialer
}

// Client is a single STOMP 1.2 session. Every frame travels as one
// WebSocket text message.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending []*frame.Frame

	// negotiated heart-beat intervals; zero disables
	sendEvery   time.Duration
	expectEvery time.Duration
}

// Dial opens the socket and completes the CONNECT handshake.
func Dial(ctx context.Context, opts DialOptions) (*Client, error) {
	target, err := socketURL(opts.URL, opts.Token)
	if err != nil {
		return nil, err
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	c := &Client{conn: conn}

	hb := heartbeatHeader(opts.Heartbeat)
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, hostOf(target),
		frame.HeartBeat, hb,
		"Authorization", "Bearer "+opts.Token,
	)
	if err := c.write(connect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	// cancelling ctx unblocks the read below
	waiting := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			conn.Close()
		case <-waiting:
		}
	}()
	f, err := c.next()
	close(waiting)
	<-watchDone
	if ctx.Err() != nil {
		// the watcher may have closed conn
		err = ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("await CONNECTED: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch f.Command {
	case frame.CONNECTED:
	case frame.ERROR:
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrBrokerError, errorText(f))
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected %s frame during handshake", f.Command)
	}

	c.sendEvery, c.expectEvery = negotiate(opts.Heartbeat, f.Header.Get(frame.HeartBeat))
	return c, nil
}

// Subscribe registers destination under subscription id.
func (c *Client) Subscribe(id, destination string) error {
	return c.write(frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	))
}

// Receive blocks until the next MESSAGE frame. Heart-beats are consumed
// silently; an ERROR frame ends the session with ErrBrokerError.
func (c *Client) Receive() (*frame.Frame, error) {
	for {
		if c.expectEvery > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.expectEvery))
		}
		f, err := c.next()
		if err != nil {
			return nil, err
		}
		switch f.Command {
		case frame.MESSAGE:
			return f, nil
		case frame.ERROR:
			return nil, fmt.Errorf("%w: %s", ErrBrokerError, errorText(f))
		}
	}
}

// Heartbeat writes an EOL heart-beat.
func (c *Client) Heartbeat() error {
	return c.write(nil)
}

// HeartbeatInterval is how often Heartbeat should be called; zero means
// the broker did not ask for heart-beats.
func (c *Client) HeartbeatInterval() time.Duration {
	return c.sendEvery
}

// Close sends DISCONNECT and closes the socket.
func (c *Client) Close() error {
	_ = c.write(frame.New(frame.DISCONNECT))
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// next returns the next non-heart-beat frame, reading a new WebSocket
// message only when the previous one is used up.
func (c *Client) next() (*frame.Frame, error) {
	for len(c.pending) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		frames, err := decode(data)
		if err != nil {
			return nil, err
		}
		c.pending = frames
	}
	f := c.pending[0]
	c.pending = c.pending[1:]
	return f, nil
}

// decode splits one WebSocket message into frames, dropping heart-beats.
func decode(data []byte) ([]*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(data))
	var out []*frame.Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		if f != nil {
			out = append(out, f)
		}
	}
}

func socketURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("socket url %q must use ws or wss", raw)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func heartbeatHeader(d time.Duration) string {
	ms := strconv.FormatInt(d.Milliseconds(), 10)
	return ms + "," + ms
}

// negotiate applies the STOMP heart-beat rules: send at max(cx, sy) and
// expect at max(cy, sx), each disabled when either side offers zero.
func negotiate(requested time.Duration, serverHeader string) (send, expect time.Duration) {
	sx, sy := parseHeartbeat(serverHeader)
	own := requested
	if own > 0 && sy > 0 {
		send = max(own, sy)
	}
	if own > 0 && sx > 0 {
		expect = max(own, sx)
	}
	return send, expect
}

func parseHeartbeat(h string) (x, y time.Duration) {
	parts := strings.Split(h, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	a, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || a < 0 || b < 0 {
		return 0, 0
	}
	return time.Duration(a) * time.Millisecond, time.Duration(b) * time.Millisecond
}

func errorText(f *frame.Frame) string {
	if msg := f.Header.Get(frame.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(f.Body))
}
