package notify

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

func TestDial_Handshake(t *testing.T) {
	b := newFakeBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, DialOptions{URL: b.URL(), Token: "tok", Heartbeat: 4 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Subscribe("sub-0", Topic(7)); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe("sub-1", CountTopic(7)); err != nil {
		t.Fatal(err)
	}
	bc := b.next(t)

	h := bc.connect.Header
	if h.Get(frame.AcceptVersion) != "1.2" {
		t.Errorf("accept-version = %q", h.Get(frame.AcceptVersion))
	}
	if h.Get("Authorization") != "Bearer tok" {
		t.Errorf("Authorization = %q", h.Get("Authorization"))
	}
	if h.Get(frame.HeartBeat) != "4000,4000" {
		t.Errorf("heart-beat = %q", h.Get(frame.HeartBeat))
	}
	q, _ := url.ParseQuery(bc.query)
	if q.Get("token") != "tok" {
		t.Errorf("token query = %q", bc.query)
	}
	if bc.subs["/topic/notifications/7"] != "sub-0" || bc.subs["/topic/notifications/7/count"] != "sub-1" {
		t.Errorf("unexpected subscriptions %v", bc.subs)
	}
}

func TestDial_ErrorFrame(t *testing.T) {
	b := newFakeBroker(t)
	b.reject.Store(true)

	_, err := Dial(context.Background(), DialOptions{URL: b.URL(), Token: "bad"})
	if !errors.Is(err, ErrBrokerError) {
		t.Fatalf("expected ErrBrokerError, got %v", err)
	}
}

func TestDial_CancelDuringHandshake(t *testing.T) {
	b := newFakeBroker(t)
	b.silent.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := Dial(ctx, DialOptions{URL: b.URL(), Token: "tok"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Dial returned %s after cancel", elapsed)
	}
}

func TestDial_RejectsHTTPURL(t *testing.T) {
	if _, err := Dial(context.Background(), DialOptions{URL: "http://localhost/ws"}); err == nil {
		t.Error("expected error for non-ws scheme")
	}
}

func TestReceive_SkipsHeartbeats(t *testing.T) {
	b := newFakeBroker(t)
	c, err := Dial(context.Background(), DialOptions{URL: b.URL(), Token: "tok"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.Subscribe("sub-0", Topic(1))
	_ = c.Subscribe("sub-1", CountTopic(1))
	bc := b.next(t)

	if err := writeFrame(bc.ws, nil); err != nil {
		t.Fatal(err)
	}
	bc.send(t, CountTopic(1), "3")

	f, err := c.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if f.Header.Get(frame.Destination) != CountTopic(1) || string(f.Body) != "3" {
		t.Errorf("unexpected frame %s %q", f.Header.Get(frame.Destination), f.Body)
	}
}

func TestHeartbeat_Sent(t *testing.T) {
	b := newFakeBroker(t)
	b.heartbeat = "0,50"

	c, err := Dial(context.Background(), DialOptions{URL: b.URL(), Token: "tok", Heartbeat: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if got := c.HeartbeatInterval(); got != 50*time.Millisecond {
		t.Fatalf("send interval = %v, want 50ms", got)
	}
	_ = c.Subscribe("sub-0", Topic(1))
	_ = c.Subscribe("sub-1", CountTopic(1))
	bc := b.next(t)

	if err := c.Heartbeat(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "heart-beat", func() bool {
		for _, f := range bc.received() {
			if f == "HB" {
				return true
			}
		}
		return false
	})
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		requested    time.Duration
		header       string
		send, expect time.Duration
	}{
		{4 * time.Second, "0,0", 0, 0},
		{4 * time.Second, "10000,10000", 10 * time.Second, 10 * time.Second},
		{4 * time.Second, "1000,0", 0, 4 * time.Second},
		{0, "1000,1000", 0, 0},
		{4 * time.Second, "garbage", 0, 0},
	}
	for _, tt := range tests {
		send, expect := negotiate(tt.requested, tt.header)
		if send != tt.send || expect != tt.expect {
			t.Errorf("negotiate(%v, %q) = %v, %v; want %v, %v", tt.requested, tt.header, send, expect, tt.send, tt.expect)
		}
	}
}

func TestDecode_MultipleFramesAndHeartbeats(t *testing.T) {
	data := []byte("\nMESSAGE\ndestination:/a\n\nx\x00\nMESSAGE\ndestination:/b\n\ny\x00")
	frames, err := decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 || string(frames[0].Body) != "x" || frames[1].Header.Get(frame.Destination) != "/b" {
		t.Errorf("unexpected frames %+v", frames)
	}
}
