package notify

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// fakeBroker is an in-process STOMP-over-WebSocket server.
type fakeBroker struct {
	t     *testing.T
	srv   *httptest.Server
	conns chan *brokerConn

	reject    atomic.Bool // answer CONNECT with ERROR
	silent    atomic.Bool // never answer CONNECT
	heartbeat string      // heart-beat header sent in CONNECTED

	upgrades  atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

type brokerConn struct {
	ws      *websocket.Conn
	connect *frame.Frame
	query   string
	subs    map[string]string // destination -> subscription id
	closed  chan struct{}

	mu     sync.Mutex
	frames []string // commands received after SUBSCRIBE, heart-beats as "HB"
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{t: t, conns: make(chan *brokerConn, 16), heartbeat: "0,0"}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBroker) URL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/api/ws/websocket"
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	b.upgrades.Add(1)

	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		m := b.maxActive.Load()
		if n <= m || b.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	bc := &brokerConn{ws: ws, query: r.URL.RawQuery, subs: map[string]string{}, closed: make(chan struct{})}
	defer close(bc.closed)

	connect := readFrame(ws)
	if connect == nil || connect.Command != frame.CONNECT {
		return
	}
	bc.connect = connect

	if b.silent.Load() {
		readFrame(ws)
		return
	}
	if b.reject.Load() {
		writeFrame(ws, frame.New(frame.ERROR, frame.Message, "bad credentials"))
		return
	}
	writeFrame(ws, frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, b.heartbeat))

	for len(bc.subs) < 2 {
		f := readFrame(ws)
		if f == nil {
			return
		}
		if f.Command == frame.SUBSCRIBE {
			bc.subs[f.Header.Get(frame.Destination)] = f.Header.Get(frame.Id)
		}
	}
	b.conns <- bc

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frames, _ := decode(data)
		bc.mu.Lock()
		if len(frames) == 0 {
			bc.frames = append(bc.frames, "HB")
		}
		for _, f := range frames {
			bc.frames = append(bc.frames, f.Command)
		}
		bc.mu.Unlock()
	}
}

// next waits for the next fully subscribed connection.
func (b *fakeBroker) next(t *testing.T) *brokerConn {
	t.Helper()
	select {
	case bc := <-b.conns:
		return bc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broker connection")
		return nil
	}
}

// send pushes a MESSAGE frame on destination.
func (bc *brokerConn) send(t *testing.T, destination, body string) {
	t.Helper()
	f := frame.New(frame.MESSAGE,
		frame.Destination, destination,
		frame.Subscription, bc.subs[destination],
		frame.MessageId, "m-1",
		frame.ContentType, "application/json",
	)
	f.Body = []byte(body)
	if err := writeFrame(bc.ws, f); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func (bc *brokerConn) received() []string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return append([]string(nil), bc.frames...)
}

func readFrame(ws *websocket.Conn) *frame.Frame {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}
		frames, err := decode(data)
		if err != nil {
			return nil
		}
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

func writeFrame(ws *websocket.Conn, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, buf.Bytes())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
