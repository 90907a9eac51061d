package transport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// fakeBroker is a minimal STOMP broker served over WebSocket. It records every frame a
// client sends and lets tests push MESSAGE frames to subscribers or drop connections.
type fakeBroker struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	frames  []*frame.Frame
	conns   []*brokerConn
	upgrade int

	// refuse makes the broker answer CONNECT with an ERROR frame.
	refuse bool
}

type brokerConn struct {
	conn *wsConn

	wmu sync.Mutex
	w   *frame.Writer

	mu   sync.Mutex
	subs map[string]string // destination -> subscription id
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()

	b := &fakeBroker{}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws/websocket"
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	bc := &brokerConn{conn: newWSConn(ws), subs: make(map[string]string)}
	bc.w = frame.NewWriter(bc.conn)

	b.mu.Lock()
	b.upgrade++
	b.conns = append(b.conns, bc)
	refuse := b.refuse
	b.mu.Unlock()

	defer bc.conn.Close()

	reader := frame.NewReader(bc.conn)
	for {
		f, err := reader.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue
		}

		b.mu.Lock()
		b.frames = append(b.frames, f)
		b.mu.Unlock()

		switch f.Command {
		case "CONNECT", "STOMP":
			if refuse {
				bc.write(frame.New("ERROR", "message", "access denied"))
				return
			}
			bc.write(frame.New("CONNECTED", "version", "1.2", "heart-beat", "0,0"))

		case "SUBSCRIBE":
			bc.mu.Lock()
			bc.subs[f.Header.Get("destination")] = f.Header.Get("id")
			bc.mu.Unlock()

		case "DISCONNECT":
			if receipt := f.Header.Get("receipt"); receipt != "" {
				bc.write(frame.New("RECEIPT", "receipt-id", receipt))
			}
			return
		}
	}
}

func (bc *brokerConn) write(f *frame.Frame) {
	bc.wmu.Lock()
	defer bc.wmu.Unlock()
	_ = bc.w.Write(f)
}

// push delivers body to every connection subscribed to destination and returns how many
// subscribers received it.
func (b *fakeBroker) push(destination, body string) int {
	b.mu.Lock()
	conns := append([]*brokerConn(nil), b.conns...)
	b.mu.Unlock()

	delivered := 0
	for i, bc := range conns {
		bc.mu.Lock()
		id, ok := bc.subs[destination]
		bc.mu.Unlock()
		if !ok {
			continue
		}

		f := frame.New("MESSAGE",
			"destination", destination,
			"subscription", id,
			"message-id", fmt.Sprintf("m-%d", i),
			"content-type", "application/json",
		)
		f.Body = []byte(body)
		bc.write(f)
		delivered++
	}
	return delivered
}

// dropAll closes every open connection abruptly.
func (b *fakeBroker) dropAll() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()

	for _, bc := range conns {
		bc.conn.ws.Close()
	}
}

// sent returns the frames with the given command, optionally filtered by destination.
func (b *fakeBroker) sent(command, destination string) []*frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*frame.Frame
	for _, f := range b.frames {
		if f.Command != command {
			continue
		}
		if destination != "" && f.Header.Get("destination") != destination {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (b *fakeBroker) upgrades() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.upgrade
}

func (b *fakeBroker) subscribers(destination string) int {
	b.mu.Lock()
	conns := append([]*brokerConn(nil), b.conns...)
	b.mu.Unlock()

	n := 0
	for _, bc := range conns {
		bc.mu.Lock()
		if _, ok := bc.subs[destination]; ok {
			n++
		}
		bc.mu.Unlock()
	}
	return n
}
