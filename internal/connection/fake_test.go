package connection

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/realtime-client/internal/protocol"
	"github.com/rickgao/realtime-client/internal/transport"
)

// fakeTransport is a Transport driven by the test.
type fakeTransport struct {
	events chan transport.Event

	// quietClose makes Close record the call without ending the stream,
	// so tests can push events from a transport the connection let go of.
	quietClose bool

	mu        sync.Mutex
	opened    bool
	closed    bool
	sent      []string
	closeOnce sync.Once
}

func newFakeTransport(quietClose bool) *fakeTransport {
	return &fakeTransport{
		events:     make(chan transport.Event, 64),
		quietClose: quietClose,
	}
}

func (f *fakeTransport) Open(ctx context.Context) {
	f.mu.Lock()
	f.opened = true
	f.mu.Unlock()
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrNotOpen
	}
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	if !f.quietClose {
		f.end(1000, "")
	}
	return nil
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

// end emits EventClosed and closes the stream, like a peer close.
func (f *fakeTransport) end(code int, reason string) {
	f.closeOnce.Do(func() {
		f.events <- transport.Event{Kind: transport.EventClosed, Code: code, Reason: reason}
		close(f.events)
	})
}

func (f *fakeTransport) frame(s string) {
	f.events <- transport.Event{Kind: transport.EventMessage, Data: []byte(s), ReceivedAt: time.Now()}
}

func (f *fakeTransport) isOpened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeFactory records every transport it creates.
type fakeFactory struct {
	quietClose bool

	mu         sync.Mutex
	transports []*fakeTransport
}

func (f *fakeFactory) New() transport.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newFakeTransport(f.quietClose)
	f.transports = append(f.transports, t)
	return t
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) get(i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[i]
}

// recorder collects dispatched envelopes and state changes.
type recorder struct {
	mu        sync.Mutex
	envelopes []protocol.Envelope
	changes   []StateChange
	connected int
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.envelopes))
	for _, env := range r.envelopes {
		out = append(out, env.Event)
	}
	return out
}

func (r *recorder) stateChanges() []StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StateChange, len(r.changes))
	copy(out, r.changes)
	return out
}

func (r *recorder) connectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestConnection returns a Connection whose dispatcher handles the
// handshake and records everything else.
func newTestConnection(cfg Config, factory *fakeFactory) (*Connection, *recorder) {
	rec := &recorder{}
	c := New(cfg, factory, testLogger())

	c.SetDispatcher(DispatcherFunc(func(env protocol.Envelope) {
		rec.mu.Lock()
		rec.envelopes = append(rec.envelopes, env)
		rec.mu.Unlock()

		if env.Event == protocol.EventConnectionEstablished {
			c.Established(env.Data)
		}
	}))
	c.OnStateChanged(func(change StateChange) {
		rec.mu.Lock()
		rec.changes = append(rec.changes, change)
		rec.mu.Unlock()
	})
	c.OnConnected(func() {
		rec.mu.Lock()
		rec.connected++
		rec.mu.Unlock()
	})

	return c, rec
}

const handshakeFrame = `{"event":"pusher:connection_established","data":"{\"socket_id\":\"abc123\",\"activity_timeout\":120}"}`

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func containsEvent(events []string, name string) bool {
	for _, e := range events {
		if e == name {
			return true
		}
	}
	return false
}
