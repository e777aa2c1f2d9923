package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/rickgao/realtime-client/internal/jsoncodec"
	"github.com/rickgao/realtime-client/internal/protocol"
)

type fakeSender struct {
	mu        sync.Mutex
	socketID  string
	connected bool
	sent      []string
}

func (s *fakeSender) Send(message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.sent = append(s.sent, message)
	return true
}

func (s *fakeSender) SocketID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketID
}

func (s *fakeSender) connect(socketID string) {
	s.mu.Lock()
	s.socketID = socketID
	s.connected = true
	s.mu.Unlock()
}

func (s *fakeSender) drop() {
	s.mu.Lock()
	s.socketID = ""
	s.connected = false
	s.mu.Unlock()
}

func (s *fakeSender) frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

type outgoing struct {
	Event   string         `json:"event"`
	Channel string         `json:"channel"`
	Data    map[string]any `json:"data"`
}

func decodeFrame(t *testing.T, frame string) outgoing {
	t.Helper()
	var out outgoing
	if err := jsoncodec.UnmarshalString(frame, &out); err != nil {
		t.Fatalf("decode frame %q: %v", frame, err)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"room1", KindPublic},
		{"private-room", KindPrivate},
		{"presence-room", KindPresence},
		{"private-encrypted-room", KindPrivate},
		{"privateroom", KindPublic},
	}

	for _, tt := range tests {
		if got := KindOf(tt.name); got != tt.want {
			t.Errorf("KindOf(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestValidName(t *testing.T) {
	valid := []string{"room1", "private-room", "a_b-c=d@e,f.g;h"}
	invalid := []string{"", "room 1", "room/1", strings.Repeat("a", 165)}

	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}

func TestRegistry_SubscribeWhileDisconnected(t *testing.T) {
	sender := &fakeSender{}
	reg := NewRegistry(sender, nil, testLogger())

	ch, err := reg.Subscribe(context.Background(), "room1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if ch.Name() != "room1" {
		t.Errorf("unexpected name %q", ch.Name())
	}
	if len(sender.frames()) != 0 {
		t.Errorf("expected no frames while disconnected, got %v", sender.frames())
	}

	// Subscribed on the next handshake
	sender.connect("1.1")
	if err := reg.SubscribeAll(context.Background()); err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	frames := sender.frames()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %v", frames)
	}
	out := decodeFrame(t, frames[0])
	if out.Event != protocol.EventSubscribe || out.Data["channel"] != "room1" {
		t.Errorf("unexpected subscribe frame: %s", frames[0])
	}

	// A second SubscribeAll on the same session sends nothing
	if err := reg.SubscribeAll(context.Background()); err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}
	if len(sender.frames()) != 1 {
		t.Errorf("expected no duplicate subscribe, got %v", sender.frames())
	}
}

func TestRegistry_ResubscribeAfterReconnect(t *testing.T) {
	sender := &fakeSender{}
	sender.connect("1.1")
	reg := NewRegistry(sender, nil, testLogger())

	if _, err := reg.Subscribe(context.Background(), "room1"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := reg.Subscribe(context.Background(), "room2"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if len(sender.frames()) != 2 {
		t.Fatalf("expected 2 frames, got %v", sender.frames())
	}

	sender.drop()
	reg.SessionEnded()
	sender.connect("2.2")
	if err := reg.SubscribeAll(context.Background()); err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	frames := sender.frames()
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %v", frames)
	}
	if decodeFrame(t, frames[2]).Data["channel"] != "room1" || decodeFrame(t, frames[3]).Data["channel"] != "room2" {
		t.Errorf("unexpected resubscribe order: %v", frames[2:])
	}
}

func TestRegistry_InvalidName(t *testing.T) {
	reg := NewRegistry(&fakeSender{}, nil, testLogger())

	_, err := reg.Subscribe(context.Background(), "bad name")
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	if len(reg.Names()) != 0 {
		t.Errorf("expected no tracked channels, got %v", reg.Names())
	}
}

func TestRegistry_PrivateChannel(t *testing.T) {
	sender := &fakeSender{}
	sender.connect("123.456")

	var gotSocket, gotChannel string
	auth := AuthorizerFunc(func(ctx context.Context, socketID, channel string) (Credentials, error) {
		gotSocket, gotChannel = socketID, channel
		return Credentials{Auth: "key:signature"}, nil
	})
	reg := NewRegistry(sender, auth, testLogger())

	if _, err := reg.Subscribe(context.Background(), "private-room"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if gotSocket != "123.456" || gotChannel != "private-room" {
		t.Errorf("authorizer called with %q %q", gotSocket, gotChannel)
	}
	out := decodeFrame(t, sender.frames()[0])
	if out.Data["auth"] != "key:signature" {
		t.Errorf("expected auth in subscribe, got %v", out.Data)
	}
}

func TestRegistry_PrivateChannelWithoutAuthorizer(t *testing.T) {
	sender := &fakeSender{}
	sender.connect("1.1")
	reg := NewRegistry(sender, nil, testLogger())

	ch, err := reg.Subscribe(context.Background(), "private-room")
	if !errors.Is(err, ErrNoAuthorizer) {
		t.Fatalf("expected ErrNoAuthorizer, got %v", err)
	}
	if ch == nil {
		t.Fatal("expected channel to stay tracked")
	}
	if len(sender.frames()) != 0 {
		t.Errorf("expected no frames, got %v", sender.frames())
	}
}

func TestRegistry_AuthFailureEmitsError(t *testing.T) {
	sender := &fakeSender{}
	reg := NewRegistry(sender, AuthorizerFunc(func(ctx context.Context, socketID, channel string) (Credentials, error) {
		return Credentials{}, errors.New("forbidden")
	}), testLogger())

	ch, _ := reg.Subscribe(context.Background(), "private-room")
	var got string
	ch.Bind(protocol.ChannelSubscriptionError, func(data string) { got = data })

	sender.connect("1.1")
	err := reg.SubscribeAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "forbidden") {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !strings.Contains(got, "forbidden") {
		t.Errorf("expected subscription error event, got %q", got)
	}

	// Retried on the next attempt
	if err := reg.SubscribeAll(context.Background()); err == nil {
		t.Error("expected second attempt to call the authorizer again")
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	sender := &fakeSender{}
	sender.connect("1.1")
	reg := NewRegistry(sender, nil, testLogger())

	if _, err := reg.Subscribe(context.Background(), "room1"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	reg.Unsubscribe("room1")

	if _, ok := reg.Lookup("room1"); ok {
		t.Error("expected channel to be untracked")
	}
	frames := sender.frames()
	if len(frames) != 2 {
		t.Fatalf("expected subscribe and unsubscribe, got %v", frames)
	}
	out := decodeFrame(t, frames[1])
	if out.Event != protocol.EventUnsubscribe || out.Data["channel"] != "room1" {
		t.Errorf("unexpected unsubscribe frame: %s", frames[1])
	}

	// Unknown channel is a no-op
	reg.Unsubscribe("missing")
	if len(sender.frames()) != 2 {
		t.Errorf("expected no frame for unknown channel")
	}
}

func TestChannel_Bindings(t *testing.T) {
	reg := NewRegistry(&fakeSender{}, nil, testLogger())
	ch, _ := reg.Subscribe(context.Background(), "room1")

	var calls []string
	ch.Bind("new-message", func(data string) { calls = append(calls, "a:"+data) })
	ch.Bind("new-message", func(data string) { panic("boom") })
	ch.Bind("new-message", func(data string) { calls = append(calls, "b:"+data) })
	ch.BindAll(func(event, data string) { calls = append(calls, "all:"+event) })

	ch.Emit("new-message", `{"x":1}`)
	ch.Emit("other", "{}")

	want := []string{`a:{"x":1}`, `b:{"x":1}`, "all:new-message", "all:other"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}

	ch.Unbind("new-message")
	calls = nil
	ch.Emit("new-message", "{}")
	if len(calls) != 1 || calls[0] != "all:new-message" {
		t.Errorf("expected only global handler after Unbind, got %v", calls)
	}
}

func TestChannel_SubscriptionSucceeded(t *testing.T) {
	reg := NewRegistry(&fakeSender{}, nil, testLogger())
	ch, _ := reg.Subscribe(context.Background(), "room1")

	var acked bool
	ch.Bind(protocol.ChannelSubscriptionSucceeded, func(string) { acked = true })

	routerCh, ok := reg.Lookup("room1")
	if !ok {
		t.Fatal("expected Lookup to find room1")
	}
	routerCh.SubscriptionSucceeded("{}")

	if !acked || !ch.Subscribed() {
		t.Error("expected channel to be subscribed")
	}
	if _, ok := routerCh.Presence(); ok {
		t.Error("expected plain channel to lack presence")
	}
}

func TestChannel_Trigger(t *testing.T) {
	sender := &fakeSender{}
	sender.connect("1.1")
	auth := AuthorizerFunc(func(ctx context.Context, socketID, channel string) (Credentials, error) {
		return Credentials{Auth: "k:s"}, nil
	})
	reg := NewRegistry(sender, auth, testLogger())

	public, _ := reg.Subscribe(context.Background(), "room1")
	if err := public.Trigger("client-typing", "{}"); !errors.Is(err, ErrClientEventNotAllowed) {
		t.Errorf("expected ErrClientEventNotAllowed, got %v", err)
	}

	private, _ := reg.Subscribe(context.Background(), "private-room")
	if err := private.Trigger("client-typing", "{}"); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("expected ErrNotSubscribed, got %v", err)
	}

	private.SubscriptionSucceeded("{}")
	if err := private.Trigger("typing", "{}"); !errors.Is(err, ErrInvalidClientEvent) {
		t.Errorf("expected ErrInvalidClientEvent, got %v", err)
	}
	if err := private.Trigger("client-typing", `{"user":"a"}`); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	frames := sender.frames()
	last := frames[len(frames)-1]
	if last != `{"event":"client-typing","data":{"user":"a"},"channel":"private-room"}` {
		t.Errorf("unexpected client event frame: %s", last)
	}

	sender.drop()
	if err := private.Trigger("client-typing", "{}"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
