package transport

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotOpen         = errors.New("transport not open")
	ErrStaleConnection = errors.New("connection stale (no pong)")
)

// EventKind identifies a transport event.
type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventMessage
	EventError
	EventClosed
)

// String returns the string representation of an EventKind.
func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one transport lifecycle signal.
type Event struct {
	Kind       EventKind
	Data       []byte    // EventMessage only
	ReceivedAt time.Time // EventMessage only
	Err        error     // EventError only
	Code       int       // EventClosed: close code sent by the peer, 0 if none
	Reason     string    // EventClosed: close reason sent by the peer
}

// Transport is a bidirectional text stream.
type Transport interface {
	// Open starts connecting in the background. The outcome is reported on
	// Events. Calling Open more than once has no effect.
	Open(ctx context.Context)

	// Send writes one text frame.
	Send(data []byte) error

	// Close tears the transport down. EventClosed still follows.
	Close() error

	// Events returns the event stream. It is closed after EventClosed.
	Events() <-chan Event
}

// Factory creates a fresh Transport for every connect attempt.
type Factory interface {
	New() Transport
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func() Transport

// New calls f.
func (f FactoryFunc) New() Transport { return f() }

// WebSocketConfig configures a WebSocket transport.
type WebSocketConfig struct {
	URL              string        // ws:// or wss:// endpoint
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Dial timeout (0 = no timeout)
	WriteTimeout     time.Duration // Write deadline for sends and control frames
	PingInterval     time.Duration // Interval between client pings (0 = disabled)
	PongTimeout      time.Duration // Max time without pong before the connection is stale
	BufferSize       int           // Event channel buffer size
}

// DefaultWebSocketConfig returns sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		BufferSize:       256,
	}
}
