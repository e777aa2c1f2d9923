package connection

import (
	"time"

	"github.com/rickgao/realtime-client/internal/metrics"
	"github.com/rickgao/realtime-client/internal/protocol"
)

// Dispatcher receives every decoded envelope, in arrival order.
type Dispatcher interface {
	Dispatch(env protocol.Envelope)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(env protocol.Envelope)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(env protocol.Envelope) { f(env) }

// Config configures a Connection.
type Config struct {
	ReconnectInitialDelay time.Duration // Delay before the first reconnect attempt
	ReconnectStep         time.Duration // Added to the delay after every unplanned disconnect
	ReconnectMaxDelay     time.Duration // Upper bound for the delay
	ResetBackoffOnConnect bool          // Reset the delay after each successful handshake
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectInitialDelay: 0,
		ReconnectStep:         1 * time.Second,
		ReconnectMaxDelay:     10 * time.Second,
		ResetBackoffOnConnect: false,
	}
}

// Option configures optional Connection collaborators.
type Option func(*Connection)

// WithDispatcher sets the envelope dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Connection) {
		c.dispatcher = d
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}
