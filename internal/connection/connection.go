package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/realtime-client/internal/metrics"
	"github.com/rickgao/realtime-client/internal/protocol"
	"github.com/rickgao/realtime-client/internal/transport"
)

// Connection is the state machine for one logical connection.
type Connection struct {
	cfg     Config
	factory transport.Factory
	logger  *slog.Logger
	metrics *metrics.Metrics
	backoff *Backoff

	// Serializes transport event handling. activeGen is the generation of the
	// event being handled and is only touched under dispatchMu.
	dispatchMu sync.Mutex
	activeGen  uint64

	// Collaborators and callbacks
	cbMu          sync.RWMutex
	dispatcher    Dispatcher
	onError       func(error)
	onConnected   func()
	onStateChange func(StateChange)

	// State
	mu               sync.RWMutex
	state            State
	socketID         string
	transport        transport.Transport
	cancel           context.CancelFunc
	generation       uint64 // Bumped on every connect and teardown
	reconnectAllowed bool
	reconnectTimer   *time.Timer
}

// New creates a Connection in StateInitialized. It does not connect.
func New(cfg Config, factory transport.Factory, logger *slog.Logger, opts ...Option) *Connection {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		backoff: NewBackoff(cfg.ReconnectInitialDelay, cfg.ReconnectStep, cfg.ReconnectMaxDelay),
		state:   StateInitialized,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetDispatcher sets the envelope dispatcher. Call before Connect.
func (c *Connection) SetDispatcher(d Dispatcher) {
	c.cbMu.Lock()
	c.dispatcher = d
	c.cbMu.Unlock()
}

// OnError registers the handler for protocol errors raised by the server.
func (c *Connection) OnError(fn func(error)) {
	c.cbMu.Lock()
	c.onError = fn
	c.cbMu.Unlock()
}

// OnConnected registers a callback fired once per successful handshake.
func (c *Connection) OnConnected(fn func()) {
	c.cbMu.Lock()
	c.onConnected = fn
	c.cbMu.Unlock()
}

// OnStateChanged registers a callback fired on every state transition.
func (c *Connection) OnStateChanged(fn func(StateChange)) {
	c.cbMu.Lock()
	c.onStateChange = fn
	c.cbMu.Unlock()
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SocketID returns the identifier assigned by the last handshake, or "" when
// not connected.
func (c *Connection) SocketID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.socketID
}

// Connect starts a connect cycle. It returns immediately; progress is
// reported through OnStateChanged. Calling Connect while connecting or
// connected has no effect.
func (c *Connection) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.reconnectAllowed = true
	change := c.openLocked()
	c.mu.Unlock()

	c.notifyState(change)
}

// Disconnect closes the connection and disables automatic reconnects,
// including one already scheduled.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.reconnectAllowed = false
	c.stopTimerLocked()
	prev := c.state
	t := c.teardownLocked()
	if prev != StateInitialized {
		c.state = StateDisconnected
	}
	current := c.state
	c.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			c.logger.Debug("transport close failed", "error", err)
		}
	}

	if prev != StateInitialized && prev != StateDisconnected {
		c.logger.Info("disconnected", "previous_state", prev)
	}
	c.notifyState(StateChange{Previous: prev, Current: current})
}

// Send writes message to the transport when connected. In any other state
// the message is dropped and Send returns false.
func (c *Connection) Send(message string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateConnected || c.transport == nil {
		c.logger.Debug("dropping send, not connected", "state", c.state)
		return false
	}

	if err := c.transport.Send([]byte(message)); err != nil {
		c.logger.Warn("send failed", "error", err)
		return false
	}
	return true
}

// Established handles the server handshake.
func (c *Connection) Established(data string) {
	hs, err := protocol.ParseHandshake(data)
	if err != nil {
		c.logger.Warn("invalid handshake", "error", err)
		return
	}

	c.mu.Lock()
	if c.generation != c.activeGen || c.state != StateConnecting {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("ignoring unexpected handshake",
			"state", state,
			"socket_id", hs.SocketID,
		)
		return
	}
	c.socketID = hs.SocketID
	c.state = StateConnected
	if c.cfg.ResetBackoffOnConnect {
		c.backoff.Reset()
	}
	c.mu.Unlock()

	c.logger.Info("connected",
		"socket_id", hs.SocketID,
		"activity_timeout", hs.ActivityTimeout,
	)

	c.notifyState(StateChange{Previous: StateConnecting, Current: StateConnected})

	c.cbMu.RLock()
	fn := c.onConnected
	c.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Ping answers a server ping.
func (c *Connection) Ping() {
	c.Send(string(protocol.PongFrame()))
}

// RaiseError delivers err to the registered error handler, or logs it when
// there is none.
func (c *Connection) RaiseError(err error) {
	c.cbMu.RLock()
	fn := c.onError
	c.cbMu.RUnlock()

	if fn == nil {
		c.logger.Warn("protocol error", "error", err)
		return
	}
	fn(err)
}

// openLocked starts a connect cycle on a fresh transport. Caller holds c.mu.
func (c *Connection) openLocked() StateChange {
	c.stopTimerLocked()

	c.generation++
	gen := c.generation

	ctx, cancel := context.WithCancel(context.Background())
	t := c.factory.New()
	c.transport = t
	c.cancel = cancel

	prev := c.state
	c.state = StateConnecting

	go c.pump(gen, t)
	t.Open(ctx)

	return StateChange{Previous: prev, Current: StateConnecting}
}

// teardownLocked detaches the current transport and returns it for closing.
// Events still queued from it are ignored afterwards. Caller holds c.mu.
func (c *Connection) teardownLocked() transport.Transport {
	t := c.transport
	if c.cancel != nil {
		c.cancel()
	}
	c.transport = nil
	c.cancel = nil
	c.socketID = ""
	c.generation++
	return t
}

func (c *Connection) stopTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// pump forwards one transport's events until its stream ends.
func (c *Connection) pump(gen uint64, t transport.Transport) {
	for ev := range t.Events() {
		c.handleEvent(gen, ev)
	}
}

// handleEvent processes one transport event. All events of all transports
// go through here one at a time.
func (c *Connection) handleEvent(gen uint64, ev transport.Event) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.RLock()
	current := gen == c.generation
	c.mu.RUnlock()
	if !current {
		c.logger.Debug("ignoring event from replaced transport", "kind", ev.Kind)
		return
	}
	c.activeGen = gen

	switch ev.Kind {
	case transport.EventOpened:
		c.logger.Debug("transport opened")

	case transport.EventMessage:
		c.metrics.FrameReceived()
		c.handleFrame(ev.Data)

	case transport.EventError:
		// Only EventClosed drives reconnection
		c.metrics.TransportError()
		c.logger.Warn("transport error", "error", ev.Err)

	case transport.EventClosed:
		c.handleClosed(gen, ev)
	}
}

// handleFrame decodes a frame and hands it to the dispatcher.
func (c *Connection) handleFrame(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.metrics.MalformedFrame()
		c.logger.Warn("dropping malformed frame", "error", err, "size", len(data))
		return
	}

	c.cbMu.RLock()
	d := c.dispatcher
	c.cbMu.RUnlock()

	if d == nil {
		c.logger.Debug("no dispatcher, dropping frame", "event", env.Event)
		return
	}
	d.Dispatch(env)
}

// handleClosed moves to Disconnected and schedules a reconnect unless the
// user disconnected.
func (c *Connection) handleClosed(gen uint64, ev transport.Event) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}

	prev := c.state
	c.teardownLocked()
	c.state = StateDisconnected
	changes := []StateChange{{Previous: prev, Current: StateDisconnected}}

	reconnect := c.reconnectAllowed
	var delay time.Duration
	if reconnect {
		delay = c.backoff.Next()
		c.state = StateWaitingToReconnect
		changes = append(changes, StateChange{Previous: StateDisconnected, Current: StateWaitingToReconnect})

	}
	token := c.generation
	c.mu.Unlock()

	c.logger.Info("connection closed",
		"code", ev.Code,
		"reason", ev.Reason,
		"reconnect", reconnect,
		"delay", delay,
	)

	for _, change := range changes {
		c.notifyState(change)
	}

	if reconnect {
		c.scheduleReconnect(token, delay)
	}
}

// scheduleReconnect arms the backoff timer unless a Connect or Disconnect
// happened since the close was handled.
func (c *Connection) scheduleReconnect(token uint64, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.reconnectAllowed || c.state != StateWaitingToReconnect || c.generation != token {
		return
	}
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.reconnect(token)
	})
}

// reconnect runs when a backoff timer fires. token is the generation at
// scheduling time; any connect or disconnect since then voids it.
func (c *Connection) reconnect(token uint64) {
	c.mu.Lock()
	if !c.reconnectAllowed || c.state != StateWaitingToReconnect || c.generation != token {
		c.mu.Unlock()
		c.logger.Debug("reconnect cancelled")
		return
	}
	c.reconnectTimer = nil
	change := c.openLocked()
	c.mu.Unlock()

	c.metrics.Reconnect()
	c.logger.Info("attempting reconnection", "next_delay", c.backoff.Current())
	c.notifyState(change)
}

func (c *Connection) notifyState(change StateChange) {
	if change.Previous == change.Current {
		return
	}

	c.metrics.ObserveState(change.Current.String())
	c.logger.Debug("state changed",
		"from", change.Previous,
		"to", change.Current,
	)

	c.cbMu.RLock()
	fn := c.onStateChange
	c.cbMu.RUnlock()
	if fn != nil {
		fn(change)
	}
}
