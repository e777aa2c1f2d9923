package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/realtime-client/internal/channel"
	"github.com/rickgao/realtime-client/internal/connection"
	"github.com/rickgao/realtime-client/internal/metrics"
	"github.com/rickgao/realtime-client/internal/protocol"
	"github.com/rickgao/realtime-client/internal/router"
	"github.com/rickgao/realtime-client/internal/transport"
)

// Client is a realtime client for one application key.
type Client struct {
	cfg    Config
	logger *slog.Logger

	metrics    *metrics.Metrics
	authorizer channel.Authorizer
	factory    transport.Factory
	observers  []router.Observer
	subTimeout time.Duration

	conn     *connection.Connection
	router   *router.Router
	registry *channel.Registry

	cbMu          sync.RWMutex
	onConnected   func(socketID string)
	onStateChange func(connection.StateChange)

	// Resubscribe goroutines
	wg sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithAuthorizer sets the authorizer for private and presence channels.
func WithAuthorizer(a channel.Authorizer) Option {
	return func(c *Client) {
		c.authorizer = a
	}
}

// WithTransportFactory replaces the WebSocket transport.
func WithTransportFactory(f transport.Factory) Option {
	return func(c *Client) {
		c.factory = f
	}
}

// WithObserver adds an observer that sees every envelope.
func WithObserver(obs router.Observer) Option {
	return func(c *Client) {
		c.observers = append(c.observers, obs)
	}
}

// WithSubscribeTimeout bounds the resubscription of all channels after a
// handshake, including auth requests.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.subTimeout = d
	}
}

// New creates a Client. It does not connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		logger:     slog.Default(),
		subTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.factory == nil {
		c.factory = transport.NewWebSocketFactory(cfg.webSocketConfig(), c.logger.With("component", "transport"))
	}

	c.conn = connection.New(cfg.Connection, c.factory, c.logger.With("component", "connection"),
		connection.WithMetrics(c.metrics),
	)
	c.registry = channel.NewRegistry(c.conn, c.authorizer, c.logger.With("component", "channels"))

	routerOpts := []router.Option{router.WithMetrics(c.metrics)}
	for _, obs := range c.observers {
		routerOpts = append(routerOpts, router.WithObserver(obs))
	}
	c.router = router.New(c.conn, c.registry, c.logger.With("component", "router"), routerOpts...)

	c.conn.SetDispatcher(c.router)
	c.conn.OnConnected(c.handleConnected)
	c.conn.OnStateChanged(c.handleStateChange)

	return c, nil
}

// Connect starts connecting. It returns immediately.
func (c *Client) Connect() {
	c.logger.Info("connecting", "url", c.cfg.URL())
	c.conn.Connect()
}

// Disconnect closes the connection and stops reconnecting. It waits for
// in-flight resubscriptions to finish.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.wg.Wait()
}

// State returns the connection state.
func (c *Client) State() connection.State { return c.conn.State() }

// SocketID returns the current session identifier.
func (c *Client) SocketID() string { return c.conn.SocketID() }

// Send writes a raw frame when connected.
func (c *Client) Send(message string) bool { return c.conn.Send(message) }

// Subscribe tracks a channel and subscribes to it if connected.
func (c *Client) Subscribe(ctx context.Context, name string) (*channel.Channel, error) {
	return c.registry.Subscribe(ctx, name)
}

// Unsubscribe stops tracking a channel.
func (c *Client) Unsubscribe(name string) {
	c.registry.Unsubscribe(name)
}

// Channel returns a tracked channel.
func (c *Client) Channel(name string) (*channel.Channel, bool) {
	return c.registry.Channel(name)
}

// Channels returns the tracked channel names.
func (c *Client) Channels() []string {
	return c.registry.Names()
}

// BindGlobal registers fn for every envelope received, internal ones included.
func (c *Client) BindGlobal(fn func(event, channel, data string)) {
	c.router.AddObserver(func(env protocol.Envelope) {
		fn(env.Event, env.Channel, env.Data)
	})
}

// OnError registers the handler for protocol and subscription errors.
func (c *Client) OnError(fn func(error)) {
	c.conn.OnError(fn)
}

// OnConnected registers a callback fired after every handshake.
func (c *Client) OnConnected(fn func(socketID string)) {
	c.cbMu.Lock()
	c.onConnected = fn
	c.cbMu.Unlock()
}

// OnStateChanged registers a callback fired on every state transition.
func (c *Client) OnStateChanged(fn func(connection.StateChange)) {
	c.cbMu.Lock()
	c.onStateChange = fn
	c.cbMu.Unlock()
}

// Stats returns router statistics.
func (c *Client) Stats() router.Stats {
	return c.router.Stats()
}

// handleConnected resubscribes every channel off the event pump, since
// private channels need an HTTP round trip.
func (c *Client) handleConnected() {
	socketID := c.conn.SocketID()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.subTimeout)
		defer cancel()

		if err := c.registry.SubscribeAll(ctx); err != nil {
			c.logger.Warn("resubscribe incomplete", "error", err)
		}
	}()

	c.cbMu.RLock()
	fn := c.onConnected
	c.cbMu.RUnlock()
	if fn != nil {
		fn(socketID)
	}
}

func (c *Client) handleStateChange(change connection.StateChange) {
	if change.Previous == connection.StateConnected {
		c.registry.SessionEnded()
	}

	c.cbMu.RLock()
	fn := c.onStateChange
	c.cbMu.RUnlock()
	if fn != nil {
		fn(change)
	}
}
