package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// webSocket implements Transport over a gorilla/websocket connection.
type webSocket struct {
	cfg    WebSocketConfig
	logger *slog.Logger

	// Output channel, written only by the run goroutine
	events     chan Event
	finishOnce sync.Once

	// Write serialization
	writeMu sync.Mutex

	// State
	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	started  bool
	closed   bool
	stale    bool
	lastPong time.Time

	// Close frame details, owned by the run goroutine
	closeCode   int
	closeReason string
}

// NewWebSocket creates a WebSocket transport. It does not dial until Open.
func NewWebSocket(cfg WebSocketConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}

	return &webSocket{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, cfg.BufferSize),
	}
}

// NewWebSocketFactory returns a Factory producing WebSocket transports that
// share one configuration.
func NewWebSocketFactory(cfg WebSocketConfig, logger *slog.Logger) Factory {
	return FactoryFunc(func() Transport {
		return NewWebSocket(cfg, logger)
	})
}

// Events returns the event stream.
func (w *webSocket) Events() <-chan Event {
	return w.events
}

// Open dials in the background.
func (w *webSocket) Open(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return
	}
	w.started = true

	var dialCtx context.Context
	var cancel context.CancelFunc
	if w.cfg.HandshakeTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, w.cfg.HandshakeTimeout)
	} else {
		dialCtx, cancel = context.WithCancel(ctx)
	}
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(dialCtx, cancel)
}

// Send writes one text frame.
func (w *webSocket) Send(data []byte) error {
	w.mu.Lock()
	conn := w.conn
	closed := w.closed
	w.mu.Unlock()

	if conn == nil || closed {
		return ErrNotOpen
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close gracefully closes the connection.
func (w *webSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	cancel := w.cancel
	started := w.started
	w.mu.Unlock()

	if !started {
		// No run goroutine will ever report the close
		w.finish()
		return nil
	}

	// Abort a dial still in flight
	if cancel != nil {
		cancel()
	}

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// run owns the connection for its whole life and is the only writer to events.
func (w *webSocket) run(ctx context.Context, cancel context.CancelFunc) {
	defer w.finish()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, w.cfg.Header)
	cancel()
	if err != nil {
		if !w.isClosed() {
			w.emit(Event{Kind: EventError, Err: fmt.Errorf("dial: %w", err)})
		}
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return
	}
	w.conn = conn
	w.lastPong = time.Now()
	w.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		w.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		w.touch()
		return nil
	})

	w.logger.Debug("websocket connected", "url", w.cfg.URL)
	w.emit(Event{Kind: EventOpened})

	heartbeatDone := make(chan struct{})
	go w.heartbeatLoop(conn, heartbeatDone)

	w.readLoop(conn)
	close(heartbeatDone)
}

// readLoop forwards frames until the connection fails or is closed.
func (w *webSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				w.closeCode = closeErr.Code
				w.closeReason = closeErr.Text
				return
			}

			w.mu.Lock()
			stale, closed := w.stale, w.closed
			w.mu.Unlock()

			switch {
			case stale:
				w.emit(Event{Kind: EventError, Err: ErrStaleConnection})
			case !closed:
				w.emit(Event{Kind: EventError, Err: fmt.Errorf("read: %w", err)})
			}
			return
		}

		w.emit(Event{Kind: EventMessage, Data: data, ReceivedAt: receivedAt})
	}
}

// heartbeatLoop pings the server and closes stale connections.
func (w *webSocket) heartbeatLoop(conn *websocket.Conn, done <-chan struct{}) {
	if w.cfg.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			if w.cfg.WriteTimeout > 0 {
				deadline = time.Now().Add(w.cfg.WriteTimeout)
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				w.logger.Debug("failed to send ping", "error", err)
			}

			if w.cfg.PongTimeout <= 0 {
				continue
			}

			w.mu.Lock()
			lastPong := w.lastPong
			w.mu.Unlock()

			if time.Since(lastPong) > w.cfg.PongTimeout {
				w.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", w.cfg.PongTimeout,
				)
				w.mu.Lock()
				w.stale = true
				w.mu.Unlock()

				// Unblocks readLoop
				conn.Close()
				return
			}
		}
	}
}

func (w *webSocket) touch() {
	w.mu.Lock()
	w.lastPong = time.Now()
	w.mu.Unlock()
}

func (w *webSocket) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *webSocket) emit(ev Event) {
	w.events <- ev
}

// finish reports the close and ends the stream.
func (w *webSocket) finish() {
	w.finishOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		conn := w.conn
		w.conn = nil
		w.mu.Unlock()

		if conn != nil {
			conn.Close()
		}

		w.emit(Event{Kind: EventClosed, Code: w.closeCode, Reason: w.closeReason})
		close(w.events)
	})
}
