package router

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/realtime-client/internal/metrics"
	"github.com/rickgao/realtime-client/internal/protocol"
)

// Router dispatches envelopes to the session, the channel registry and
// observers. It implements connection.Dispatcher.
type Router struct {
	session  Session
	registry Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	obsMu     sync.RWMutex
	observers []Observer

	// Stats
	mu             sync.RWMutex
	received       int64
	internal       int64
	channelEvents  int64
	dropped        int64
	observerPanics int64
}

// Option configures a Router.
type Option func(*Router)

// WithObserver adds an observer.
func WithObserver(obs Observer) Option {
	return func(r *Router) {
		r.observers = append(r.observers, obs)
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New creates a Router.
func New(session Session, registry Registry, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		session:  session,
		registry: registry,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddObserver registers an observer for every subsequent envelope.
func (r *Router) AddObserver(obs Observer) {
	r.obsMu.Lock()
	r.observers = append(r.observers, obs)
	r.obsMu.Unlock()
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Received:       r.received,
		InternalEvents: r.internal,
		ChannelEvents:  r.channelEvents,
		Dropped:        r.dropped,
		ObserverPanics: r.observerPanics,
	}
}

// Dispatch routes one envelope.
func (r *Router) Dispatch(env protocol.Envelope) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	r.observe(env)

	if protocol.IsInternal(env.Event) {
		r.routeInternal(env)
		return
	}
	r.routeChannel(env)
}

func (r *Router) observe(env protocol.Envelope) {
	r.obsMu.RLock()
	observers := r.observers
	r.obsMu.RUnlock()

	for _, obs := range observers {
		r.callObserver(obs, env)
	}
}

func (r *Router) callObserver(obs Observer, env protocol.Envelope) {
	defer func() {
		if p := recover(); p != nil {
			r.mu.Lock()
			r.observerPanics++
			r.mu.Unlock()
			r.logger.Error("observer panicked",
				"event", env.Event,
				"panic", fmt.Sprint(p),
			)
		}
	}()
	obs(env)
}

func (r *Router) routeInternal(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventConnectionEstablished:
		r.session.Established(env.Data)

	case protocol.EventError:
		err := protocol.MapError(env.Data)
		r.metrics.ProtocolError(err.Code.String())
		r.session.RaiseError(err)

	case protocol.EventPing:
		r.session.Ping()

	case protocol.EventSubscriptionSucceeded:
		ch, ok := r.registry.Lookup(env.Channel)
		if !ok {
			r.logger.Debug("subscription succeeded for unknown channel", "channel", env.Channel)
			r.drop(dropUnknownChannel)
			return
		}
		ch.SubscriptionSucceeded(env.Data)

	case protocol.EventSubscriptionError:
		err := protocol.MapSubscriptionError(env.Channel, env.Data)
		r.metrics.ProtocolError(err.Code().String())
		if ch, ok := r.registry.Lookup(env.Channel); ok {
			ch.SubscriptionFailed(err)
		}
		r.session.RaiseError(err)

	case protocol.EventMemberAdded, protocol.EventMemberRemoved:
		p, ok := r.presence(env)
		if !ok {
			return
		}
		if env.Event == protocol.EventMemberAdded {
			p.AddMember(env.Data)
		} else {
			p.RemoveMember(env.Data)
		}

	default:
		r.logger.Debug("ignoring unhandled internal event",
			"event", env.Event,
			"channel", env.Channel,
		)
		r.drop(dropUnknownInternal)
		return
	}

	r.mu.Lock()
	r.internal++
	r.mu.Unlock()
	r.metrics.EventRouted("internal")
}

// presence resolves the presence capability for a membership event. Missing
// or plain channels are dropped with a warning.
func (r *Router) presence(env protocol.Envelope) (Presence, bool) {
	ch, ok := r.registry.Lookup(env.Channel)
	if !ok {
		r.logger.Warn("membership event for unknown channel",
			"event", env.Event,
			"channel", env.Channel,
		)
		r.drop(dropUnknownChannel)
		return nil, false
	}

	p, ok := ch.Presence()
	if !ok {
		r.logger.Warn("membership event for non-presence channel",
			"event", env.Event,
			"channel", env.Channel,
		)
		r.drop(dropNotPresence)
		return nil, false
	}
	return p, true
}

func (r *Router) routeChannel(env protocol.Envelope) {
	if env.Channel == "" {
		r.logger.Debug("dropping event without channel", "event", env.Event)
		r.drop(dropMissingChannel)
		return
	}

	ch, ok := r.registry.Lookup(env.Channel)
	if !ok {
		r.drop(dropUnknownChannel)
		return
	}

	ch.Emit(env.Event, env.Data)

	r.mu.Lock()
	r.channelEvents++
	r.mu.Unlock()
	r.metrics.EventRouted("channel")
}

func (r *Router) drop(reason string) {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
	r.metrics.EventDropped(reason)
}
