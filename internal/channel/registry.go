package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/realtime-client/internal/router"
)

// Registry tracks subscribed channels. It implements router.Registry.
type Registry struct {
	sender     Sender
	authorizer Authorizer
	logger     *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry creates a Registry. authorizer may be nil when only public
// channels are used.
func NewRegistry(sender Sender, authorizer Authorizer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		sender:     sender,
		authorizer: authorizer,
		logger:     logger,
		channels:   make(map[string]*Channel),
	}
}

// Subscribe tracks the named channel and, when connected, sends the subscribe
// request. Subscribing to a tracked channel returns the existing Channel.
// When not connected the channel is subscribed on the next handshake.
func (r *Registry) Subscribe(ctx context.Context, name string) (*Channel, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	ch, ok := r.channels[name]
	if !ok {
		ch = newChannel(name, r.sender, r.logger)
		r.channels[name] = ch
	}
	r.mu.Unlock()

	if r.sender.SocketID() == "" {
		return ch, nil
	}

	if err := ch.subscribe(ctx, r.authorizer); err != nil && !errors.Is(err, ErrNotConnected) {
		return ch, err
	}
	return ch, nil
}

// Unsubscribe stops tracking the named channel.
func (r *Registry) Unsubscribe(name string) {
	r.mu.Lock()
	ch, ok := r.channels[name]
	delete(r.channels, name)
	r.mu.Unlock()

	if ok {
		ch.unsubscribe()
	}
}

// Lookup implements router.Registry.
func (r *Registry) Lookup(name string) (router.Channel, bool) {
	ch, ok := r.Channel(name)
	if !ok {
		return nil, false
	}
	return ch, true
}

// Channel returns the tracked channel with the given name.
func (r *Registry) Channel(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names returns the tracked channel names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) snapshot() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		list = append(list, ch)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	return list
}

// SubscribeAll sends subscribe requests for every tracked channel on the
// current session. Failures are logged and joined; they do not stop the
// remaining channels.
func (r *Registry) SubscribeAll(ctx context.Context) error {
	var errs []error
	for _, ch := range r.snapshot() {
		if err := ch.subscribe(ctx, r.authorizer); err != nil {
			r.logger.Warn("subscribe failed", "channel", ch.name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SessionEnded marks every channel unsubscribed after the connection was lost.
func (r *Registry) SessionEnded() {
	for _, ch := range r.snapshot() {
		ch.sessionEnded()
	}
}
