package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/realtime-client/internal/protocol"
	"github.com/rickgao/realtime-client/internal/router"
)

// Channel is one subscription. It implements router.Channel.
type Channel struct {
	name    string
	kind    Kind
	sender  Sender
	logger  *slog.Logger
	members *Members // Presence channels only

	mu         sync.RWMutex
	handlers   map[string][]Handler
	globals    []GlobalHandler
	subscribed bool
	sentTo     string // Socket id the subscribe request was written on
}

func newChannel(name string, sender Sender, logger *slog.Logger) *Channel {
	c := &Channel{
		name:     name,
		kind:     KindOf(name),
		sender:   sender,
		logger:   logger.With("channel", name),
		handlers: make(map[string][]Handler),
	}
	if c.kind == KindPresence {
		c.members = newMembers()
	}
	return c
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Kind returns the channel kind.
func (c *Channel) Kind() Kind { return c.kind }

// Members returns the member list, or nil for non-presence channels.
func (c *Channel) Members() *Members { return c.members }

// Subscribed reports whether the server acknowledged the subscription on
// the current session.
func (c *Channel) Subscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed
}

// Bind registers h for event. Multiple handlers per event are called in
// registration order.
func (c *Channel) Bind(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.mu.Unlock()
}

// BindAll registers h for every event on the channel.
func (c *Channel) BindAll(h GlobalHandler) {
	c.mu.Lock()
	c.globals = append(c.globals, h)
	c.mu.Unlock()
}

// Unbind removes every handler for event.
func (c *Channel) Unbind(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

// Emit delivers event to the bound handlers. A panicking handler is logged
// and does not stop the others.
func (c *Channel) Emit(event, data string) {
	c.mu.RLock()
	handlers := c.handlers[event]
	globals := c.globals
	c.mu.RUnlock()

	for _, h := range handlers {
		c.call(event, func() { h(data) })
	}
	for _, h := range globals {
		c.call(event, func() { h(event, data) })
	}
}

func (c *Channel) call(event string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("event handler panicked",
				"event", event,
				"panic", fmt.Sprint(p),
			)
		}
	}()
	fn()
}

// SubscriptionSucceeded marks the channel subscribed. Presence channels
// load the member list from data.
func (c *Channel) SubscriptionSucceeded(data string) {
	c.mu.Lock()
	c.subscribed = true
	c.mu.Unlock()

	if c.members != nil {
		if err := c.members.load(data); err != nil {
			c.logger.Warn("invalid presence data", "error", err)
		}
	}

	c.logger.Debug("subscribed")
	c.Emit(protocol.ChannelSubscriptionSucceeded, data)
}

// SubscriptionFailed marks the channel unsubscribed and emits the error.
func (c *Channel) SubscriptionFailed(err error) {
	c.mu.Lock()
	c.subscribed = false
	c.mu.Unlock()

	c.logger.Warn("subscription failed", "error", err)
	c.Emit(protocol.ChannelSubscriptionError, err.Error())
}

// Presence returns the channel itself for presence channels.
func (c *Channel) Presence() (router.Presence, bool) {
	if c.members == nil {
		return nil, false
	}
	return c, true
}

// AddMember handles a member_added event.
func (c *Channel) AddMember(data string) {
	if c.members == nil {
		return
	}
	member, added, err := c.members.add(data)
	if err != nil {
		c.logger.Warn("invalid member_added data", "error", err)
		return
	}
	if added {
		c.logger.Debug("member added", "user_id", member.ID)
	}
	c.Emit(protocol.ChannelMemberAdded, data)
}

// RemoveMember handles a member_removed event.
func (c *Channel) RemoveMember(data string) {
	if c.members == nil {
		return
	}
	member, removed, err := c.members.remove(data)
	if err != nil {
		c.logger.Warn("invalid member_removed data", "error", err)
		return
	}
	if !removed {
		c.logger.Debug("member_removed for unknown member", "user_id", member.ID)
		return
	}
	c.Emit(protocol.ChannelMemberRemoved, data)
}

// Trigger sends a client event to the other subscribers. Only subscribed
// private and presence channels accept client events.
func (c *Channel) Trigger(event, data string) error {
	if !c.kind.RequiresAuth() {
		return ErrClientEventNotAllowed
	}
	if !protocol.IsClientEvent(event) {
		return fmt.Errorf("%w: %q", ErrInvalidClientEvent, event)
	}
	if !c.Subscribed() {
		return ErrNotSubscribed
	}

	frame, err := protocol.ClientEventFrame(c.name, event, data)
	if err != nil {
		return fmt.Errorf("encode client event: %w", err)
	}
	if !c.sender.Send(string(frame)) {
		return ErrNotConnected
	}
	return nil
}

// subscribe writes the subscribe request for the current session. It is a
// no-op when the request was already written on this session.
func (c *Channel) subscribe(ctx context.Context, authorizer Authorizer) error {
	socketID := c.sender.SocketID()
	if socketID == "" {
		return ErrNotConnected
	}

	c.mu.Lock()
	if c.sentTo == socketID {
		c.mu.Unlock()
		return nil
	}
	c.sentTo = socketID
	c.mu.Unlock()

	data := protocol.SubscribeData{Channel: c.name}

	if c.kind.RequiresAuth() {
		creds, err := c.authorize(ctx, authorizer, socketID)
		if err != nil {
			c.clearSent(socketID)
			c.SubscriptionFailed(err)
			return err
		}
		data.Auth = creds.Auth
		data.ChannelData = creds.ChannelData

		if c.members != nil {
			if err := c.members.setMe(creds.ChannelData); err != nil {
				c.logger.Warn("invalid channel_data", "error", err)
			}
		}
	}

	frame, err := protocol.SubscribeFrame(data)
	if err != nil {
		c.clearSent(socketID)
		return fmt.Errorf("encode subscribe: %w", err)
	}

	if !c.sender.Send(string(frame)) {
		c.clearSent(socketID)
		return ErrNotConnected
	}

	c.logger.Debug("subscribe sent", "kind", c.kind)
	return nil
}

func (c *Channel) authorize(ctx context.Context, authorizer Authorizer, socketID string) (Credentials, error) {
	if authorizer == nil {
		return Credentials{}, fmt.Errorf("%w: %s", ErrNoAuthorizer, c.name)
	}
	creds, err := authorizer.Authorize(ctx, socketID, c.name)
	if err != nil {
		return Credentials{}, fmt.Errorf("authorize %s: %w", c.name, err)
	}
	if c.kind == KindPresence && creds.ChannelData == "" {
		return Credentials{}, fmt.Errorf("authorize %s: presence credentials without channel_data", c.name)
	}
	return creds, nil
}

func (c *Channel) clearSent(socketID string) {
	c.mu.Lock()
	if c.sentTo == socketID {
		c.sentTo = ""
	}
	c.mu.Unlock()
}

// unsubscribe writes the unsubscribe request if a subscribe was sent on the
// current session.
func (c *Channel) unsubscribe() {
	c.mu.Lock()
	sent := c.sentTo != "" && c.sentTo == c.sender.SocketID()
	c.sentTo = ""
	c.subscribed = false
	c.mu.Unlock()

	if !sent {
		return
	}
	frame, err := protocol.UnsubscribeFrame(c.name)
	if err != nil {
		c.logger.Warn("encode unsubscribe failed", "error", err)
		return
	}
	c.sender.Send(string(frame))
}

// sessionEnded resets subscription state when the connection is lost.
func (c *Channel) sessionEnded() {
	c.mu.Lock()
	c.subscribed = false
	c.sentTo = ""
	c.mu.Unlock()

	if c.members != nil {
		c.members.reset()
	}
}
