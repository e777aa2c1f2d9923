package channel

import (
	"context"
	"errors"
	"strings"
)

// Errors
var (
	ErrInvalidName           = errors.New("invalid channel name")
	ErrNoAuthorizer          = errors.New("channel requires an authorizer")
	ErrNotSubscribed         = errors.New("channel not subscribed")
	ErrClientEventNotAllowed = errors.New("client events require a private or presence channel")
	ErrInvalidClientEvent    = errors.New("client event names must start with client-")
	ErrNotConnected          = errors.New("not connected")
)

// Sender is the connection side of a Registry.
type Sender interface {
	// Send writes a frame. It returns false when not connected.
	Send(message string) bool

	// SocketID returns the current session identifier, "" when not connected.
	SocketID() string
}

// Credentials are the server-generated subscription credentials for a
// private or presence channel.
type Credentials struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// Authorizer obtains Credentials for a channel.
type Authorizer interface {
	Authorize(ctx context.Context, socketID, channel string) (Credentials, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, socketID, channel string) (Credentials, error)

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, socketID, channel string) (Credentials, error) {
	return f(ctx, socketID, channel)
}

// Kind is the channel type derived from its name.
type Kind int

const (
	KindPublic Kind = iota
	KindPrivate
	KindPresence
)

const (
	privatePrefix  = "private-"
	presencePrefix = "presence-"
)

// KindOf returns the kind of the named channel.
func KindOf(name string) Kind {
	switch {
	case strings.HasPrefix(name, presencePrefix):
		return KindPresence
	case strings.HasPrefix(name, privatePrefix):
		return KindPrivate
	default:
		return KindPublic
	}
}

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindPublic:
		return "public"
	case KindPrivate:
		return "private"
	case KindPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// RequiresAuth reports whether subscribing needs credentials.
func (k Kind) RequiresAuth() bool {
	return k == KindPrivate || k == KindPresence
}

// Handler receives the data of one bound event.
type Handler func(data string)

// GlobalHandler receives every event emitted on a channel.
type GlobalHandler func(event, data string)

const maxNameLength = 164

// ValidName reports whether name is an acceptable channel name.
func ValidName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("_-=@,.;", r):
		default:
			return false
		}
	}
	return true
}
