package router

import "github.com/rickgao/realtime-client/internal/protocol"

// Session is the connection the router reports protocol events to.
type Session interface {
	// Established handles the handshake payload.
	Established(data string)

	// Ping answers a server ping.
	Ping()

	// RaiseError surfaces a protocol or subscription error.
	RaiseError(err error)
}

// Registry resolves channel names to tracked channels.
type Registry interface {
	Lookup(name string) (Channel, bool)
}

// Channel is a tracked subscription.
type Channel interface {
	Name() string

	// Emit delivers an application event.
	Emit(event, data string)

	// SubscriptionSucceeded handles the server acknowledgement.
	SubscriptionSucceeded(data string)

	// SubscriptionFailed handles a rejected subscription.
	SubscriptionFailed(err error)

	// Presence returns the membership capability of presence channels.
	Presence() (Presence, bool)
}

// Presence tracks members of a presence channel.
type Presence interface {
	AddMember(data string)
	RemoveMember(data string)
}

// Observer sees every envelope before routing. Panics are recovered.
type Observer func(env protocol.Envelope)

// Stats contains runtime statistics.
type Stats struct {
	Received       int64
	InternalEvents int64
	ChannelEvents  int64
	Dropped        int64
	ObserverPanics int64
}

// Drop reasons, used as metric labels.
const (
	dropUnknownInternal = "unknown_internal"
	dropUnknownChannel  = "unknown_channel"
	dropNotPresence     = "not_presence"
	dropMissingChannel  = "missing_channel"
)
