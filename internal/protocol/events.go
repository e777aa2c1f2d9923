package protocol

import "strings"

// Version is the protocol revision announced in the connect URL.
const Version = 7

// Reserved event name prefixes.
const (
	PrefixPublic   = "pusher:"
	PrefixInternal = "pusher_internal:"

	// PrefixClientEvent marks events triggered by other clients on
	// private and presence channels.
	PrefixClientEvent = "client-"
)

// Server to client events.
const (
	EventError                 = "pusher:error"
	EventConnectionEstablished = "pusher:connection_established"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	EventSubscriptionError     = "pusher:subscription_error"
	EventMemberAdded           = "pusher_internal:member_added"
	EventMemberRemoved         = "pusher_internal:member_removed"
	EventPing                  = "pusher:ping"
)

// Client to server events.
const (
	EventSubscribe   = "pusher:subscribe"
	EventUnsubscribe = "pusher:unsubscribe"
	EventPong        = "pusher:pong"
)

// Events re-emitted on channels after the protocol layer has handled them.
const (
	ChannelSubscriptionSucceeded = "pusher:subscription_succeeded"
	ChannelSubscriptionError     = "pusher:subscription_error"
	ChannelMemberAdded           = "pusher:member_added"
	ChannelMemberRemoved         = "pusher:member_removed"
)

// IsInternal reports whether event is reserved by the protocol.
func IsInternal(event string) bool {
	return strings.HasPrefix(event, PrefixPublic) || strings.HasPrefix(event, PrefixInternal)
}

// IsClientEvent reports whether event is a client-triggered event name.
func IsClientEvent(event string) bool {
	return strings.HasPrefix(event, PrefixClientEvent)
}
