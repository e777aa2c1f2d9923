package connection

// State is the lifecycle state of a Connection.
type State int

const (
	// StateInitialized means Connect has never been called.
	StateInitialized State = iota

	// StateConnecting means a transport is open or opening and the
	// handshake has not completed.
	StateConnecting

	// StateConnected means the handshake completed and a socket id is assigned.
	StateConnected

	// StateDisconnected means there is no transport. It is terminal only
	// after an explicit Disconnect.
	StateDisconnected

	// StateWaitingToReconnect means a reconnect is scheduled.
	StateWaitingToReconnect
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateWaitingToReconnect:
		return "waiting_to_reconnect"
	default:
		return "unknown"
	}
}

// StateChange describes a transition.
type StateChange struct {
	Previous State
	Current  State
}
