// Package router delivers decoded envelopes to their handlers.
//
// Every envelope is first offered to the registered observers. Events with a
// reserved prefix are then dispatched by exact name to the session (handshake,
// errors, ping) or to the channel registry (subscription results, presence
// membership). All other events are application events and go to the
// tracked channel named in the envelope; events for untracked channels are
// dropped.
//
// The router holds no goroutines. Dispatch runs on the caller's goroutine,
// which for a connection.Connection is its event pump.
package router
