// Package transport implements the socket the connection state machine
// drives.
//
// A Transport is single use: it is opened once, surfaces its lifecycle as a
// stream of events (opened, message, error, closed) on one channel, and is
// discarded after it closes. The channel is closed right after the final
// EventClosed, so a consumer can range over it.
//
// The WebSocket implementation answers server pings, sends its own pings on
// an interval and treats a missing pong as a dead connection.
package transport
