// Package connection implements the connection state machine.
//
// A Connection owns one logical session with the realtime service:
//   - Creates a fresh transport on every Connect, including reconnects
//   - Moves to Connected when the server handshake assigns a socket id
//   - Reconnects after unplanned closes with linear, capped backoff
//   - Serializes all transport callbacks and hands decoded frames to a Dispatcher
//   - Drops sends that arrive while not Connected
package connection
