// Package protocol implements the wire format of the realtime messaging
// protocol.
//
// Incoming frames are JSON objects of the form
//
//	{"event": "...", "data": ..., "channel": "..."}
//
// where data is sometimes a JSON string holding an encoded document and
// sometimes the document itself. Decode absorbs that asymmetry once: every
// Envelope carries its data as a string, and each handler re-parses the
// payload shape it understands.
//
// Events whose names start with "pusher:" or "pusher_internal:" are reserved
// by the protocol. Everything else is an application event published on a
// channel.
//
// The package also maps server-pushed error payloads to typed errors
// (see MapError and ErrorCode).
package protocol
