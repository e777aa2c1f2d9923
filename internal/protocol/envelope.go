package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/realtime-client/internal/jsoncodec"
)

// ErrMalformedFrame is returned by Decode for frames that are not a JSON
// object with an event name.
var ErrMalformedFrame = errors.New("malformed frame")

// Envelope is one decoded protocol message.
type Envelope struct {
	Event   string
	Data    string // Always textual; nested documents are compacted
	Channel string // Empty for connection-scoped events
	UserID  string // Set by the server on client events in presence channels
}

// wireEnvelope is the frame as it appears on the socket.
type wireEnvelope struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
	Channel string          `json:"channel,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
}

// outgoingEnvelope is the frame written by the client. Data is encoded as a
// nested document.
type outgoingEnvelope struct {
	Event   string `json:"event"`
	Data    any    `json:"data"`
	Channel string `json:"channel,omitempty"`
}

// Decode parses one text frame and normalizes its data field to a string.
func Decode(frame []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := jsoncodec.Unmarshal(frame, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if wire.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}

	data, err := normalizeData(wire.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: data: %v", ErrMalformedFrame, err)
	}

	return Envelope{
		Event:   wire.Event,
		Data:    data,
		Channel: wire.Channel,
		UserID:  wire.UserID,
	}, nil
}

// normalizeData returns the textual form of a raw data value. Strings are
// unquoted, null and absent values become "", anything else is compacted.
func normalizeData(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := jsoncodec.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Encode builds an outgoing frame. data is embedded as a nested document.
func Encode(event string, data any, channel string) ([]byte, error) {
	if data == nil {
		data = struct{}{}
	}
	frame, err := jsoncodec.Marshal(outgoingEnvelope{
		Event:   event,
		Data:    data,
		Channel: channel,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return frame, nil
}

// Handshake is the data of a connection established event.
type Handshake struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"` // Seconds
}

// ParseHandshake decodes connection established data.
func ParseHandshake(data string) (Handshake, error) {
	var hs Handshake
	if err := jsoncodec.UnmarshalString(data, &hs); err != nil {
		return Handshake{}, fmt.Errorf("parse handshake: %w", err)
	}
	if hs.SocketID == "" {
		return Handshake{}, errors.New("parse handshake: missing socket_id")
	}
	return hs, nil
}

// SubscribeData is the payload of a subscribe request.
type SubscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

// UnsubscribeData is the payload of an unsubscribe request.
type UnsubscribeData struct {
	Channel string `json:"channel"`
}

// SubscribeFrame encodes a subscribe request.
func SubscribeFrame(data SubscribeData) ([]byte, error) {
	return Encode(EventSubscribe, data, "")
}

// UnsubscribeFrame encodes an unsubscribe request.
func UnsubscribeFrame(channel string) ([]byte, error) {
	return Encode(EventUnsubscribe, UnsubscribeData{Channel: channel}, "")
}

// PongFrame encodes the reply to a server ping.
func PongFrame() []byte {
	frame, _ := Encode(EventPong, nil, "")
	return frame
}

// ClientEventFrame encodes a client event. data must be a JSON document
// (string form) or it is sent as a JSON string.
func ClientEventFrame(channel, event, data string) ([]byte, error) {
	var payload any = data
	if data != "" && jsoncodec.Valid([]byte(data)) {
		payload = json.RawMessage(data)
	}
	return Encode(event, payload, channel)
}
