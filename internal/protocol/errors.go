package protocol

import (
	"fmt"
	"strconv"

	"github.com/rickgao/realtime-client/internal/jsoncodec"
)

// ErrorCode classifies a protocol-level error.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// 4000-4099: the connection must not be retried as is
	ErrorSSLOnly
	ErrorApplicationDoesNotExist
	ErrorApplicationDisabled
	ErrorOverConnectionQuota
	ErrorPathNotFound
	ErrorInvalidVersionFormat
	ErrorUnsupportedProtocolVersion
	ErrorNoProtocolVersion
	ErrorUnauthorized

	// 4100-4199: retry after backing off
	ErrorOverCapacity

	// 4200-4299: retry immediately
	ErrorGenericReconnect
	ErrorPongNotReceived
	ErrorClosedAfterInactivity

	// 4300-4399: other
	ErrorClientEventRejected

	// Client side, raised for a failed channel subscription
	ErrorSubscription
)

// wireCodes maps numeric codes sent by the server to ErrorCode values.
var wireCodes = map[int]ErrorCode{
	4000: ErrorSSLOnly,
	4001: ErrorApplicationDoesNotExist,
	4003: ErrorApplicationDisabled,
	4004: ErrorOverConnectionQuota,
	4005: ErrorPathNotFound,
	4006: ErrorInvalidVersionFormat,
	4007: ErrorUnsupportedProtocolVersion,
	4008: ErrorNoProtocolVersion,
	4009: ErrorUnauthorized,
	4100: ErrorOverCapacity,
	4200: ErrorGenericReconnect,
	4201: ErrorPongNotReceived,
	4202: ErrorClosedAfterInactivity,
	4301: ErrorClientEventRejected,
}

// String returns the string representation of an ErrorCode.
func (c ErrorCode) String() string {
	switch c {
	case ErrorUnknown:
		return "unknown"
	case ErrorSSLOnly:
		return "ssl_only"
	case ErrorApplicationDoesNotExist:
		return "application_does_not_exist"
	case ErrorApplicationDisabled:
		return "application_disabled"
	case ErrorOverConnectionQuota:
		return "over_connection_quota"
	case ErrorPathNotFound:
		return "path_not_found"
	case ErrorInvalidVersionFormat:
		return "invalid_version_format"
	case ErrorUnsupportedProtocolVersion:
		return "unsupported_protocol_version"
	case ErrorNoProtocolVersion:
		return "no_protocol_version"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorOverCapacity:
		return "over_capacity"
	case ErrorGenericReconnect:
		return "generic_reconnect"
	case ErrorPongNotReceived:
		return "pong_not_received"
	case ErrorClosedAfterInactivity:
		return "closed_after_inactivity"
	case ErrorClientEventRejected:
		return "client_event_rejected"
	case ErrorSubscription:
		return "subscription_error"
	default:
		return fmt.Sprintf("unknown_code_%d", int(c))
	}
}

// ParseErrorCode resolves a wire code. Unrecognized codes map to ErrorUnknown.
func ParseErrorCode(wire int) ErrorCode {
	if code, ok := wireCodes[wire]; ok {
		return code
	}
	return ErrorUnknown
}

// Error is a server-pushed protocol error.
type Error struct {
	Code     ErrorCode
	WireCode int // 0 when the server sent no code
	Message  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.WireCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.WireCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// errorPayload is the data of an error event. Code is sometimes null.
type errorPayload struct {
	Message string `json:"message"`
	Code    *int   `json:"code"`
}

// MapError converts the data of an error event into an *Error. Payloads that
// cannot be parsed produce an ErrorUnknown carrying the raw data as message.
func MapError(data string) *Error {
	var p errorPayload
	if err := jsoncodec.UnmarshalString(data, &p); err != nil {
		return &Error{Code: ErrorUnknown, Message: data}
	}

	e := &Error{Code: ErrorUnknown, Message: p.Message}
	if p.Code != nil {
		e.WireCode = *p.Code
		e.Code = ParseErrorCode(*p.Code)
	}
	return e
}

// SubscriptionError reports that the server rejected a channel subscription.
type SubscriptionError struct {
	Channel string
	Type    string // e.g. "AuthError"
	Message string
	Status  int // HTTP status reported by the auth endpoint, if any
}

// Error implements the error interface.
func (e *SubscriptionError) Error() string {
	msg := "subscription to " + e.Channel + " failed"
	if e.Type != "" {
		msg += ": " + e.Type
	}
	if e.Status != 0 {
		msg += " (status " + strconv.Itoa(e.Status) + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Code returns ErrorSubscription.
func (e *SubscriptionError) Code() ErrorCode { return ErrorSubscription }

type subscriptionErrorPayload struct {
	Type   string `json:"type"`
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// MapSubscriptionError converts the data of a subscription error event.
func MapSubscriptionError(channel, data string) *SubscriptionError {
	var p subscriptionErrorPayload
	if err := jsoncodec.UnmarshalString(data, &p); err != nil {
		return &SubscriptionError{Channel: channel, Message: data}
	}
	return &SubscriptionError{
		Channel: channel,
		Type:    p.Type,
		Message: p.Error,
		Status:  p.Status,
	}
}
