// Package jsoncodec is the JSON parser used for wire frames and HTTP payloads.
//
// It wraps bytedance/sonic in its encoding/json compatible configuration so
// struct tags, json.RawMessage and json.Marshaler behave as they do in the
// standard library.
package jsoncodec
