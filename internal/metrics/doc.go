// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state, reconnect attempts and transport errors
//   - Frame rates and malformed frame counts
//   - Routed and dropped events, protocol errors by code
//   - Archive batch inserts and failures
//
// A nil *Metrics is valid and records nothing, so components take it as an
// optional collaborator.
package metrics
