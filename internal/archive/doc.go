// Package archive records every routed envelope in PostgreSQL.
//
// The Writer is a router observer. Observe never blocks routing: envelopes go
// into a bounded in-memory queue and are dropped, and counted, when it is
// full. A background loop drains the queue into batches that are inserted
// with pgx.Batch when the batch is full or the flush interval elapses.
//
// Rows are append-only and keyed by a random UUID.
package archive
