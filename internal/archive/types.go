package archive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the archive uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before insert
	BufferSize    int           // Queue capacity between router and writer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats contains writer statistics.
type Stats struct {
	Received  int64 // Envelopes accepted into the queue
	Dropped   int64 // Envelopes rejected because the queue was full
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// row is one realtime_events row.
type row struct {
	ID         uuid.UUID
	ReceivedAt time.Time
	Event      string
	Channel    string
	Data       string
	UserID     string
}

// Schema creates the archive table.
const Schema = `
CREATE TABLE IF NOT EXISTS realtime_events (
	id          UUID PRIMARY KEY,
	received_at TIMESTAMPTZ NOT NULL,
	event       TEXT NOT NULL,
	channel     TEXT,
	data        TEXT NOT NULL,
	user_id     TEXT
);
CREATE INDEX IF NOT EXISTS realtime_events_channel_received_at
	ON realtime_events (channel, received_at);
`

const insertSQL = `
	INSERT INTO realtime_events (id, received_at, event, channel, data, user_id)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''))
	ON CONFLICT (id) DO NOTHING
`
