package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/realtime-client/internal/protocol"
)

// fakeDB records batches. Rows whose event is "dup" report a conflict.
type fakeDB struct {
	mu      sync.Mutex
	batches [][]*pgx.QueuedQuery
	execs   []string
	err     error
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execs = append(db.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), db.err
}

func (db *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.batches = append(db.batches, b.QueuedQueries)
	return &fakeResults{queries: b.QueuedQueries, err: db.err}
}

func (db *fakeDB) rows() []*pgx.QueuedQuery {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*pgx.QueuedQuery
	for _, b := range db.batches {
		out = append(out, b...)
	}
	return out
}

func (db *fakeDB) batchCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.batches)
}

type fakeResults struct {
	queries []*pgx.QueuedQuery
	next    int
	err     error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	q := r.queries[r.next]
	r.next++
	if q.Arguments[2] == "dup" {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWriter_Transform(t *testing.T) {
	w := NewWriter(DefaultConfig(), &fakeDB{}, testLogger(), nil)
	receivedAt := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return receivedAt }

	r := w.transform(protocol.Envelope{Event: "new-message", Data: `{"x":1}`, Channel: "room1", UserID: "7"})

	if r.Event != "new-message" || r.Channel != "room1" || r.Data != `{"x":1}` || r.UserID != "7" {
		t.Errorf("unexpected row: %+v", r)
	}
	if !r.ReceivedAt.Equal(receivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", r.ReceivedAt, receivedAt)
	}
	if r.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected a random id")
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(Config{BatchSize: 3, FlushInterval: time.Hour, BufferSize: 100}, db, testLogger(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		w.Observe(protocol.Envelope{Event: "e", Channel: "room1", Data: "{}"})
	}

	waitFor(t, "flush", func() bool { return w.Stats().Flushes == 1 })

	rows := db.rows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !strings.Contains(rows[0].SQL, "INSERT INTO realtime_events") {
		t.Errorf("unexpected SQL: %s", rows[0].SQL)
	}
	if len(rows[0].Arguments) != 6 {
		t.Errorf("expected 6 arguments, got %d", len(rows[0].Arguments))
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := w.Stats().Inserts; got != 3 {
		t.Errorf("Inserts = %d, want 3", got)
	}
}

func TestWriter_FlushOnInterval(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond, BufferSize: 100}, db, testLogger(), nil)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	w.Observe(protocol.Envelope{Event: "e", Data: "{}"})

	waitFor(t, "interval flush", func() bool { return len(db.rows()) == 1 })
}

func TestWriter_StopFlushesRemaining(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(Config{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 100}, db, testLogger(), nil)
	w.Start(context.Background())

	w.Observe(protocol.Envelope{Event: "a", Data: "{}"})
	w.Observe(protocol.Envelope{Event: "dup", Data: "{}"})

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := w.Stats()
	if stats.Inserts != 1 || stats.Conflicts != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	// Rejected after Stop
	w.Observe(protocol.Envelope{Event: "late", Data: "{}"})
	if w.Stats().Dropped != 1 {
		t.Errorf("expected envelope after Stop to be dropped, got %+v", w.Stats())
	}
}

func TestWriter_DropsWhenFull(t *testing.T) {
	w := NewWriter(Config{BatchSize: 10, FlushInterval: time.Hour, BufferSize: 2}, &fakeDB{}, testLogger(), nil)

	// Not started, so nothing drains the queue
	for i := 0; i < 5; i++ {
		w.Observe(protocol.Envelope{Event: "e", Data: "{}"})
	}

	stats := w.Stats()
	if stats.Received != 2 || stats.Dropped != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestWriter_InsertError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	w := NewWriter(Config{BatchSize: 1, FlushInterval: time.Hour, BufferSize: 10}, db, testLogger(), nil)
	w.Start(context.Background())

	w.Observe(protocol.Envelope{Event: "e", Data: "{}"})
	waitFor(t, "insert error", func() bool { return w.Stats().Errors == 1 })

	w.Stop(context.Background())
	if w.Stats().Inserts != 0 {
		t.Errorf("expected no inserts, got %d", w.Stats().Inserts)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS realtime_events") {
		t.Errorf("unexpected statements: %v", db.execs)
	}

	db.err = errors.New("permission denied")
	if err := EnsureSchema(context.Background(), db); err == nil {
		t.Error("expected error")
	}
}

func TestQueue(t *testing.T) {
	q := newQueue[int](3)

	for i := 1; i <= 3; i++ {
		if !q.push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	if q.push(4) {
		t.Error("expected push to fail when full")
	}

	got := q.drain(2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("drain(2) = %v", got)
	}

	// Wrap around
	q.push(5)
	q.push(6)
	got = q.drain(0)
	if len(got) != 3 || got[0] != 3 || got[1] != 5 || got[2] != 6 {
		t.Errorf("drain(0) = %v", got)
	}
	if q.len() != 0 {
		t.Errorf("len = %d, want 0", q.len())
	}

	q.close()
	if q.push(7) {
		t.Error("expected push to fail after close")
	}
}
