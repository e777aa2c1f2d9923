package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/realtime-client/internal/metrics"
	"github.com/rickgao/realtime-client/internal/protocol"
)

// Writer archives envelopes in batches.
type Writer struct {
	cfg     Config
	db      DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	input *queue[row]

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
}

// NewWriter creates a Writer. m may be nil.
func NewWriter(cfg Config, db DB, logger *slog.Logger, m *metrics.Metrics) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		input:   newQueue[row](cfg.BufferSize),
		batch:   make([]row, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the archive table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// Observe queues env for archiving. It never blocks.
func (w *Writer) Observe(env protocol.Envelope) {
	r := w.transform(env)

	ok := w.input.push(r)

	w.batchMu.Lock()
	if ok {
		w.stats.Received++
	} else {
		w.stats.Dropped++
	}
	w.batchMu.Unlock()

	if !ok {
		w.metrics.EventDropped("archive_full")
	}
}

func (w *Writer) transform(env protocol.Envelope) row {
	return row{
		ID:         uuid.New(),
		ReceivedAt: w.now().UTC(),
		Event:      env.Event,
		Channel:    env.Channel,
		Data:       env.Data,
		UserID:     env.UserID,
	}
}

// Start begins consuming the queue and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop shuts down the writer and flushes what is queued, using ctx for the
// final insert.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.input.close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
		return ctx.Err()
	}

	for {
		rows := w.input.drain(w.cfg.BatchSize)
		if len(rows) == 0 {
			break
		}
		w.append(ctx, rows)
	}
	w.flush(ctx)

	w.logger.Info("archive writer stopped")
	return nil
}

// Stats returns current statistics.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop moves queued rows into the batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.input.ready:
			for {
				rows := w.input.drain(w.cfg.BatchSize)
				if len(rows) == 0 {
					break
				}
				w.append(w.ctx, rows)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *Writer) append(ctx context.Context, rows []row) {
	w.batchMu.Lock()
	w.batch = append(w.batch, rows...)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(ctx)
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("archive insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		w.metrics.ArchiveError()
		return
	}

	inserted := len(batch) - conflicts
	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()
	w.metrics.EventsArchived(inserted)

	w.logger.Debug("flushed archive batch",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.ID, r.ReceivedAt, r.Event, r.Channel, r.Data, r.UserID)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
