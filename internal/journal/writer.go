package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/ws-greeter/internal/model"
)

const insertFrameSQL = `
	INSERT INTO frames (frame_id, conn_id, direction, seq, payload, at_us)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (frame_id) DO NOTHING
`

// Config contains configuration for the journal writer.
type Config struct {
	// BatchSize is the number of frames to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// FlushTimeout bounds a single batch insert.
	FlushTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		FlushTimeout:  5 * time.Second,
	}
}

// Metrics tracks writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64 // Recorded after Stop
}

// BatchSender is the part of *pgxpool.Pool the writer uses.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ BatchSender = (*pgxpool.Pool)(nil)

// frameRow represents a row to be inserted into the frames table.
type frameRow struct {
	FrameID   string // UUID
	ConnID    string // UUID
	Direction string // "in" or "out"
	Seq       int64
	Payload   []byte
	AtUs      int64 // Microseconds
}

// Writer batches frames into the frames table.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	db     BatchSender

	// Frames handed over by Record, consumed by consumeLoop
	input *queue[model.Frame]

	// Batching
	batch   []frameRow
	batchMu sync.Mutex

	// Serializes flushes so rows land in record order
	flushMu sync.Mutex

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewWriter creates a new Writer.
func NewWriter(cfg Config, db BatchSender, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultConfig().FlushTimeout
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  newQueue[model.Frame](cfg.BatchSize),
		batch:  make([]frameRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming recorded frames and the periodic flush loop.
func (w *Writer) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	if w.cfg.FlushInterval > 0 {
		w.wg.Add(1)
		go w.flushLoop(ctx)
	}

	w.logger.Info("frame journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop stops accepting frames, lets the consumer drain, and writes whatever
// is still pending.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping frame journal")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("frame journal stop timed out")
	}

	// Anything the consumer did not reach (never started, or timed out)
	for _, f := range w.input.Drain() {
		w.add(transform(f))
	}

	// Final flush
	w.Flush()

	w.logger.Info("frame journal stopped")
	return nil
}

// Record queues a frame for the journal. It never waits on the database.
func (w *Writer) Record(f model.Frame) {
	if w.input.Push(f) {
		return
	}

	w.batchMu.Lock()
	w.metrics.Dropped++
	w.batchMu.Unlock()
	w.logger.Warn("frame recorded after journal stopped", "frame_id", f.ID, "direction", f.Direction)
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// Pending returns the number of frames not yet flushed.
func (w *Writer) Pending() int {
	queued := w.input.Len()

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return queued + len(w.batch)
}

// consumeLoop moves recorded frames into the batch and flushes full batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		f, ok := w.input.Pop()
		if !ok {
			return
		}
		if w.add(transform(f)) {
			w.Flush()
		}
	}
}

// add appends row to the batch and reports whether the batch is full.
func (w *Writer) add(row frameRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Flush()
		}
	}
}

// transform converts a Frame to a frameRow.
func transform(f model.Frame) frameRow {
	return frameRow{
		FrameID:   f.ID.String(),
		ConnID:    f.ConnID.String(),
		Direction: string(f.Direction),
		Seq:       f.Seq,
		Payload:   f.Data,
		AtUs:      f.AtMicros(),
	}
}

// Flush writes the current batch to the database.
func (w *Writer) Flush() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]frameRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed frames",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(rows []frameRow) (conflicts int, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertFrameSQL, r.FrameID, r.ConnID, r.Direction, r.Seq, r.Payload, r.AtUs)
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
