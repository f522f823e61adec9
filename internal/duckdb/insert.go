package duckdb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
const DefaultFlushQueueSize = 64

// InsertBuffer batches staged rows and flushes them to DuckDB asynchronously.
// Add() never blocks on DuckDB writes - rows are sent to a flush goroutine.
type InsertBuffer struct {
	writer        model.RowWriter
	mu            sync.Mutex
	pending       []*model.LogRow
	flushChan     chan []*model.LogRow // async flush queue
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop

	flushed atomic.Int64
	failed  atomic.Int64

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer creates a new insert buffer that flushes to writer.
func NewInsertBuffer(writer model.RowWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 2000
	flushInterval := 100 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]*model.LogRow, 0, batchSize),
		flushChan:     make(chan []*model.LogRow, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds) when
// the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure, %d inline flushes (flush channel full)", count)
	}
}

// drainPending moves pending rows to the flush channel without blocking on DuckDB.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]*model.LogRow, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch, "inline")
}

// enqueue hands batch to the flush worker, or flushes it on the caller's
// goroutine when the queue is full.
func (b *InsertBuffer) enqueue(batch []*model.LogRow, mode string) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		b.flushBatch(batch, mode)
	}
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		b.flushBatch(batch, "async")
	}
}

// Add queues a row for batch insertion. This never blocks on DuckDB IO.
func (b *InsertBuffer) Add(row *model.LogRow) {
	b.mu.Lock()
	b.pending = append(b.pending, row)
	var batch []*model.LogRow
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]*model.LogRow, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch, "overflow-inline")
	}
}

// Stop flushes remaining rows and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	close(b.done)
	// tickLoop's final drain must finish before flushChan closes.
	b.tickWg.Wait()
	close(b.flushChan)
	b.wg.Wait()
}

// Flushed returns how many rows were handed to the writer successfully.
func (b *InsertBuffer) Flushed() int64 { return b.flushed.Load() }

// Failed returns how many rows were lost to writer errors.
func (b *InsertBuffer) Failed() int64 { return b.failed.Load() }

func (b *InsertBuffer) flushBatch(batch []*model.LogRow, mode string) {
	if len(batch) == 0 {
		return
	}
	n, err := b.writer.InsertRowBatch(batch)
	b.flushed.Add(int64(n))
	b.failed.Add(int64(len(batch) - n))
	if err != nil {
		log.Printf("duckdb flush error (%s): %v", mode, err)
	}
}

// InsertRowBatch appends rows into DuckDB in a single transaction and
// returns how many were written. If the batch fails, it is retried
// row-by-row to salvage as many rows as possible.
func (s *Store) InsertRowBatch(rows []*model.LogRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, rows)
	if err == nil {
		return len(rows), nil
	}

	var failed int
	for _, r := range rows {
		if rerr := s.insertBatchTx(ctx, []*model.LogRow{r}); rerr != nil {
			failed++
			log.Printf("duckdb: dropping row (node=%s file=%s msg=%.80s): %v", r.Node, r.SourceFile, r.Message, rerr)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d rows dropped", failed, len(rows))
	}
	if failed == len(rows) {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	return len(rows) - failed, nil
}

// insertBatchTx inserts rows in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, rows []*model.LogRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO log_rows (node, process_type, sub_type, timestamp, message, source_file) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		sub := r.SubType
		if sub == "" {
			sub = model.SubUnknown
		}
		if _, err := stmt.ExecContext(ctx,
			r.Node, string(r.ProcessType), string(sub),
			r.Timestamp.UTC(), r.Message, r.SourceFile,
		); err != nil {
			return fmt.Errorf("row insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// DeleteFileRows removes every row staged from path along with its staged
// record, so the file can be read again without double counting.
func (s *Store) DeleteFileRows(ctx context.Context, path string) (int64, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM log_rows WHERE source_file = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("delete rows of %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM staged_files WHERE source_file = ?`, path); err != nil {
		return 0, fmt.Errorf("forget staged %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordStagedFile notes that file has been staged with n rows.
func (s *Store) RecordStagedFile(ctx context.Context, file model.LogFileRef, n int64) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO staged_files (source_file, node, process_type, sub_type, row_count) VALUES (?, ?, ?, ?, ?)`,
		file.Path, file.Node, string(file.ProcessType), string(file.SubType), n)
	return err
}

// StagedFiles returns the set of source files already staged.
func (s *Store) StagedFiles(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT source_file FROM staged_files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			log.Printf("duckdb scan error (StagedFiles): %v", err)
			continue
		}
		out[path] = true
	}
	return out, rows.Err()
}
