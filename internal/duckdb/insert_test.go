package duckdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]*model.LogRow
	fail    bool
	// reject drops rows with this message.
	reject string
}

func (w *recordingWriter) InsertRowBatch(rows []*model.LogRow) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return 0, errors.New("boom")
	}
	kept := make([]*model.LogRow, 0, len(rows))
	for _, r := range rows {
		if w.reject == "" || r.Message != w.reject {
			kept = append(kept, r)
		}
	}
	w.batches = append(w.batches, kept)
	return len(kept), nil
}

func (w *recordingWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestInsertBufferFlushesOnStop(t *testing.T) {
	w := &recordingWriter{}
	buf := NewInsertBuffer(w, InsertBufferConfig{BatchSize: 3, FlushInterval: time.Hour})
	for i := 0; i < 7; i++ {
		buf.Add(row("n1", model.ProcessTServer, time.Duration(i)*time.Second, "m"))
	}
	buf.Stop()

	if w.total() != 7 {
		t.Errorf("flushed %d rows, want 7", w.total())
	}
	if buf.Flushed() != 7 || buf.Failed() != 0 {
		t.Errorf("Flushed=%d Failed=%d", buf.Flushed(), buf.Failed())
	}
}

func TestInsertBufferCountsFailures(t *testing.T) {
	w := &recordingWriter{fail: true}
	buf := NewInsertBuffer(w, InsertBufferConfig{BatchSize: 2})
	buf.Add(row("n1", model.ProcessTServer, 0, "m"))
	buf.Add(row("n1", model.ProcessTServer, 0, "m"))
	buf.Add(row("n1", model.ProcessTServer, 0, "m"))
	buf.Stop()

	if buf.Failed() != 3 || buf.Flushed() != 0 {
		t.Errorf("Flushed=%d Failed=%d, want 0/3", buf.Flushed(), buf.Failed())
	}
}

func TestInsertBufferCountsDroppedRows(t *testing.T) {
	w := &recordingWriter{reject: "bad"}
	buf := NewInsertBuffer(w, InsertBufferConfig{BatchSize: 4, FlushInterval: time.Hour})
	for _, msg := range []string{"ok", "bad", "ok", "ok", "bad"} {
		buf.Add(row("n1", model.ProcessTServer, 0, msg))
	}
	buf.Stop()

	if buf.Flushed() != 3 || buf.Failed() != 2 {
		t.Errorf("Flushed=%d Failed=%d, want 3/2", buf.Flushed(), buf.Failed())
	}
	if w.total() != 3 {
		t.Errorf("writer saw %d rows, want 3", w.total())
	}
}

func TestInsertBufferIntoStore(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 50, FlushInterval: 5 * time.Millisecond, FlushQueueSize: 1})
	for i := 0; i < 500; i++ {
		buf.Add(row("n1", model.ProcessMaster, time.Duration(i)*time.Second, "tick"))
	}
	buf.Stop()

	n, err := store.RowCount(context.Background())
	if err != nil {
		t.Fatalf("RowCount: %v", err)
	}
	if n != 500 {
		t.Errorf("RowCount = %d, want 500", n)
	}
}
