package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/bundlelens/internal/duckdb"
	"github.com/tinytelemetry/bundlelens/internal/logsource"
	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/timestamp"
)

// Store is the column store staging writes into.
type Store interface {
	model.RowWriter
	RecordStagedFile(ctx context.Context, file model.LogFileRef, n int64) error
	DeleteFileRows(ctx context.Context, path string) (int64, error)
	StagedFiles(ctx context.Context) (map[string]bool, error)
}

// StageConfig holds tunable parameters for StageFiles.
type StageConfig struct {
	Workers     int
	MaxLineSize int
	// Restage re-reads files already recorded as staged.
	Restage bool
	Buffer  duckdb.InsertBufferConfig
}

// StageResult summarises a staging run.
type StageResult struct {
	Files   int
	Skipped int
	Failed  int
	Rows    int64
}

// StageFiles reads every file and writes one row per line into store.
// Rows left by an earlier run of a file are deleted before it is read again.
// Unreadable files are logged and counted as failed; rows already read
// from them are kept until the next run. Files already staged are skipped
// unless Restage.
func StageFiles(ctx context.Context, store Store, extractor *timestamp.Extractor, files []model.LogFileRef, conf ...StageConfig) (*StageResult, error) {
	var cfg StageConfig
	if len(conf) > 0 {
		cfg = conf[0]
	}

	staged := map[string]bool{}
	if !cfg.Restage {
		var err error
		if staged, err = store.StagedFiles(ctx); err != nil {
			return nil, fmt.Errorf("list staged files: %w", err)
		}
	}

	res := &StageResult{}
	var todo []model.LogFileRef
	for _, f := range files {
		if staged[f.Path] {
			res.Skipped++
			continue
		}
		todo = append(todo, f)
	}

	buf := duckdb.NewInsertBuffer(store, cfg.Buffer)
	source := logsource.Config{MaxLineSize: cfg.MaxLineSize}

	var (
		mu     sync.Mutex
		done   = make(map[string]int64, len(todo))
		failed atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(model.ClampParallel(cfg.Workers))
	for _, f := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if n, err := store.DeleteFileRows(gctx, f.Path); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				log.Printf("ingest: clearing %s: %v", f.Path, err)
				return nil
			} else if n > 0 {
				log.Printf("ingest: %s: replacing %d previously staged rows", f.Path, n)
			}
			p := NewProcessor(buf, extractor, f)
			err := logsource.NewFileSource(f.Path, source).Each(gctx, func(line string) error {
				p.ProcessLine(line)
				return nil
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				log.Printf("ingest: %s: %v", f.Path, err)
				return nil
			}
			mu.Lock()
			done[f.Path] = p.Rows()
			mu.Unlock()
			return nil
		})
	}
	werr := g.Wait()
	buf.Stop()
	if werr != nil {
		return nil, werr
	}
	if n := buf.Failed(); n > 0 {
		log.Printf("ingest: %d rows could not be written", n)
	}

	for _, f := range todo {
		n, ok := done[f.Path]
		if !ok {
			continue
		}
		if err := store.RecordStagedFile(ctx, f, n); err != nil {
			log.Printf("ingest: recording %s as staged: %v", f.Path, err)
		}
		res.Files++
	}
	res.Failed = int(failed.Load())
	res.Rows = buf.Flushed()
	return res, nil
}
