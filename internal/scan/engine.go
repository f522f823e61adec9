// Package scan streams log files line by line and accumulates per-pattern
// statistics for the lines that fall inside a time window.
package scan

import (
	"context"
	"log"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/logsource"
	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/patterns"
	"github.com/tinytelemetry/bundlelens/internal/timestamp"
)

// EngineConfig holds tunable parameters for the engine.
type EngineConfig struct {
	MaxLineSize int
}

// Engine scans raw log files. It holds no per-scan state and is safe for
// concurrent use.
type Engine struct {
	extractor *timestamp.Extractor
	source    logsource.Config
}

// NewEngine creates an engine that resolves year-less timestamps with extractor.
func NewEngine(extractor *timestamp.Extractor, conf ...EngineConfig) *Engine {
	e := &Engine{extractor: extractor}
	if len(conf) > 0 {
		e.source = logsource.Config{MaxLineSize: conf[0].MaxLineSize}
	}
	return e
}

// Scan matches every line of files against set and returns stats keyed by
// pattern name. Files that cannot be read are logged and skipped; lines
// already counted from a failing file are kept. The only error returned is
// ctx's.
func (e *Engine) Scan(ctx context.Context, files []model.LogFileRef, set patterns.Set, w model.Window) (map[string]*model.MessageStats, error) {
	stats := make(map[string]*model.MessageStats)
	if len(set) == 0 {
		return stats, nil
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.scanFile(ctx, f, set, w, stats); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("scan: %s: %v", f.Path, err)
		}
	}
	return stats, nil
}

func (e *Engine) scanFile(ctx context.Context, f model.LogFileRef, set patterns.Set, w model.Window, stats map[string]*model.MessageStats) error {
	previous := e.extractor.LowerBound()
	src := logsource.NewFileSource(f.Path, e.source)
	return src.Each(ctx, func(line string) error {
		ts := e.extractor.Extract(line, previous)
		previous = ts
		if !w.Contains(ts) {
			return nil
		}
		p, ok := set.Match(line)
		if !ok {
			return nil
		}
		record(stats, p.Name, ts)
		return nil
	})
}

func record(stats map[string]*model.MessageStats, name string, ts time.Time) {
	s, ok := stats[name]
	if !ok {
		s = model.NewMessageStats(name)
		stats[name] = s
	}
	s.Record(ts)
}
