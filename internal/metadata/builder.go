// Package metadata bounds log files in time and selects the files that
// fall inside a query window.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/bundlelens/internal/logparse"
	"github.com/tinytelemetry/bundlelens/internal/logsource"
	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/timestamp"
)

// EdgeLines is how many lines are read at each end of a file.
const EdgeLines = 10

// ErrOpen indicates the file could not be opened at all.
var ErrOpen = errors.New("metadata: cannot open file")

// BuilderConfig holds tunable parameters for the builder.
type BuilderConfig struct {
	MaxLineSize int
	Cache       *RangeCache
}

// Builder computes FileTimeRange values.
type Builder struct {
	extractor *timestamp.Extractor
	source    logsource.Config
	cache     *RangeCache
}

// NewBuilder creates a builder that resolves year-less timestamps with extractor.
func NewBuilder(extractor *timestamp.Extractor, conf ...BuilderConfig) *Builder {
	b := &Builder{extractor: extractor}
	if len(conf) > 0 {
		b.source = logsource.Config{MaxLineSize: conf[0].MaxLineSize}
		b.cache = conf[0].Cache
	}
	return b
}

// Build bounds one file. It returns an error wrapping ErrOpen only when the
// file cannot be opened; a file without parseable timestamps spans the
// whole default year.
func (b *Builder) Build(path string) (*model.FileTimeRange, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano(), year: b.extractor.Year()}
	if r, ok := b.cache.get(key); ok {
		return &r, nil
	}

	rc, err := logsource.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	rc.Close()

	start := b.extractor.LowerBound()
	head, err := logsource.Head(path, EdgeLines, b.source)
	if err != nil {
		log.Printf("metadata: reading head of %s: %v", path, err)
	}
	for _, line := range head {
		if ts, ok := b.extractor.Parse(line); ok {
			start = ts
			break
		}
	}

	end := b.extractor.UpperBound()
	tail, err := logsource.Tail(path, EdgeLines, b.source)
	if err != nil {
		log.Printf("metadata: reading tail of %s: %v", path, err)
	}
	for i := len(tail) - 1; i >= 0; i-- {
		if ts, ok := b.extractor.Parse(tail[i]); ok {
			end = ts
			break
		}
	}

	if start.After(end) {
		start, end = end, start
	}

	r := model.FileTimeRange{File: logparse.Classify(path), Start: start, End: end}
	b.cache.add(key, r)
	return &r, nil
}

// BuildAll bounds every path using up to workers goroutines. Files that
// cannot be opened are logged and left out. Output follows input order.
func (b *Builder) BuildAll(ctx context.Context, paths []string, workers int) ([]model.FileTimeRange, error) {
	results := make([]*model.FileTimeRange, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(model.ClampParallel(workers))
	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := b.Build(path)
			if err != nil {
				log.Printf("metadata: %v", err)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.FileTimeRange, 0, len(paths))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
