package analysis

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/bundlelens/internal/metadata"
	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/patterns"
)

// Request is what every Aggregator needs to produce a report.
type Request struct {
	Library *patterns.Library
	Window  model.Window
	Filter  Filter
}

// Aggregator computes an AnalysisReport.
type Aggregator interface {
	Aggregate(ctx context.Context, req Request) (model.AnalysisReport, error)
}

// LineScanAggregator scans raw files: window filter, partitioning, bounded
// fan-out, merge.
type LineScanAggregator struct {
	Ranges    []model.FileTimeRange
	MatchMode metadata.MatchMode
	Scheduler *Scheduler
}

// Aggregate implements Aggregator.
func (a *LineScanAggregator) Aggregate(ctx context.Context, req Request) (model.AnalysisReport, error) {
	if len(a.Ranges) == 0 {
		return nil, ErrNoFiles
	}
	ranges := req.Filter.Ranges(a.Ranges)
	files := metadata.Select(ranges, req.Window, a.MatchMode)
	log.Printf("analysis: %d of %d files selected for window %s - %s",
		len(files), len(a.Ranges), req.Window.Start.Format(model.TimeLayout), req.Window.End.Format(model.TimeLayout))
	if len(files) == 0 {
		return model.AnalysisReport{}, nil
	}

	tasks, err := BuildTasks(files, req.Library, req.Window)
	if err != nil {
		return nil, err
	}
	results, stats, err := a.Scheduler.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}
	if stats.Failed > 0 {
		log.Printf("analysis: %d of %d tasks failed, report is partial", stats.Failed, stats.Tasks)
	}
	return Merge(results), nil
}

// ColumnarAggregator runs one grouped query per pattern against staged
// rows. Queries run concurrently on their own pool; each takes its own
// connection.
type ColumnarAggregator struct {
	Store   model.PatternQuerier
	Lister  PartitionLister
	Workers int
}

// PartitionLister reports which (node, process type) cells hold rows.
type PartitionLister interface {
	ProcessTypes(ctx context.Context) ([]model.ProcessType, error)
}

// Queries expands req into per-pattern queries over the process types
// present in the store. Each query excludes rows claimed by earlier
// patterns of the same set so the first match wins, as in a line scan.
func Queries(req Request, present []model.ProcessType) ([]model.PatternQuery, error) {
	var types []model.ProcessType
	for _, pt := range present {
		if req.Filter.KeepType(pt) {
			types = append(types, pt)
		}
	}
	if len(types) == 0 {
		return nil, ErrNoFiles
	}

	groups := make(map[string][]model.ProcessType)
	var order []string
	sets := make(map[string]patterns.Set)
	for _, pt := range types {
		set := req.Library.ForProcessType(pt)
		if len(set) == 0 {
			return nil, fmt.Errorf("%w for process type %s", ErrEmptyPatternSet, pt)
		}
		key := "universe"
		switch {
		case req.Library.HistogramMode():
			key = "histogram"
		case pt == model.ProcessPostgres:
			key = "postgres"
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			sets[key] = set
		}
		groups[key] = append(groups[key], pt)
	}

	var queries []model.PatternQuery
	for _, key := range order {
		set := sets[key]
		exprs := set.Exprs()
		for i, p := range set {
			queries = append(queries, model.PatternQuery{
				Name:    p.Name,
				Expr:    p.Expr,
				Exclude: exprs[:i],
				Types:   groups[key],
				Start:   req.Window.Start,
				End:     req.Window.End,
			})
		}
	}
	return queries, nil
}

// Aggregate implements Aggregator. A query that fails is logged and its
// pattern is left out of the report.
func (a *ColumnarAggregator) Aggregate(ctx context.Context, req Request) (model.AnalysisReport, error) {
	present, err := a.Lister.ProcessTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list process types: %w", err)
	}
	queries, err := Queries(req, present)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []model.PartitionResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(model.ClampParallel(a.Workers))
	for _, q := range queries {
		g.Go(func() error {
			aggs, err := a.Store.PatternStats(gctx, q)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("analysis: columnar query for %q failed: %v", q.Name, err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, agg := range aggs {
				if !req.Filter.KeepNode(agg.Node) {
					continue
				}
				results = append(results, model.PartitionResult{
					Node:        agg.Node,
					ProcessType: agg.ProcessType,
					Messages:    map[string]*model.MessageStats{q.Name: agg.Stats},
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Merge(results), nil
}
