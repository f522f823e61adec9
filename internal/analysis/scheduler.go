package analysis

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/patterns"
)

// Scanner computes per-pattern stats for a list of files.
// scan.Engine satisfies it.
type Scanner interface {
	Scan(ctx context.Context, files []model.LogFileRef, set patterns.Set, w model.Window) (map[string]*model.MessageStats, error)
}

// Scheduler runs tasks on a bounded pool of goroutines.
type Scheduler struct {
	scanner Scanner
	workers int
}

// NewScheduler creates a scheduler with workers clamped to [1, 20].
func NewScheduler(scanner Scanner, workers int) *Scheduler {
	return &Scheduler{scanner: scanner, workers: model.ClampParallel(workers)}
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int { return s.workers }

// RunStats reports how a run went.
type RunStats struct {
	Tasks  int
	Failed int
}

// Run executes every task and returns the partition results in completion
// order. A task that fails or panics is logged and contributes nothing.
// Cancelling ctx abandons the run and returns ctx's error.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) ([]model.PartitionResult, RunStats, error) {
	stats := RunStats{Tasks: len(tasks)}
	results := make(chan model.PartitionResult, len(tasks))
	failures := make(chan struct{}, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := s.runTask(gctx, task)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("analysis: task %s/%s/%s failed: %v", task.Node, task.ProcessType, task.SubType, err)
				failures <- struct{}{}
				return nil
			}
			results <- res
			return nil
		})
	}
	werr := g.Wait()
	close(results)
	close(failures)
	if werr != nil {
		return nil, stats, werr
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	out := make([]model.PartitionResult, 0, len(tasks))
	for r := range results {
		out = append(out, r)
	}
	for range failures {
		stats.Failed++
	}
	return out, stats, nil
}

// runTask scans one partition, converting a panic into an error.
func (s *Scheduler) runTask(ctx context.Context, task Task) (res model.PartitionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	msgs, err := s.scanner.Scan(ctx, task.Files, task.Patterns, task.Window)
	if err != nil {
		return model.PartitionResult{}, err
	}
	return model.PartitionResult{
		Node:        task.Node,
		ProcessType: task.ProcessType,
		SubType:     task.SubType,
		Messages:    msgs,
	}, nil
}
