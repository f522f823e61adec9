// Package analysis fans pattern scans out over a bounded worker pool and
// merges the partial results into one AnalysisReport. Two Aggregator
// implementations produce the same report: one scans raw files, the other
// runs grouped queries over staged rows.
package analysis

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/patterns"
)

var (
	// ErrNoFiles aborts a run that has nothing to analyse.
	ErrNoFiles = errors.New("analysis: no log files to analyze")
	// ErrEmptyPatternSet aborts a run when a process type has no patterns.
	ErrEmptyPatternSet = errors.New("analysis: pattern set is empty")
)

// Task is one independent unit of scan work: the files of a single
// (node, process type, sub-type) partition plus the immutable pattern set
// and window to apply.
type Task struct {
	Node        string
	ProcessType model.ProcessType
	SubType     model.SubType
	Files       []model.LogFileRef
	Patterns    patterns.Set
	Window      model.Window
}

type partitionKey struct {
	node string
	pt   model.ProcessType
	sub  model.SubType
}

func (k partitionKey) less(o partitionKey) bool {
	if k.node != o.node {
		return k.node < o.node
	}
	if k.pt != o.pt {
		return k.pt < o.pt
	}
	return k.sub < o.sub
}

// BuildTasks partitions files by (node, process type, sub-type) in a stable
// order. It fails with ErrNoFiles when files is empty and with
// ErrEmptyPatternSet when any partition's process type has no patterns.
func BuildTasks(files []model.LogFileRef, lib *patterns.Library, w model.Window) ([]Task, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	groups := make(map[partitionKey][]model.LogFileRef)
	for _, f := range files {
		k := partitionKey{node: f.Node, pt: f.ProcessType, sub: f.SubType}
		groups[k] = append(groups[k], f)
	}

	keys := make([]partitionKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	tasks := make([]Task, 0, len(keys))
	for _, k := range keys {
		set := lib.ForProcessType(k.pt)
		if len(set) == 0 {
			return nil, fmt.Errorf("%w for process type %s", ErrEmptyPatternSet, k.pt)
		}
		fs := groups[k]
		sort.Slice(fs, func(i, j int) bool { return fs[i].Path < fs[j].Path })
		tasks = append(tasks, Task{
			Node:        k.node,
			ProcessType: k.pt,
			SubType:     k.sub,
			Files:       fs,
			Patterns:    set,
			Window:      w,
		})
	}
	return tasks, nil
}
