package model

import (
	"context"
	"time"
)

// RowWriter provides append-oriented writes of staged log rows.
// InsertRowBatch returns how many rows were written; rows it could not
// write are dropped.
type RowWriter interface {
	InsertRowBatch(rows []*LogRow) (int, error)
}

// PatternQuery describes one grouped pattern aggregation over staged rows.
type PatternQuery struct {
	Name    string
	Expr    string        // RE2 expression, matched case-insensitively
	Exclude []string      // expressions of higher-priority patterns in the same set
	Types   []ProcessType // empty = every process type
	Start   time.Time     // zero = unbounded
	End     time.Time     // zero = unbounded
}

// PatternAggregate is the result of a PatternQuery for one (node, process type) cell.
type PatternAggregate struct {
	Node        string
	ProcessType ProcessType
	Stats       *MessageStats
}

// PatternQuerier runs grouped pattern aggregations over staged rows.
type PatternQuerier interface {
	PatternStats(ctx context.Context, q PatternQuery) ([]PatternAggregate, error)
}
