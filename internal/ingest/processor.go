// Package ingest stages raw log files into the column store as rows of
// (node, process type, timestamp, message), resolving timestamps exactly as
// the line scanner does so both aggregation paths see the same tuples.
package ingest

import (
	"time"

	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/timestamp"
)

// RowSink accepts staged rows. duckdb.InsertBuffer satisfies it.
type RowSink interface {
	Add(row *model.LogRow)
}

// Processor converts the lines of one file into rows. Lines without a
// timestamp inherit the previous line's, starting from Jan 1 of the
// reference year. A Processor is not safe for concurrent use.
type Processor struct {
	sink      RowSink
	extractor *timestamp.Extractor
	file      model.LogFileRef
	previous  time.Time
	rows      int64
}

// NewProcessor creates a processor for file.
func NewProcessor(sink RowSink, extractor *timestamp.Extractor, file model.LogFileRef) *Processor {
	return &Processor{
		sink:      sink,
		extractor: extractor,
		file:      file,
		previous:  extractor.LowerBound(),
	}
}

// ProcessLine stages one line and returns the row handed to the sink.
func (p *Processor) ProcessLine(line string) *model.LogRow {
	ts := p.extractor.Extract(line, p.previous)
	p.previous = ts

	row := &model.LogRow{
		Node:        p.file.Node,
		ProcessType: p.file.ProcessType,
		SubType:     p.file.SubType,
		Timestamp:   ts,
		Message:     line,
		SourceFile:  p.file.Path,
	}
	if p.sink != nil {
		p.sink.Add(row)
	}
	p.rows++
	return row
}

// Rows returns how many lines have been processed.
func (p *Processor) Rows() int64 { return p.rows }
