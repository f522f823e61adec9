package analysis

import (
	"strings"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// Filter restricts a run to some nodes and process types. The zero value
// keeps everything.
type Filter struct {
	Nodes []string
	Types []model.ProcessType
}

// Active reports whether the filter restricts anything.
func (f Filter) Active() bool { return len(f.Nodes) > 0 || len(f.Types) > 0 }

// KeepNode reports whether node passes the node filter (case-insensitive).
func (f Filter) KeepNode(node string) bool {
	if len(f.Nodes) == 0 {
		return true
	}
	for _, n := range f.Nodes {
		if strings.EqualFold(n, node) {
			return true
		}
	}
	return false
}

// KeepType reports whether pt passes the type filter.
func (f Filter) KeepType(pt model.ProcessType) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == pt {
			return true
		}
	}
	return false
}

// Ranges returns the ranges whose files pass the filter.
func (f Filter) Ranges(ranges []model.FileTimeRange) []model.FileTimeRange {
	if !f.Active() {
		return ranges
	}
	out := make([]model.FileTimeRange, 0, len(ranges))
	for _, r := range ranges {
		if f.KeepNode(r.File.Node) && f.KeepType(r.File.ProcessType) {
			out = append(out, r)
		}
	}
	return out
}
