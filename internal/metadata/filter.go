package metadata

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// MatchMode selects how a file range is tested against the query window.
type MatchMode string

const (
	// MatchBounds includes a file when its start or its end lies inside the
	// window. A file that spans the whole window is left out.
	MatchBounds MatchMode = "bounds"
	// MatchOverlap includes any file whose range intersects the window.
	MatchOverlap MatchMode = "overlap"
)

// ParseMatchMode validates a mode name. Empty means MatchBounds.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchBounds:
		return MatchBounds, nil
	case MatchOverlap:
		return MatchOverlap, nil
	default:
		return "", fmt.Errorf("unknown window match mode %q (want %q or %q)", s, MatchBounds, MatchOverlap)
	}
}

// Includes reports whether r is selected by w under mode.
func (m MatchMode) Includes(r model.FileTimeRange, w model.Window) bool {
	if m == MatchOverlap {
		return !r.Start.After(w.End) && !r.End.Before(w.Start)
	}
	return w.Contains(r.Start) || w.Contains(r.End)
}

// Select returns the files whose ranges are selected by w, in input order.
func Select(ranges []model.FileTimeRange, w model.Window, mode MatchMode) []model.LogFileRef {
	var out []model.LogFileRef
	for _, r := range ranges {
		if mode.Includes(r, w) {
			out = append(out, r.File)
		}
	}
	return out
}
