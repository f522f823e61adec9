package metadata

import (
	"testing"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

func rangeOf(name string, start, end time.Time) model.FileTimeRange {
	return model.FileTimeRange{File: model.LogFileRef{Path: name}, Start: start, End: end}
}

func paths(refs []model.LogFileRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Path
	}
	return out
}

func TestSelectBounds(t *testing.T) {
	ws, we := at(6, 1, 10, 0), at(6, 1, 10, 5)
	w := model.Window{Start: ws, End: we}

	ranges := []model.FileTimeRange{
		rangeOf("ends-at-start", at(6, 1, 9, 0), ws),
		rangeOf("ends-before", at(6, 1, 9, 0), ws.Add(-time.Minute)),
		rangeOf("starts-at-end", we, at(6, 1, 11, 0)),
		rangeOf("inside", at(6, 1, 10, 1), at(6, 1, 10, 2)),
		rangeOf("spans", at(6, 1, 9, 0), at(6, 1, 11, 0)),
		rangeOf("after", at(6, 1, 11, 0), at(6, 1, 12, 0)),
	}

	got := paths(Select(ranges, w, MatchBounds))
	want := []string{"ends-at-start", "starts-at-end", "inside"}
	if len(got) != len(want) {
		t.Fatalf("Select = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Select[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	overlap := paths(Select(ranges, w, MatchOverlap))
	if len(overlap) != 4 || overlap[3] != "spans" {
		t.Errorf("Select(overlap) = %v", overlap)
	}
}

func TestParseMatchMode(t *testing.T) {
	for in, want := range map[string]MatchMode{"": MatchBounds, "bounds": MatchBounds, " Overlap ": MatchOverlap} {
		got, err := ParseMatchMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMatchMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMatchMode("contains"); err == nil {
		t.Error("ParseMatchMode(contains) returned nil error")
	}
}
