package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var base = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// statsFrom records one occurrence per offset (in seconds from base).
func statsFrom(offsets []int) *MessageStats {
	s := NewMessageStats("p")
	for _, off := range offsets {
		s.Record(base.Add(time.Duration(off) * time.Second))
	}
	return s
}

func merged(a, b *MessageStats) *MessageStats {
	out := a.Clone()
	out.Merge(b)
	return out
}

func sameStats(a, b *MessageStats) bool {
	return a.Count == b.Count &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime) &&
		reflect.DeepEqual(a.Histogram, b.Histogram)
}

func TestMessageStatsMergeLaws(t *testing.T) {
	properties := gopter.NewProperties(nil)
	offsets := gen.SliceOf(gen.IntRange(0, 3600))

	properties.Property("merge is associative", prop.ForAll(
		func(x, y, z []int) bool {
			a, b, c := statsFrom(x), statsFrom(y), statsFrom(z)
			return sameStats(merged(merged(a, b), c), merged(a, merged(b, c)))
		},
		offsets, offsets, offsets,
	))

	properties.Property("merge is commutative", prop.ForAll(
		func(x, y, z []int) bool {
			a, b, c := statsFrom(x), statsFrom(y), statsFrom(z)
			return sameStats(merged(merged(a, b), c), merged(b, merged(a, c)))
		},
		offsets, offsets, offsets,
	))

	properties.Property("count equals histogram total", prop.ForAll(
		func(x, y []int) bool {
			m := merged(statsFrom(x), statsFrom(y))
			return m.Count == m.HistogramTotal() && m.Count == uint64(len(x)+len(y))
		},
		offsets, offsets,
	))

	properties.Property("bounds never shrink", prop.ForAll(
		func(x, y []int) bool {
			a := statsFrom(x)
			m := merged(a, statsFrom(y))
			if a.Count == 0 {
				return true
			}
			return !m.StartTime.After(a.StartTime) && !m.EndTime.Before(a.EndTime)
		},
		offsets, offsets,
	))

	properties.TestingRun(t)
}

func TestMessageStatsRecord(t *testing.T) {
	s := NewMessageStats("connection_error")
	s.Record(base.Add(30 * time.Second))
	s.Record(base)
	s.Record(base.Add(90 * time.Second))

	if s.Count != 3 {
		t.Fatalf("Count = %d, want 3", s.Count)
	}
	if !s.StartTime.Equal(base) || !s.EndTime.Equal(base.Add(90*time.Second)) {
		t.Errorf("bounds = [%v, %v]", s.StartTime, s.EndTime)
	}
	want := map[string]uint64{
		"2024-06-01T10:00:00Z": 2,
		"2024-06-01T10:01:00Z": 1,
	}
	if !reflect.DeepEqual(s.Histogram, want) {
		t.Errorf("Histogram = %v, want %v", s.Histogram, want)
	}
}

func TestMessageStatsJSONRoundTrip(t *testing.T) {
	s := NewMessageStats("timeout")
	s.Record(base.Add(61 * time.Second))

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	const want = `{"StartTime":"2024-06-01T10:01:01Z","EndTime":"2024-06-01T10:01:01Z","count":1,"histogram":{"2024-06-01T10:01:00Z":1}}`
	if string(data) != want {
		t.Errorf("Marshal = %s\nwant      %s", data, want)
	}

	var back MessageStats
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !sameStats(s, &back) {
		t.Errorf("round trip mismatch: %+v vs %+v", s, back)
	}
}

func TestAnalysisReportAddMergesDuplicates(t *testing.T) {
	r := AnalysisReport{}
	a := statsFrom([]int{0, 10})
	b := statsFrom([]int{120})

	r.Add("n1", ProcessTServer, a)
	r.Add("n1", ProcessTServer, b)

	got := r.Lookup("n1", ProcessTServer, "p")
	if got == nil || got.Count != 3 {
		t.Fatalf("Lookup = %+v, want count 3", got)
	}
	if a.Count != 2 {
		t.Errorf("Add mutated its input: count %d", a.Count)
	}
}

func TestWindowContainsInclusive(t *testing.T) {
	w := Window{Start: base, End: base.Add(5 * time.Minute)}
	cases := []struct {
		ts   time.Time
		want bool
	}{
		{base, true},
		{base.Add(5 * time.Minute), true},
		{base.Add(-time.Nanosecond), false},
		{base.Add(5*time.Minute + time.Nanosecond), false},
	}
	for _, c := range cases {
		if got := w.Contains(c.ts); got != c.want {
			t.Errorf("Contains(%v) = %v, want %v", c.ts, got, c.want)
		}
	}
}

func TestClampParallel(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 7: 7, 20: 20, 64: 20} {
		if got := ClampParallel(in); got != want {
			t.Errorf("ClampParallel(%d) = %d, want %d", in, got, want)
		}
	}
}
