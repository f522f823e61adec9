package analysis

import (
	"testing"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

func statsAt(name string, minutes ...int) *model.MessageStats {
	st := model.NewMessageStats(name)
	for _, m := range minutes {
		st.Record(base.Add(time.Duration(m) * time.Minute))
	}
	return st
}

func TestMergeCombinesSameCell(t *testing.T) {
	info := statsAt("timeout", 1, 2)
	warn := statsAt("timeout", 2, 5)
	results := []model.PartitionResult{
		{Node: "n1", ProcessType: model.ProcessTServer, SubType: model.SubInfo, Messages: map[string]*model.MessageStats{"timeout": info}},
		{Node: "n1", ProcessType: model.ProcessTServer, SubType: model.SubWarn, Messages: map[string]*model.MessageStats{"timeout": warn}},
		{Node: "n2", ProcessType: model.ProcessTServer, SubType: model.SubInfo, Messages: map[string]*model.MessageStats{"timeout": statsAt("timeout", 3)}},
	}

	report := Merge(results)
	got := report.Lookup("n1", model.ProcessTServer, "timeout")
	if got == nil {
		t.Fatal("missing n1 timeout stats")
	}
	if got.Count != 4 || got.HistogramTotal() != 4 {
		t.Errorf("count = %d, histogram total = %d, want 4", got.Count, got.HistogramTotal())
	}
	if !got.StartTime.Equal(base.Add(time.Minute)) || !got.EndTime.Equal(base.Add(5*time.Minute)) {
		t.Errorf("bounds = %v..%v", got.StartTime, got.EndTime)
	}
	if got.Histogram[model.BucketKey(base.Add(2*time.Minute))] != 2 {
		t.Errorf("histogram = %v", got.Histogram)
	}
	if info.Count != 2 || warn.Count != 2 {
		t.Error("Merge modified its inputs")
	}
	if report.Lookup("n2", model.ProcessTServer, "timeout").Count != 1 {
		t.Error("n2 stats wrong")
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	a := model.PartitionResult{Node: "n1", ProcessType: model.ProcessTServer, Messages: map[string]*model.MessageStats{"p": statsAt("p", 0, 4)}}
	b := model.PartitionResult{Node: "n1", ProcessType: model.ProcessTServer, Messages: map[string]*model.MessageStats{"p": statsAt("p", 2)}}

	x := Merge([]model.PartitionResult{a, b}).Lookup("n1", model.ProcessTServer, "p")
	y := Merge([]model.PartitionResult{b, a}).Lookup("n1", model.ProcessTServer, "p")
	if x.Count != y.Count || !x.StartTime.Equal(y.StartTime) || !x.EndTime.Equal(y.EndTime) || len(x.Histogram) != len(y.Histogram) {
		t.Errorf("merge depends on order: %+v vs %+v", x, y)
	}
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil); len(got) != 0 {
		t.Errorf("Merge(nil) = %v, want empty", got)
	}
}
