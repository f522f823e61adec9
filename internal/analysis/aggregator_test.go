package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/duckdb"
	"github.com/tinytelemetry/bundlelens/internal/ingest"
	"github.com/tinytelemetry/bundlelens/internal/metadata"
	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/patterns"
	"github.com/tinytelemetry/bundlelens/internal/scan"
	"github.com/tinytelemetry/bundlelens/internal/timestamp"
)

func bundle(t *testing.T) []model.FileTimeRange {
	t.Helper()
	dir := t.TempDir()
	return []model.FileTimeRange{
		writeFile(t, dir, "n1", "yb-tserver.INFO", model.ProcessTServer,
			"I0601 10:00:05.000000 1 ts.cc:1] tablet not found: abc",
			"I0601 10:00:40.000000 1 ts.cc:2] tablet not found after rpc timed out",
			"  continuation line that timed out",
			"I0601 10:03:00.000000 1 ts.cc:3] heartbeat",
			"W0601 10:04:10.000000 1 ts.cc:4] request TIMED OUT",
		),
		writeFile(t, dir, "n2", "yb-master.INFO", model.ProcessMaster,
			"I0601 10:02:00.000000 1 m.cc:1] Tablet Not Found for table x",
		),
		writeFile(t, dir, "n1", "postgresql-2024-06-01.log", model.ProcessPostgres,
			"2024-06-01 10:01:15.250000 UTC [10] LOG:  connection refused by peer",
			"2024-06-01 10:01:59 UTC [10] LOG:  connection refused again",
			"2024-06-01 10:09:00 UTC [10] LOG:  checkpoint complete",
		),
	}
}

func lineScan(ranges []model.FileTimeRange, mode ...metadata.MatchMode) *LineScanAggregator {
	m := metadata.MatchBounds
	if len(mode) > 0 {
		m = mode[0]
	}
	return &LineScanAggregator{
		Ranges:    ranges,
		MatchMode: m,
		Scheduler: NewScheduler(scan.NewEngine(timestamp.NewExtractor(2024)), 3),
	}
}

func stagedStore(t *testing.T, ranges []model.FileTimeRange) *duckdb.Store {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	files := make([]model.LogFileRef, len(ranges))
	for i, r := range ranges {
		files[i] = r.File
	}
	res, err := ingest.StageFiles(context.Background(), store, timestamp.NewExtractor(2024), files)
	if err != nil {
		t.Fatalf("StageFiles: %v", err)
	}
	if res.Files != len(files) {
		t.Fatalf("staged %d files, want %d", res.Files, len(files))
	}
	return store
}

func columnar(store *duckdb.Store) *ColumnarAggregator {
	return &ColumnarAggregator{Store: store, Lister: store, Workers: 3}
}

func mustJSON(t *testing.T, r model.AnalysisReport) string {
	t.Helper()
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestLineScanAggregate(t *testing.T) {
	report, err := lineScan(bundle(t)).Aggregate(context.Background(), Request{Library: loadLibrary(t), Window: span(0, 10)})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	tnf := report.Lookup("n1", model.ProcessTServer, "tablet_not_found")
	if tnf == nil || tnf.Count != 2 {
		t.Fatalf("tablet_not_found = %+v, want count 2", tnf)
	}
	timeout := report.Lookup("n1", model.ProcessTServer, "timeout")
	if timeout == nil || timeout.Count != 2 {
		t.Fatalf("timeout = %+v, want count 2 (continuation + W line)", timeout)
	}
	if got := timeout.Histogram[model.BucketKey(base)]; got != 1 {
		t.Errorf("continuation line bucket = %d, want 1", got)
	}
	if report.Lookup("n2", model.ProcessMaster, "tablet_not_found").Count != 1 {
		t.Error("n2 master count wrong")
	}
	conn := report.Lookup("n1", model.ProcessPostgres, "connection_error")
	if conn == nil || conn.Count != 2 {
		t.Fatalf("connection_error = %+v, want count 2", conn)
	}
	if report.Lookup("n1", model.ProcessPostgres, "timeout") != nil {
		t.Error("universe pattern applied to postgres")
	}
}

func TestAggregatorsAgree(t *testing.T) {
	ranges := bundle(t)
	lib := loadLibrary(t)
	store := stagedStore(t, ranges)

	for _, req := range []Request{
		{Library: lib, Window: span(0, 10)},
		{Library: lib, Window: span(1, 3)},
		{Library: lib, Window: span(0, 10), Filter: Filter{Nodes: []string{"N1"}}},
		{Library: lib, Window: span(0, 10), Filter: Filter{Types: []model.ProcessType{model.ProcessPostgres}}},
		{Library: lib.WithOverrides([]string{"timed out", "tablet"}), Window: span(0, 10)},
	} {
		// Staged rows carry no per-file bounds, so compare against a
		// line scan that keeps every file overlapping the window.
		want, err := lineScan(ranges, metadata.MatchOverlap).Aggregate(context.Background(), req)
		if err != nil {
			t.Fatalf("line scan: %v", err)
		}
		got, err := columnar(store).Aggregate(context.Background(), req)
		if err != nil {
			t.Fatalf("columnar: %v", err)
		}
		if a, b := mustJSON(t, want), mustJSON(t, got); a != b {
			t.Errorf("reports differ for %+v\nline scan: %s\ncolumnar:  %s", req.Filter, a, b)
		}
	}
}

func TestAggregatorsAgreeOnRawBytesAndWindowEnd(t *testing.T) {
	dir := t.TempDir()
	ranges := []model.FileTimeRange{
		writeFile(t, dir, "n1", "postgresql-2024-06-01.log", model.ProcessPostgres,
			"2024-06-01 10:01:00.000000 UTC [10] LOG:  connection refused \xff\xfe",
			"2024-06-01 10:05:30.000000 UTC [10] LOG:  connection refused",
			"2024-06-01 10:06:00.000000 UTC [10] LOG:  connection refused",
		),
		writeFile(t, dir, "n1", "yb-tserver.INFO", model.ProcessTServer,
			"I0601 10:05:59.000000 1 ts.cc:1] rpc timed out",
		),
	}
	req := Request{Library: loadLibrary(t), Window: span(0, 5)}

	want, err := lineScan(ranges, metadata.MatchOverlap).Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("line scan: %v", err)
	}
	got, err := columnar(stagedStore(t, ranges)).Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("columnar: %v", err)
	}
	if a, b := mustJSON(t, want), mustJSON(t, got); a != b {
		t.Errorf("reports differ\nline scan: %s\ncolumnar:  %s", a, b)
	}

	conn := got.Lookup("n1", model.ProcessPostgres, "connection_error")
	if conn == nil || conn.Count != 2 {
		t.Fatalf("connection_error = %+v, want count 2", conn)
	}
	if n := conn.Histogram[model.BucketKey(base.Add(5*time.Minute))]; n != 1 {
		t.Errorf("10:05 bucket = %d, want 1", n)
	}
	if to := got.Lookup("n1", model.ProcessTServer, "timeout"); to == nil || to.Count != 1 {
		t.Errorf("timeout = %+v, want count 1", to)
	}
}

func TestLineScanEmptySelection(t *testing.T) {
	report, err := lineScan(bundle(t)).Aggregate(context.Background(), Request{Library: loadLibrary(t), Window: span(60, 90)})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(report) != 0 {
		t.Errorf("report = %v, want empty", report)
	}
}

func TestAggregateNoFiles(t *testing.T) {
	if _, err := lineScan(nil).Aggregate(context.Background(), Request{Library: loadLibrary(t), Window: span(0, 1)}); !errors.Is(err, ErrNoFiles) {
		t.Errorf("line scan err = %v, want ErrNoFiles", err)
	}
	store := stagedStore(t, nil)
	if _, err := columnar(store).Aggregate(context.Background(), Request{Library: loadLibrary(t), Window: span(0, 1)}); !errors.Is(err, ErrNoFiles) {
		t.Errorf("columnar err = %v, want ErrNoFiles", err)
	}
}

func TestAggregateEmptyPatternSet(t *testing.T) {
	ranges := bundle(t)
	lib := &patterns.Library{Universe: loadLibrary(t).Universe}
	req := Request{Library: lib, Window: span(0, 10)}
	if _, err := lineScan(ranges).Aggregate(context.Background(), req); !errors.Is(err, ErrEmptyPatternSet) {
		t.Errorf("line scan err = %v, want ErrEmptyPatternSet", err)
	}
	if _, err := columnar(stagedStore(t, ranges)).Aggregate(context.Background(), req); !errors.Is(err, ErrEmptyPatternSet) {
		t.Errorf("columnar err = %v, want ErrEmptyPatternSet", err)
	}
}

func TestQueriesExcludeEarlierPatterns(t *testing.T) {
	req := Request{Library: loadLibrary(t), Window: span(0, 10)}
	qs, err := Queries(req, []model.ProcessType{model.ProcessPostgres, model.ProcessTServer, model.ProcessMaster})
	if err != nil {
		t.Fatalf("Queries: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("got %d queries, want 3", len(qs))
	}
	for _, q := range qs {
		switch q.Name {
		case "connection_error":
			if len(q.Types) != 1 || q.Types[0] != model.ProcessPostgres || len(q.Exclude) != 0 {
				t.Errorf("postgres query = %+v", q)
			}
		case "tablet_not_found":
			if len(q.Exclude) != 0 || len(q.Types) != 2 {
				t.Errorf("first universe query = %+v", q)
			}
		case "timeout":
			if len(q.Exclude) != 1 || q.Exclude[0] != "tablet not found" {
				t.Errorf("second universe query excludes %v", q.Exclude)
			}
		default:
			t.Errorf("unexpected query %q", q.Name)
		}
		if !q.Start.Equal(req.Window.Start) || !q.End.Equal(req.Window.End) {
			t.Errorf("query %q window = %v..%v", q.Name, q.Start, q.End)
		}
	}
}

func TestFilter(t *testing.T) {
	f := Filter{Nodes: []string{"N1"}, Types: []model.ProcessType{model.ProcessTServer}}
	if !f.KeepNode("n1") || f.KeepNode("n2") {
		t.Error("node filter should be case-insensitive and exclusive")
	}
	if !f.KeepType(model.ProcessTServer) || f.KeepType(model.ProcessPostgres) {
		t.Error("type filter wrong")
	}
	if (Filter{}).Active() || !f.Active() {
		t.Error("Active wrong")
	}
	if got := f.Ranges(bundle(t)); len(got) != 1 || got[0].File.Node != "n1" || got[0].File.ProcessType != model.ProcessTServer {
		t.Errorf("Ranges = %+v", got)
	}
}
