package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/metadata"
	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/report"
)

func TestParseWindow(t *testing.T) {
	w, err := parseWindow("0601 10:00", "0601 10:05", 2024)
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if !w.Start.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)) || !w.End.Equal(time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC)) {
		t.Errorf("window = %v..%v", w.Start, w.End)
	}

	w, err = parseWindow("", "", 2023)
	if err != nil {
		t.Fatalf("parseWindow defaults: %v", err)
	}
	if w != model.YearWindow(2023) {
		t.Errorf("default window = %v, want whole year", w)
	}

	for _, tc := range []struct{ from, to string }{
		{"0601 10:05", "0601 10:00"},
		{"June 1", ""},
		{"0229 10:00", ""},
	} {
		if _, err := parseWindow(tc.from, tc.to, 2023); err == nil {
			t.Errorf("parseWindow(%q, %q) succeeded, want error", tc.from, tc.to)
		}
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	cfg := appConfig{Parallel: 5, Types: []string{"pg,ts"}}
	if err := cfg.validate(now); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ReferenceYear != 2025 || cfg.MatchMode != metadata.MatchBounds {
		t.Errorf("derived = year %d mode %q", cfg.ReferenceYear, cfg.MatchMode)
	}
	if len(cfg.TypeList) != 2 || cfg.TypeList[0] != model.ProcessPostgres || cfg.TypeList[1] != model.ProcessTServer {
		t.Errorf("TypeList = %v", cfg.TypeList)
	}

	for _, bad := range []appConfig{
		{Parallel: 0},
		{Parallel: 21},
		{Parallel: 5, WindowMatch: "sideways"},
		{Parallel: 5, ReferenceYear: 12},
	} {
		if err := bad.validate(now); err == nil {
			t.Errorf("validate(%+v) succeeded, want error", bad)
		}
	}
}

func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"yb-support-bundle-n1/yb-data/tserver/logs/yb-tserver.INFO": strings.Join([]string{
			"I0601 10:00:05.000000 1 ts.cc:1] tablet not found: abc",
			"I0601 10:02:00.000000 1 ts.cc:2] Timed out waiting for response",
		}, "\n") + "\n",
		"yb-support-bundle-n1/yb-data/tserver/logs/postgresql-2024-06-01.log": "2024-06-01 10:01:00 UTC [1] LOG: connection refused\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("bundlelens %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func totalCount(doc *report.Document) uint64 {
	var n uint64
	doc.Report().Each(func(_ string, _ model.ProcessType, st *model.MessageStats) { n += st.Count })
	return n
}

func TestAnalyzeStageColumnar(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	bundle := writeBundle(t)
	work := t.TempDir()
	scanOut := filepath.Join(work, "scan.json")
	colOut := filepath.Join(work, "columnar.json")
	db := filepath.Join(work, "staged.duckdb")
	common := []string{"--reference-year", "2024", "--window-match", "overlap", "--db-path", db}

	out := execute(t, append([]string{"analyze", bundle, "-o", scanOut}, common...)...)
	if !strings.Contains(out, "report written to") {
		t.Errorf("analyze output = %q", out)
	}
	scanned, err := report.Load(scanOut)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if totalCount(scanned) == 0 {
		t.Fatal("line scan found nothing")
	}

	out = execute(t, append([]string{"stage", bundle, "-o", filepath.Join(work, "stage.json")}, common...)...)
	if !strings.Contains(out, "staged 2 files") {
		t.Errorf("stage output = %q", out)
	}

	execute(t, append([]string{"columnar", "-o", colOut}, common...)...)
	columnar, err := report.Load(colOut)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a, b := totalCount(scanned), totalCount(columnar); a != b {
		t.Errorf("line scan counted %d, columnar %d", a, b)
	}
}

func TestVersionCommand(t *testing.T) {
	if out := execute(t, "version"); !strings.Contains(out, "Version:") {
		t.Errorf("version output = %q", out)
	}
}
