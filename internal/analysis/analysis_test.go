package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/patterns"
)

const testLibrary = `
universe:
  log_messages:
    - name: tablet_not_found
      pattern: "tablet not found"
      solution: "check tablet placement"
    - name: timeout
      pattern: "timed out"
pg:
  log_messages:
    - name: connection_error
      pattern: "connection refused"
`

func loadLibrary(t *testing.T) *patterns.Library {
	t.Helper()
	lib, err := patterns.Load(strings.NewReader(testLibrary))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return lib
}

var base = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func span(fromMin, toMin int) model.Window {
	return model.Window{
		Start: base.Add(time.Duration(fromMin) * time.Minute),
		End:   base.Add(time.Duration(toMin) * time.Minute),
	}
}

// writeFile writes lines under dir/node/name and returns its ref and range.
func writeFile(t *testing.T, dir, node, name string, pt model.ProcessType, lines ...string) model.FileTimeRange {
	t.Helper()
	path := filepath.Join(dir, node, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return model.FileTimeRange{
		File:  model.LogFileRef{Path: path, Node: node, ProcessType: pt, SubType: model.SubInfo},
		Start: base,
		End:   base.Add(10 * time.Minute),
	}
}
