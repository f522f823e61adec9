// Package report turns an AnalysisReport into the JSON document handed to
// downstream consumers, with run configuration and warnings attached.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// ErrNoReport is returned by Load when the path holds no report.
var ErrNoReport = errors.New("report: no report found")

// Cell is the per (node, process type) entry of the document.
type Cell struct {
	Node        string                         `json:"node"`
	LogType     model.ProcessType              `json:"logType"`
	LogMessages map[string]*model.MessageStats `json:"logMessages"`
}

// Warning is a diagnostic attached alongside the report.
type Warning struct {
	Message           string `json:"message"`
	AdditionalDetails string `json:"additional_details,omitempty"`
	Level             string `json:"level"`
	Type              string `json:"type"`
}

// Config records how the report was produced.
type Config struct {
	StartTime     string            `json:"start_time"`
	EndTime       string            `json:"end_time"`
	ReferenceYear int               `json:"reference_year"`
	Parallel      int               `json:"parallel_threads"`
	Engine        string            `json:"engine"`
	NodeFilter    []string          `json:"node_filter"`
	TypeFilter    []string          `json:"log_type_filter"`
	HistogramMode []string          `json:"histogram_mode"`
	Solutions     map[string]string `json:"solutions,omitempty"`
	GeneratedAt   string            `json:"generated_at"`
}

// Document is the serialized report.
type Document struct {
	Nodes          map[string]map[model.ProcessType]*Cell `json:"nodes"`
	Warnings       []Warning                              `json:"warnings"`
	AnalysisConfig Config                                 `json:"analysis_config"`
}

// Options describes the run a document is built for.
type Options struct {
	Window        model.Window
	ReferenceYear int
	Parallel      int
	Engine        string
	NodeFilter    []string
	TypeFilter    []model.ProcessType
	HistogramMode []string
	// Solutions maps pattern names to remediation text. Only patterns
	// present in the report are copied into the document.
	Solutions map[string]string
	Now       func() time.Time
}

// Build assembles the document for r.
func Build(r model.AnalysisReport, opts Options) *Document {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	doc := &Document{
		Nodes:    make(map[string]map[model.ProcessType]*Cell, len(r)),
		Warnings: collectWarnings(opts),
		AnalysisConfig: Config{
			StartTime:     opts.Window.Start.UTC().Format(model.TimeLayout),
			EndTime:       opts.Window.End.UTC().Format(model.TimeLayout),
			ReferenceYear: opts.ReferenceYear,
			Parallel:      opts.Parallel,
			Engine:        opts.Engine,
			NodeFilter:    nonNil(opts.NodeFilter),
			TypeFilter:    typeNames(opts.TypeFilter),
			HistogramMode: nonNil(opts.HistogramMode),
			GeneratedAt:   now().UTC().Format(model.TimeLayout),
		},
	}

	used := make(map[string]bool)
	for node, byType := range r {
		cells := make(map[model.ProcessType]*Cell, len(byType))
		for pt, msgs := range byType {
			cell := &Cell{Node: node, LogType: pt, LogMessages: make(map[string]*model.MessageStats, len(msgs))}
			for name, st := range msgs {
				cell.LogMessages[name] = st
				used[name] = true
			}
			cells[pt] = cell
		}
		doc.Nodes[node] = cells
	}

	for name := range used {
		if s, ok := opts.Solutions[name]; ok && s != "" {
			if doc.AnalysisConfig.Solutions == nil {
				doc.AnalysisConfig.Solutions = make(map[string]string)
			}
			doc.AnalysisConfig.Solutions[name] = s
		}
	}
	return doc
}

func collectWarnings(opts Options) []Warning {
	var custom []string
	if len(opts.NodeFilter) > 0 {
		custom = append(custom, "node_filter: "+strings.Join(opts.NodeFilter, ","))
	}
	if len(opts.TypeFilter) > 0 {
		custom = append(custom, "log_type_filter: "+strings.Join(typeNames(opts.TypeFilter), ","))
	}
	if len(opts.HistogramMode) > 0 {
		custom = append(custom, "histogram_mode: "+strings.Join(opts.HistogramMode, ","))
	}
	if len(custom) == 0 {
		return []Warning{}
	}
	return []Warning{{
		Message:           "This report was generated with custom options. Results may not include all logs.",
		AdditionalDetails: "Custom options used: " + strings.Join(custom, "; "),
		Level:             "info",
		Type:              "custom_options",
	}}
}

func typeNames(types []model.ProcessType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Report converts the document back into an AnalysisReport.
func (d *Document) Report() model.AnalysisReport {
	out := model.AnalysisReport{}
	for node, cells := range d.Nodes {
		for pt, cell := range cells {
			for name, st := range cell.LogMessages {
				if st == nil {
					continue
				}
				st.PatternName = name
				out.Add(node, pt, st)
			}
		}
	}
	return out
}

// Lookup returns one cell's stats, or nil.
func (d *Document) Lookup(node string, pt model.ProcessType, pattern string) *model.MessageStats {
	cell := d.Nodes[node][pt]
	if cell == nil {
		return nil
	}
	return cell.LogMessages[pattern]
}

// NodeNames returns the report's nodes, sorted.
func (d *Document) NodeNames() []string {
	out := make([]string, 0, len(d.Nodes))
	for n := range d.Nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Save writes the document as indented JSON, creating parent directories.
// The file is replaced atomically.
func Save(doc *Document, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	log.Printf("report: saved to %s", path)
	return nil
}

// Load reads a document written by Save.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoReport, path)
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	if doc.Nodes == nil {
		doc.Nodes = map[string]map[model.ProcessType]*Cell{}
	}
	for _, cells := range doc.Nodes {
		for _, cell := range cells {
			for name, st := range cell.LogMessages {
				if st != nil {
					st.PatternName = name
				}
			}
		}
	}
	return &doc, nil
}
