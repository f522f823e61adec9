// Package publish pushes finished reports to an OpenSearch index, one
// document per (node, process type, pattern) cell.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/report"
)

const defaultIndex = "bundlelens-reports"

// Config holds OpenSearch connection settings.
type Config struct {
	URL      string
	Username string
	Password string
	Index    string
}

// Publisher indexes report cells.
type Publisher struct {
	client *opensearch.Client
	index  string
}

// cellDoc is the indexed form of one report cell.
type cellDoc struct {
	RunID       string            `json:"run_id"`
	Node        string            `json:"node"`
	LogType     model.ProcessType `json:"logType"`
	Pattern     string            `json:"pattern"`
	Count       uint64            `json:"count"`
	StartTime   string            `json:"StartTime"`
	EndTime     string            `json:"EndTime"`
	Histogram   map[string]uint64 `json:"histogram"`
	WindowStart string            `json:"window_start"`
	WindowEnd   string            `json:"window_end"`
	Solution    string            `json:"solution,omitempty"`
}

// New returns nil when no URL is configured.
func New(cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: opensearch client: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = defaultIndex
	}
	return &Publisher{client: client, index: index}, nil
}

// bulkBody renders doc as an NDJSON bulk request. Document ids are
// derived from runID and the cell so republishing a run overwrites it.
func bulkBody(doc *report.Document, runID string) ([]byte, int, error) {
	var buf bytes.Buffer
	n := 0
	for _, node := range doc.NodeNames() {
		cells := doc.Nodes[node]
		types := make([]model.ProcessType, 0, len(cells))
		for pt := range cells {
			types = append(types, pt)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

		for _, pt := range types {
			msgs := cells[pt].LogMessages
			names := make([]string, 0, len(msgs))
			for name := range msgs {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				st := msgs[name]
				meta := map[string]map[string]string{
					"index": {"_id": fmt.Sprintf("%s|%s|%s|%s", runID, node, pt, name)},
				}
				body := cellDoc{
					RunID:       runID,
					Node:        node,
					LogType:     pt,
					Pattern:     name,
					Count:       st.Count,
					StartTime:   st.StartTime.UTC().Format(model.TimeLayout),
					EndTime:     st.EndTime.UTC().Format(model.TimeLayout),
					Histogram:   st.Histogram,
					WindowStart: doc.AnalysisConfig.StartTime,
					WindowEnd:   doc.AnalysisConfig.EndTime,
					Solution:    doc.AnalysisConfig.Solutions[name],
				}
				for _, v := range []any{meta, body} {
					line, err := json.Marshal(v)
					if err != nil {
						return nil, 0, err
					}
					buf.Write(line)
					buf.WriteByte('\n')
				}
				n++
			}
		}
	}
	return buf.Bytes(), n, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// Publish indexes every cell of doc under runID and returns the number of
// documents sent.
func (p *Publisher) Publish(ctx context.Context, doc *report.Document, runID string) (int, error) {
	body, n, err := bulkBody(doc, runID)
	if err != nil {
		return 0, fmt.Errorf("publish: encode: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	req := opensearchapi.BulkRequest{
		Index:   p.index,
		Body:    bytes.NewReader(body),
		Refresh: "true",
	}
	res, err := req.Do(ctx, p.client)
	if err != nil {
		return 0, fmt.Errorf("publish: bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("publish: bulk request failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return 0, fmt.Errorf("publish: decode bulk response: %w", err)
	}
	if br.Errors {
		failed := 0
		for _, item := range br.Items {
			for _, r := range item {
				if r.Error != nil {
					failed++
					log.Printf("publish: %s: %s", r.Error.Type, r.Error.Reason)
				}
			}
		}
		return n - failed, fmt.Errorf("publish: %d of %d documents rejected", failed, n)
	}
	log.Printf("publish: indexed %d documents into %s", n, p.index)
	return n, nil
}
