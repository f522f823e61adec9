package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageStats accumulates occurrences of one pattern.
// Count always equals the sum of Histogram values.
type MessageStats struct {
	PatternName string
	StartTime   time.Time
	EndTime     time.Time
	Count       uint64
	Histogram   map[string]uint64
}

// NewMessageStats returns an empty accumulator for the named pattern.
func NewMessageStats(name string) *MessageStats {
	return &MessageStats{PatternName: name, Histogram: make(map[string]uint64)}
}

// BucketKey returns the histogram key for ts: the UTC minute with seconds zeroed.
func BucketKey(ts time.Time) string {
	return ts.UTC().Truncate(time.Minute).Format(BucketLayout)
}

// Record counts one occurrence at ts.
func (m *MessageStats) Record(ts time.Time) {
	m.RecordN(BucketKey(ts), ts, ts, 1)
}

// RecordN adds n occurrences to bucket key, widening the bounds to [first, last].
func (m *MessageStats) RecordN(key string, first, last time.Time, n uint64) {
	if n == 0 {
		return
	}
	if m.Histogram == nil {
		m.Histogram = make(map[string]uint64)
	}
	m.widen(first, last)
	m.Count += n
	m.Histogram[key] += n
}

func (m *MessageStats) widen(start, end time.Time) {
	if m.Count == 0 {
		m.StartTime, m.EndTime = start, end
		return
	}
	if start.Before(m.StartTime) {
		m.StartTime = start
	}
	if end.After(m.EndTime) {
		m.EndTime = end
	}
}

// Merge folds o into m: counts and buckets add, bounds widen.
// Empty stats are the identity element.
func (m *MessageStats) Merge(o *MessageStats) {
	if o == nil || o.Count == 0 {
		return
	}
	if m.Histogram == nil {
		m.Histogram = make(map[string]uint64, len(o.Histogram))
	}
	m.widen(o.StartTime, o.EndTime)
	m.Count += o.Count
	for k, v := range o.Histogram {
		m.Histogram[k] += v
	}
}

// Clone returns a deep copy of m.
func (m *MessageStats) Clone() *MessageStats {
	c := &MessageStats{
		PatternName: m.PatternName,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		Count:       m.Count,
		Histogram:   make(map[string]uint64, len(m.Histogram)),
	}
	for k, v := range m.Histogram {
		c.Histogram[k] = v
	}
	return c
}

// HistogramTotal sums the histogram buckets.
func (m *MessageStats) HistogramTotal() uint64 {
	var total uint64
	for _, v := range m.Histogram {
		total += v
	}
	return total
}

type messageStatsJSON struct {
	StartTime string            `json:"StartTime"`
	EndTime   string            `json:"EndTime"`
	Count     uint64            `json:"count"`
	Histogram map[string]uint64 `json:"histogram"`
}

// MarshalJSON encodes the stats in the report wire format.
func (m *MessageStats) MarshalJSON() ([]byte, error) {
	h := m.Histogram
	if h == nil {
		h = map[string]uint64{}
	}
	return json.Marshal(messageStatsJSON{
		StartTime: m.StartTime.UTC().Format(TimeLayout),
		EndTime:   m.EndTime.UTC().Format(TimeLayout),
		Count:     m.Count,
		Histogram: h,
	})
}

// UnmarshalJSON decodes the report wire format. PatternName is left for the caller to set.
func (m *MessageStats) UnmarshalJSON(data []byte) error {
	var raw messageStatsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := time.Parse(TimeLayout, raw.StartTime)
	if err != nil {
		return fmt.Errorf("StartTime: %w", err)
	}
	end, err := time.Parse(TimeLayout, raw.EndTime)
	if err != nil {
		return fmt.Errorf("EndTime: %w", err)
	}
	m.StartTime, m.EndTime, m.Count = start, end, raw.Count
	m.Histogram = raw.Histogram
	if m.Histogram == nil {
		m.Histogram = make(map[string]uint64)
	}
	return nil
}

// PartitionResult is the output of one scan task.
type PartitionResult struct {
	Node        string
	ProcessType ProcessType
	SubType     SubType
	Messages    map[string]*MessageStats
}

// AnalysisReport maps node -> process type -> pattern name -> stats.
type AnalysisReport map[string]map[ProcessType]map[string]*MessageStats

// Add merges stats into the (node, processType, stats.PatternName) cell.
// The report keeps its own copy; stats is never aliased.
func (r AnalysisReport) Add(node string, pt ProcessType, stats *MessageStats) {
	if stats == nil {
		return
	}
	byType, ok := r[node]
	if !ok {
		byType = make(map[ProcessType]map[string]*MessageStats)
		r[node] = byType
	}
	msgs, ok := byType[pt]
	if !ok {
		msgs = make(map[string]*MessageStats)
		byType[pt] = msgs
	}
	if cur, ok := msgs[stats.PatternName]; ok {
		cur.Merge(stats)
		return
	}
	msgs[stats.PatternName] = stats.Clone()
}

// Lookup returns the stats of one cell, or nil.
func (r AnalysisReport) Lookup(node string, pt ProcessType, pattern string) *MessageStats {
	return r[node][pt][pattern]
}

// Each visits every cell.
func (r AnalysisReport) Each(fn func(node string, pt ProcessType, stats *MessageStats)) {
	for node, byType := range r {
		for pt, msgs := range byType {
			for _, s := range msgs {
				fn(node, pt, s)
			}
		}
	}
}
