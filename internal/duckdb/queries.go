package duckdb

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// caseInsensitive is the RE2 flag prefix applied to every pattern.
const caseInsensitive = "(?i)"

// patternWhere builds the WHERE clause selecting the rows claimed by q:
// rows matching q.Expr and none of the higher-priority q.Exclude.
func patternWhere(q model.PatternQuery) (string, []any) {
	conds := []string{"regexp_matches(message, ?)"}
	args := []any{caseInsensitive + q.Expr}

	for _, ex := range q.Exclude {
		conds = append(conds, "NOT regexp_matches(message, ?)")
		args = append(args, caseInsensitive+ex)
	}

	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, pt := range q.Types {
			placeholders[i] = "?"
			args = append(args, string(pt))
		}
		conds = append(conds, "process_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	if !q.Start.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.Start.UTC())
	}
	if !q.End.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, q.End.UTC())
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// PatternStats computes MIN/MAX/COUNT and per-minute counts of one pattern
// for every (node, process type) cell that has matches. The query runs on
// a dedicated connection so concurrent callers share no session state.
func (s *Store) PatternStats(ctx context.Context, q model.PatternQuery) ([]model.PatternAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	where, args := patternWhere(q)
	query := fmt.Sprintf(`
		SELECT node, process_type,
			date_trunc('minute', timestamp) AS minute,
			MIN(timestamp) AS first_seen,
			MAX(timestamp) AS last_seen,
			COUNT(*) AS count
		FROM log_rows
		%s
		GROUP BY node, process_type, minute
		ORDER BY node, process_type, minute`, where)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", q.Name, err)
	}
	defer rows.Close()

	type cell struct {
		node string
		pt   model.ProcessType
	}
	cells := make(map[cell]*model.MessageStats)
	for rows.Next() {
		var (
			node, pt            string
			minute, first, last time.Time
			count               int64
		)
		if err := rows.Scan(&node, &pt, &minute, &first, &last, &count); err != nil {
			log.Printf("duckdb scan error (PatternStats): %v", err)
			continue
		}
		k := cell{node: node, pt: model.ProcessType(pt)}
		st, ok := cells[k]
		if !ok {
			st = model.NewMessageStats(q.Name)
			cells[k] = st
		}
		st.RecordN(model.BucketKey(minute), first.UTC(), last.UTC(), uint64(count))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", q.Name, err)
	}

	out := make([]model.PatternAggregate, 0, len(cells))
	for k, st := range cells {
		out = append(out, model.PatternAggregate{Node: k.node, ProcessType: k.pt, Stats: st})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Node != out[j].Node {
			return out[i].Node < out[j].Node
		}
		return out[i].ProcessType < out[j].ProcessType
	})
	return out, nil
}

// RowCount returns the number of staged rows.
func (s *Store) RowCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_rows`).Scan(&n)
	return n, err
}

// PartitionCount is the number of staged rows of one (node, process type) cell.
type PartitionCount struct {
	Node        string
	ProcessType model.ProcessType
	Rows        int64
}

// PartitionCounts returns staged row counts grouped by node and process type.
func (s *Store) PartitionCounts(ctx context.Context) ([]PartitionCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT node, process_type, COUNT(*) AS count
		FROM log_rows
		GROUP BY node, process_type
		ORDER BY node, process_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PartitionCount
	for rows.Next() {
		var pc PartitionCount
		var pt string
		if err := rows.Scan(&pc.Node, &pt, &pc.Rows); err != nil {
			log.Printf("duckdb scan error (PartitionCounts): %v", err)
			continue
		}
		pc.ProcessType = model.ProcessType(pt)
		results = append(results, pc)
	}
	return results, rows.Err()
}

// ProcessTypes returns the distinct process types of staged rows, sorted.
func (s *Store) ProcessTypes(ctx context.Context) ([]model.ProcessType, error) {
	counts, err := s.PartitionCounts(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[model.ProcessType]bool)
	var out []model.ProcessType
	for _, pc := range counts {
		if !seen[pc.ProcessType] {
			seen[pc.ProcessType] = true
			out = append(out, pc.ProcessType)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
