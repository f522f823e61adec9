package duckdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinytelemetry/bundlelens/internal/logparse"
)

// quoteLiteral renders s as a SQL string literal. DuckDB table functions
// and COPY targets take literals, not bind parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// processTypeCase maps short process type spellings in column col to the
// canonical names used by the line-scan path.
func processTypeCase(col string) string {
	aliases := logparse.ProcessAliases()
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "CASE lower(CAST(%s AS VARCHAR))", col)
	for _, k := range keys {
		fmt.Fprintf(&b, " WHEN %s THEN %s", quoteLiteral(k), quoteLiteral(string(aliases[k])))
	}
	fmt.Fprintf(&b, " ELSE CAST(%s AS VARCHAR) END", col)
	return b.String()
}

// ImportParquet loads pre-extracted rows from Parquet files matching glob.
// Files must provide node_name, log_type, timestamp and message columns.
// It returns the number of rows inserted.
func (s *Store) ImportParquet(ctx context.Context, glob string) (int64, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO log_rows (node, process_type, sub_type, timestamp, message, source_file)
		SELECT CAST(node_name AS VARCHAR), %s, 'unknown',
			CAST(timestamp AS TIMESTAMP), CAST(message AS VARCHAR), filename
		FROM read_parquet(%s, filename = true)
		WHERE timestamp IS NOT NULL AND message IS NOT NULL`,
		processTypeCase("log_type"), quoteLiteral(glob))

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("import parquet %s: %w", glob, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("import parquet %s: %w", glob, err)
	}
	return n, nil
}

// ExportParquet writes all staged rows to dstPath in the layout ImportParquet
// reads. The file is written to a temporary name and renamed into place.
func (s *Store) ExportParquet(ctx context.Context, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tmp := dstPath + ".tmp"
	query := fmt.Sprintf(`
		COPY (
			SELECT node AS node_name, process_type AS log_type, timestamp, message
			FROM log_rows
			ORDER BY node, process_type, timestamp
		) TO %s (FORMAT PARQUET)`, quoteLiteral(tmp))

	s.mu.RLock()
	_, err := s.db.ExecContext(ctx, query)
	s.mu.RUnlock()
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("export parquet: %w", err)
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("export parquet: %w", err)
	}
	return nil
}
