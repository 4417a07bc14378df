// Package duckdb summarizes archived history Parquet files with an embedded
// DuckDB instance.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqltranslator/sqltranslator/internal/history"
	"github.com/sqltranslator/sqltranslator/internal/report"
	"github.com/sqltranslator/sqltranslator/internal/storage"
)

const summarySQL = `
SELECT
	direction,
	outcome,
	COUNT(*) AS entries,
	AVG(attempts) AS avg_attempts,
	QUANTILE_CONT(latency_ms, 0.95) AS p95_latency_ms
FROM history
GROUP BY direction, outcome
ORDER BY direction, outcome`

type Engine struct {
	Store storage.ObjectStore
}

var _ report.Summarizer = (*Engine)(nil)

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

// Summarize downloads each file to a scratch directory, exposes them as one
// view and runs the per-direction, per-outcome aggregate.
func (e *Engine) Summarize(ctx context.Context, files []history.ArchiveFile) ([]report.Row, error) {
	if len(files) == 0 {
		return []report.Row{}, nil
	}
	if e.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	workDir, err := os.MkdirTemp("", "sqltranslator-report-")
	if err != nil {
		return nil, fmt.Errorf("create report temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make([]string, 0, len(files))
	for _, file := range files {
		localPath := filepath.Join(workDir, fmt.Sprintf("archive-%d.parquet", file.FileID))
		if err := e.download(ctx, file.ObjectPath, localPath); err != nil {
			return nil, err
		}
		localPaths = append(localPaths, localPath)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := `CREATE OR REPLACE VIEW history AS SELECT * FROM read_parquet(` + quoteStringArray(localPaths) + `)`
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return nil, fmt.Errorf("create history view: %w", err)
	}

	rows, err := db.QueryContext(ctx, summarySQL)
	if err != nil {
		return nil, fmt.Errorf("run summary query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]report.Row, 0)
	for rows.Next() {
		var row report.Row
		var avgAttempts, p95 sql.NullFloat64
		if err := rows.Scan(&row.Direction, &row.Outcome, &row.Count, &avgAttempts, &p95); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		row.AvgAttempts = avgAttempts.Float64
		row.P95LatencyMs = p95.Float64
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return out, nil
}

func (e *Engine) download(ctx context.Context, objectPath, localPath string) error {
	reader, err := e.Store.Get(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("get archive object %q: %w", objectPath, err)
	}
	defer func() { _ = reader.Close() }()
	if err := writeFile(localPath, reader); err != nil {
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	return nil
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
