// Package report aggregates archived translation history into a usage
// summary per direction and outcome.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/history"
)

const DefaultWindow = 7 * 24 * time.Hour

type Row struct {
	Direction    string  `json:"direction"`
	Outcome      string  `json:"outcome"`
	Count        int64   `json:"count"`
	AvgAttempts  float64 `json:"avg_attempts"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}

type Report struct {
	Since        time.Time `json:"since"`
	Files        int       `json:"files"`
	Entries      int64     `json:"entries"`
	ScannedBytes int64     `json:"scanned_bytes"`
	DurationMs   int64     `json:"duration_ms"`
	Rows         []Row     `json:"rows"`
}

// Summarizer reads the given archive files and aggregates their rows.
type Summarizer interface {
	Summarize(ctx context.Context, files []history.ArchiveFile) ([]Row, error)
}

type FileLister interface {
	ListArchiveFiles(ctx context.Context, since time.Time) ([]history.ArchiveFile, error)
}

type Service struct {
	Files  FileLister
	Engine Summarizer
	Clock  func() time.Time
}

// Build reports on archive files created at or after since. A zero since
// means the last DefaultWindow.
func (s *Service) Build(ctx context.Context, since time.Time) (Report, error) {
	if s.Files == nil || s.Engine == nil {
		return Report{}, fmt.Errorf("report requires archive file listing and an engine")
	}
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	start := clock()
	if since.IsZero() {
		since = start.Add(-DefaultWindow)
	}
	since = since.UTC()

	files, err := s.Files.ListArchiveFiles(ctx, since)
	if err != nil {
		return Report{}, fmt.Errorf("list archive files: %w", err)
	}

	out := Report{Since: since, Files: len(files), Rows: []Row{}}
	if len(files) == 0 {
		return out, nil
	}
	for _, file := range files {
		out.ScannedBytes += file.SizeBytes
	}

	rows, err := s.Engine.Summarize(ctx, files)
	if err != nil {
		return Report{}, fmt.Errorf("summarize archive files: %w", err)
	}
	for _, row := range rows {
		out.Entries += row.Count
	}
	out.Rows = rows
	out.DurationMs = clock().Sub(start).Milliseconds()
	return out, nil
}
