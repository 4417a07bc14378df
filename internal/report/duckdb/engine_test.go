package duckdb

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/archive"
	"github.com/sqltranslator/sqltranslator/internal/history"
	"github.com/sqltranslator/sqltranslator/internal/storage"
)

func TestSummarizeAggregatesArchivedEntries(t *testing.T) {
	store := storage.NewMemoryStore()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := putArchive(t, store, 1, []history.Entry{
		{EntryID: 1, Direction: "human_to_sql", Outcome: history.OutcomeSuccess, Attempts: 1, LatencyMs: 100, CreatedAt: created},
		{EntryID: 2, Direction: "human_to_sql", Outcome: history.OutcomeSuccess, Attempts: 3, LatencyMs: 300, CreatedAt: created},
	})
	second := putArchive(t, store, 2, []history.Entry{
		{EntryID: 3, Direction: "sql_to_human", Outcome: history.OutcomeTimeout, Attempts: 3, LatencyMs: 45000, CreatedAt: created},
		{EntryID: 4, Direction: "human_to_sql", Outcome: history.OutcomeSuccess, Attempts: 2, LatencyMs: 200, CreatedAt: created},
	})

	rows, err := NewEngine(store).Summarize(context.Background(), []history.ArchiveFile{first, second})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	h2s := rows[0]
	if h2s.Direction != "human_to_sql" || h2s.Outcome != "success" || h2s.Count != 3 {
		t.Fatalf("rows[0] = %+v", h2s)
	}
	if math.Abs(h2s.AvgAttempts-2) > 1e-9 {
		t.Fatalf("AvgAttempts = %v", h2s.AvgAttempts)
	}
	if h2s.P95LatencyMs < 280 || h2s.P95LatencyMs > 300 {
		t.Fatalf("P95LatencyMs = %v", h2s.P95LatencyMs)
	}
	if rows[1].Direction != "sql_to_human" || rows[1].Outcome != "timeout" || rows[1].Count != 1 {
		t.Fatalf("rows[1] = %+v", rows[1])
	}
}

func TestSummarizeEmptyFileListSkipsEngine(t *testing.T) {
	rows, err := NewEngine(nil).Summarize(context.Background(), nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("Summarize(nil) = %v, %v", rows, err)
	}
}

func TestSummarizeMissingObject(t *testing.T) {
	_, err := NewEngine(storage.NewMemoryStore()).Summarize(context.Background(), []history.ArchiveFile{{FileID: 1, ObjectPath: "history/missing.parquet"}})
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("error = %v, want ErrObjectNotFound", err)
	}
}

func putArchive(t *testing.T, store storage.ObjectStore, fileID int64, entries []history.Entry) history.ArchiveFile {
	t.Helper()
	encoded, err := archive.EncodeEntries(entries)
	if err != nil {
		t.Fatalf("EncodeEntries() error = %v", err)
	}
	key, err := storage.HistoryArchiveKey(entries[0].CreatedAt, encoded.MinEntryID, encoded.MaxEntryID)
	if err != nil {
		t.Fatalf("HistoryArchiveKey() error = %v", err)
	}
	info, err := store.Put(context.Background(), key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: storage.ParquetContentType})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return history.ArchiveFile{FileID: fileID, ObjectPath: key, RecordCount: encoded.RecordCount, SizeBytes: info.Size}
}
