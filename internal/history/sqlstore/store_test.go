package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sqltranslator/sqltranslator/internal/history"
	"github.com/sqltranslator/sqltranslator/internal/migrations"
	"github.com/sqltranslator/sqltranslator/internal/sqldb"
)

func TestRecordUsesPostgresPlaceholders(t *testing.T) {
	db, mock := newSQLMock(t)
	store := New(db, sqldb.Postgres)
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO translation_history (direction, input_text, output_text, outcome, detail, attempts, latency_ms, trace_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)).
		WithArgs("human_to_sql", "red cars", "SELECT 1", "success", "", 1, int64(42), "trace-1", createdAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Record(context.Background(), history.Entry{
		Direction:  "human_to_sql",
		InputText:  "red cars",
		OutputText: "SELECT 1",
		Outcome:    history.OutcomeSuccess,
		Attempts:   1,
		LatencyMs:  42,
		TraceID:    "trace-1",
		CreatedAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestGetReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	store := New(db, sqldb.Postgres)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE entry_id = $1`)).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 404)
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, history.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestMarkArchivedRollsBackOnPartialUpdate(t *testing.T) {
	db, mock := newSQLMock(t)
	store := New(db, sqldb.Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO history_archive_file`)).
		WillReturnRows(sqlmock.NewRows([]string{"file_id"}).AddRow(int64(7)))
	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE translation_history
SET archive_file_id = $1
WHERE archive_file_id IS NULL AND entry_id IN ($2, $3)`)).
		WithArgs(int64(7), int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := store.MarkArchived(context.Background(), history.ArchiveFile{ObjectPath: "history/x.parquet", RecordCount: 2}, []int64{1, 2})
	if err == nil || !strings.Contains(err.Error(), "updated 1 of 2") {
		t.Fatalf("MarkArchived() error = %v, want partial update error", err)
	}
	assertSQLMock(t, mock)
}

func TestMarkArchivedRequiresEntries(t *testing.T) {
	db, mock := newSQLMock(t)
	store := New(db, sqldb.Postgres)
	if _, err := store.MarkArchived(context.Background(), history.ArchiveFile{}, nil); err == nil {
		t.Fatal("expected error without entry ids")
	}
	assertSQLMock(t, mock)
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	store := newSQLiteStore(t, ctx)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, outcome := range []history.Outcome{history.OutcomeSuccess, history.OutcomeTimeout, history.OutcomeSuccess} {
		if err := store.Record(ctx, history.Entry{
			Direction: "human_to_sql",
			InputText: "red cars",
			Outcome:   outcome,
			Attempts:  i + 1,
			LatencyMs: int64(100 * (i + 1)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := store.ListUnarchived(ctx, 2)
	if err != nil {
		t.Fatalf("ListUnarchived() error = %v", err)
	}
	if len(entries) != 2 || entries[0].EntryID >= entries[1].EntryID {
		t.Fatalf("ListUnarchived() = %+v", entries)
	}
	if entries[1].Outcome != history.OutcomeTimeout || !entries[0].CreatedAt.Equal(base) {
		t.Fatalf("unexpected entry contents: %+v", entries)
	}

	got, err := store.Get(ctx, entries[1].EntryID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Attempts != 2 || got.LatencyMs != 200 {
		t.Fatalf("Get() = %+v", got)
	}

	file, err := store.MarkArchived(ctx, history.ArchiveFile{
		ObjectPath:  "history/date=2026-03-01/entries-1-2.parquet",
		RecordCount: 2,
		MinEntryID:  entries[0].EntryID,
		MaxEntryID:  entries[1].EntryID,
		SizeBytes:   512,
		CreatedBy:   "test",
		CreatedAt:   base.Add(time.Minute),
	}, []int64{entries[0].EntryID, entries[1].EntryID})
	if err != nil {
		t.Fatalf("MarkArchived() error = %v", err)
	}
	if file.FileID == 0 {
		t.Fatal("FileID not assigned")
	}

	remaining, err := store.ListUnarchived(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnarchived() error = %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining unarchived = %d, want 1", len(remaining))
	}

	if _, err := store.MarkArchived(ctx, history.ArchiveFile{ObjectPath: "history/dup.parquet", RecordCount: 1}, []int64{entries[0].EntryID}); err == nil {
		t.Fatal("expected error re-archiving an archived entry")
	}

	files, err := store.ListArchiveFiles(ctx, base)
	if err != nil {
		t.Fatalf("ListArchiveFiles() error = %v", err)
	}
	if len(files) != 1 || files[0].ObjectPath != file.ObjectPath || files[0].RecordCount != 2 {
		t.Fatalf("ListArchiveFiles() = %+v", files)
	}
	later, err := store.ListArchiveFiles(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListArchiveFiles(later) error = %v", err)
	}
	if len(later) != 0 {
		t.Fatalf("ListArchiveFiles(later) = %+v", later)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestTimestampScan(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, src := range []any{want, "2026-03-01 12:00:00", []byte("2026-03-01T12:00:00Z"), "2026-03-01 12:00:00+00:00"} {
		var ts timestamp
		if err := ts.Scan(src); err != nil {
			t.Fatalf("Scan(%v) error = %v", src, err)
		}
		if !ts.Equal(want) {
			t.Fatalf("Scan(%v) = %v", src, ts.Time)
		}
	}
	var ts timestamp
	if err := ts.Scan("yesterday"); err == nil {
		t.Fatal("expected parse error")
	}
}

func newSQLiteStore(t *testing.T, ctx context.Context) *Store {
	t.Helper()
	db, dialect, err := sqldb.Open(ctx, sqldb.DBConfig{DSN: "sqlite://" + filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("sqldb.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	runner, err := migrations.NewRunner(dialect)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if _, err := runner.Up(ctx, db, 0); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}
	return New(db, dialect)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
