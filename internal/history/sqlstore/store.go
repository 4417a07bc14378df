// Package sqlstore keeps translation history in Postgres or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/history"
	"github.com/sqltranslator/sqltranslator/internal/sqldb"
)

type Store struct {
	db      *sql.DB
	dialect sqldb.Dialect
	now     func() time.Time
}

var _ history.Store = (*Store)(nil)

func New(db *sql.DB, dialect sqldb.Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (s *Store) q(query string) string {
	return sqldb.Rebind(s.dialect, query)
}

func (s *Store) Record(ctx context.Context, entry history.Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO translation_history (direction, input_text, output_text, outcome, detail, attempts, latency_ms, trace_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.Direction,
		entry.InputText,
		entry.OutputText,
		string(entry.Outcome),
		entry.Detail,
		entry.Attempts,
		entry.LatencyMs,
		entry.TraceID,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record history entry: %w", err)
	}
	return nil
}

const entryColumns = `entry_id, direction, input_text, output_text, outcome, detail, attempts, latency_ms, trace_id, created_at`

func (s *Store) Get(ctx context.Context, entryID int64) (history.Entry, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT `+entryColumns+`
FROM translation_history
WHERE entry_id = ?`), entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Entry{}, history.ErrNotFound
		}
		return history.Entry{}, fmt.Errorf("get history entry: %w", err)
	}
	return entry, nil
}

// ListUnarchived returns the oldest entries not yet moved to an archive file.
func (s *Store) ListUnarchived(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT `+entryColumns+`
FROM translation_history
WHERE archive_file_id IS NULL
ORDER BY entry_id ASC
LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list unarchived entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]history.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// MarkArchived records the archive file and points every listed entry at it
// in one transaction. Entries already archived by a concurrent run abort the
// whole transaction.
func (s *Store) MarkArchived(ctx context.Context, file history.ArchiveFile, entryIDs []int64) (history.ArchiveFile, error) {
	if len(entryIDs) == 0 {
		return history.ArchiveFile{}, fmt.Errorf("mark archived: no entry ids")
	}
	createdAt := file.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return history.ArchiveFile{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, s.q(`
INSERT INTO history_archive_file (object_path, record_count, min_entry_id, max_entry_id, size_bytes, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING file_id`),
		file.ObjectPath,
		file.RecordCount,
		file.MinEntryID,
		file.MaxEntryID,
		file.SizeBytes,
		file.CreatedBy,
		createdAt,
	).Scan(&file.FileID); err != nil {
		return history.ArchiveFile{}, fmt.Errorf("insert archive file: %w", err)
	}

	args := make([]any, 0, len(entryIDs)+1)
	args = append(args, file.FileID)
	for _, id := range entryIDs {
		args = append(args, id)
	}
	result, err := tx.ExecContext(ctx, s.q(`
UPDATE translation_history
SET archive_file_id = ?
WHERE archive_file_id IS NULL AND entry_id IN (`+sqldb.Placeholders(len(entryIDs))+`)`), args...)
	if err != nil {
		return history.ArchiveFile{}, fmt.Errorf("mark entries archived: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return history.ArchiveFile{}, fmt.Errorf("mark entries archived rows affected: %w", err)
	}
	if affected != int64(len(entryIDs)) {
		return history.ArchiveFile{}, fmt.Errorf("mark entries archived: updated %d of %d entries", affected, len(entryIDs))
	}

	if err := tx.Commit(); err != nil {
		return history.ArchiveFile{}, fmt.Errorf("commit archive file: %w", err)
	}
	file.CreatedAt = createdAt
	return file, nil
}

func (s *Store) ListArchiveFiles(ctx context.Context, since time.Time) ([]history.ArchiveFile, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT file_id, object_path, record_count, min_entry_id, max_entry_id, size_bytes, created_by, created_at
FROM history_archive_file
WHERE created_at >= ?
ORDER BY file_id ASC`), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list archive files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := make([]history.ArchiveFile, 0)
	for rows.Next() {
		var file history.ArchiveFile
		var createdAt timestamp
		if err := rows.Scan(
			&file.FileID,
			&file.ObjectPath,
			&file.RecordCount,
			&file.MinEntryID,
			&file.MaxEntryID,
			&file.SizeBytes,
			&file.CreatedBy,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan archive file row: %w", err)
		}
		file.CreatedAt = createdAt.Time
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive file rows: %w", err)
	}
	return files, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (history.Entry, error) {
	var entry history.Entry
	var outcome string
	var createdAt timestamp
	if err := row.Scan(
		&entry.EntryID,
		&entry.Direction,
		&entry.InputText,
		&entry.OutputText,
		&outcome,
		&entry.Detail,
		&entry.Attempts,
		&entry.LatencyMs,
		&entry.TraceID,
		&createdAt,
	); err != nil {
		return history.Entry{}, err
	}
	entry.Outcome = history.Outcome(outcome)
	entry.CreatedAt = createdAt.Time
	return entry, nil
}
