// Package history describes the record kept for every translation request
// and the archive files those records are eventually moved into.
package history

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("history record not found")

type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeInvalidInput Outcome = "invalid_input"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeBackendError Outcome = "backend_error"
)

type Entry struct {
	EntryID    int64
	Direction  string
	InputText  string
	OutputText string
	Outcome    Outcome
	Detail     string
	Attempts   int
	LatencyMs  int64
	TraceID    string
	CreatedAt  time.Time
}

type ArchiveFile struct {
	FileID      int64
	ObjectPath  string
	RecordCount int64
	MinEntryID  int64
	MaxEntryID  int64
	SizeBytes   int64
	CreatedBy   string
	CreatedAt   time.Time
}

// Recorder persists one entry per translation outcome.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Store is the full history repository used by the archiver and reports.
type Store interface {
	Recorder
	ListUnarchived(ctx context.Context, limit int) ([]Entry, error)
	MarkArchived(ctx context.Context, file ArchiveFile, entryIDs []int64) (ArchiveFile, error)
	ListArchiveFiles(ctx context.Context, since time.Time) ([]ArchiveFile, error)
}
