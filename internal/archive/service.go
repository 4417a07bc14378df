// Package archive moves translation history out of the SQL store into
// Parquet files on object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sqltranslator/sqltranslator/internal/config"
	"github.com/sqltranslator/sqltranslator/internal/history"
	"github.com/sqltranslator/sqltranslator/internal/observability"
	"github.com/sqltranslator/sqltranslator/internal/storage"
)

const DefaultSchedule = "@every 5m"

type Config struct {
	Schedule  string
	BatchSize int
	CreatedBy string
	// MaxBatchesPerRun bounds how much backlog one RunOnce drains.
	MaxBatchesPerRun int
}

func ConfigFrom(cfg config.ArchiveConfig) Config {
	return Config{
		Schedule:  cfg.Schedule,
		BatchSize: cfg.BatchSize,
		CreatedBy: cfg.CreatedBy,
	}
}

type Service struct {
	Store       history.Store
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type RunResult struct {
	Files   []history.ArchiveFile
	Entries int
}

// Run archives once immediately, then on every tick of the cron schedule
// until ctx ends. Overlapping ticks are skipped.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	schedule, err := cron.ParseStandard(s.Config.Schedule)
	if err != nil {
		return fmt.Errorf("parse archive schedule %q: %w", s.Config.Schedule, err)
	}

	runner := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	runner.Schedule(schedule, cron.FuncJob(func() { s.runLogged(ctx) }))

	s.runLogged(ctx)
	runner.Start()
	<-ctx.Done()
	<-runner.Stop().Done()
	return nil
}

func (s *Service) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := s.RunOnce(ctx)
	if err != nil {
		s.Logger.ErrorContext(ctx, "history archive run failed",
			slog.Int("archived_entries", result.Entries),
			slog.Any("error", err),
		)
		return
	}
	if result.Entries > 0 {
		s.Logger.InfoContext(ctx, "history archive run complete",
			slog.Int("files", len(result.Files)),
			slog.Int("archived_entries", result.Entries),
		)
	}
}

// RunOnce drains unarchived entries in BatchSize chunks. It stops early on a
// short batch, on MaxBatchesPerRun, or on the first error.
func (s *Service) RunOnce(ctx context.Context) (RunResult, error) {
	s.ensureDefaults()
	if s.Store == nil || s.ObjectStore == nil {
		return RunResult{}, fmt.Errorf("archive requires a history store and an object store")
	}

	var result RunResult
	for batch := 0; batch < s.Config.MaxBatchesPerRun; batch++ {
		entries, err := s.Store.ListUnarchived(ctx, s.Config.BatchSize)
		if err != nil {
			observability.ObserveArchiveRun("error", result.Entries)
			return result, fmt.Errorf("list unarchived entries: %w", err)
		}
		if len(entries) == 0 {
			break
		}
		file, err := s.archiveBatch(ctx, entries)
		if err != nil {
			observability.ObserveArchiveRun("error", result.Entries)
			return result, err
		}
		result.Files = append(result.Files, file)
		result.Entries += len(entries)
		if len(entries) < s.Config.BatchSize {
			break
		}
	}

	status := "empty"
	if result.Entries > 0 {
		status = "success"
	}
	observability.ObserveArchiveRun(status, result.Entries)
	return result, nil
}

func (s *Service) archiveBatch(ctx context.Context, entries []history.Entry) (history.ArchiveFile, error) {
	encoded, err := EncodeEntries(entries)
	if err != nil {
		return history.ArchiveFile{}, fmt.Errorf("encode history to parquet: %w", err)
	}

	now := s.Clock().UTC()
	key, err := storage.HistoryArchiveKey(now, encoded.MinEntryID, encoded.MaxEntryID)
	if err != nil {
		return history.ArchiveFile{}, fmt.Errorf("build archive key: %w", err)
	}

	info, err := s.ObjectStore.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: storage.ParquetContentType})
	if err != nil {
		return history.ArchiveFile{}, fmt.Errorf("put archive object: %w", err)
	}
	size := info.Size
	if size <= 0 {
		size = int64(len(encoded.Data))
	}

	file, err := s.Store.MarkArchived(ctx, history.ArchiveFile{
		ObjectPath:  key,
		RecordCount: encoded.RecordCount,
		MinEntryID:  encoded.MinEntryID,
		MaxEntryID:  encoded.MaxEntryID,
		SizeBytes:   size,
		CreatedBy:   s.Config.CreatedBy,
		CreatedAt:   now,
	}, encoded.EntryIDs)
	if err != nil {
		// The object is unreferenced; a later run re-archives the same entries.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if delErr := s.ObjectStore.Delete(cleanupCtx, key); delErr != nil {
			s.Logger.WarnContext(ctx, "delete orphaned archive object failed",
				slog.String("object_path", key),
				slog.Any("error", delErr),
			)
		}
		return history.ArchiveFile{}, fmt.Errorf("mark entries archived: %w", err)
	}

	s.Logger.InfoContext(ctx, "history archive file written",
		slog.String("object_path", key),
		slog.Int64("record_count", file.RecordCount),
		slog.Int64("min_entry_id", file.MinEntryID),
		slog.Int64("max_entry_id", file.MaxEntryID),
		slog.Int64("size_bytes", file.SizeBytes),
	)
	return file, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.Config.Schedule == "" {
		s.Config.Schedule = DefaultSchedule
	}
	if s.Config.BatchSize <= 0 {
		s.Config.BatchSize = 1000
	}
	if s.Config.MaxBatchesPerRun <= 0 {
		s.Config.MaxBatchesPerRun = 10
	}
	if s.Config.CreatedBy == "" {
		s.Config.CreatedBy = "sqltranslator-archiver"
	}
}
