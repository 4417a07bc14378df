package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	HistoryRoot        = "history"
	ParquetContentType = "application/vnd.apache.parquet"
)

// HistoryArchiveKey places an archive batch under a date partition named
// after the batch creation day, e.g.
// history/date=2026-03-01/entries-100-199.parquet.
func HistoryArchiveKey(createdAt time.Time, minEntryID, maxEntryID int64) (string, error) {
	if minEntryID <= 0 || maxEntryID < minEntryID {
		return "", fmt.Errorf("invalid entry id range %d-%d", minEntryID, maxEntryID)
	}
	day := createdAt.UTC()
	return path.Join(
		HistoryRoot,
		fmt.Sprintf("date=%04d-%02d-%02d", day.Year(), day.Month(), day.Day()),
		fmt.Sprintf("entries-%d-%d.parquet", minEntryID, maxEntryID),
	), nil
}

// CleanKey validates a caller-supplied key and joins it under prefix.
func CleanKey(prefix, key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if prefix = CleanPrefix(prefix); prefix != "" {
		return path.Join(prefix, cleaned), nil
	}
	return cleaned, nil
}

func CleanPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if prefix = path.Clean(prefix); prefix == "." {
		return ""
	}
	return prefix
}
