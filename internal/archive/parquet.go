package archive

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/sqltranslator/sqltranslator/internal/history"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int64
	MinEntryID  int64
	MaxEntryID  int64
	EntryIDs    []int64
}

// Row is the archived column layout. Report queries read these column names.
type Row struct {
	EntryID         int64  `parquet:"entry_id"`
	Direction       string `parquet:"direction"`
	InputText       string `parquet:"input_text"`
	OutputText      string `parquet:"output_text"`
	Outcome         string `parquet:"outcome"`
	Detail          string `parquet:"detail"`
	Attempts        int32  `parquet:"attempts"`
	LatencyMs       int64  `parquet:"latency_ms"`
	TraceID         string `parquet:"trace_id"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

func EncodeEntries(entries []history.Entry) (EncodeResult, error) {
	if len(entries) == 0 {
		return EncodeResult{}, fmt.Errorf("entries are required")
	}

	rows := make([]Row, 0, len(entries))
	result := EncodeResult{EntryIDs: make([]int64, 0, len(entries))}
	for _, entry := range entries {
		if entry.EntryID <= 0 {
			return EncodeResult{}, fmt.Errorf("entry without id cannot be archived")
		}
		rows = append(rows, Row{
			EntryID:         entry.EntryID,
			Direction:       entry.Direction,
			InputText:       entry.InputText,
			OutputText:      entry.OutputText,
			Outcome:         string(entry.Outcome),
			Detail:          entry.Detail,
			Attempts:        int32(entry.Attempts),
			LatencyMs:       entry.LatencyMs,
			TraceID:         entry.TraceID,
			CreatedAtUnixMs: entry.CreatedAt.UTC().UnixMilli(),
		})
		result.EntryIDs = append(result.EntryIDs, entry.EntryID)
		if result.MinEntryID == 0 || entry.EntryID < result.MinEntryID {
			result.MinEntryID = entry.EntryID
		}
		if entry.EntryID > result.MaxEntryID {
			result.MaxEntryID = entry.EntryID
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Row](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	result.Data = buf.Bytes()
	result.RecordCount = int64(len(rows))
	return result, nil
}
