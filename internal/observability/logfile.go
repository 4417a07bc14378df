package observability

import (
	"io"

	"github.com/sqltranslator/sqltranslator/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOutput tees base into a size-rotated file when SQLTR_LOG_FILE is set.
// The returned closer releases the file and is a no-op otherwise.
func LogOutput(cfg config.Config, base io.Writer) (io.Writer, io.Closer) {
	if cfg.Observability.LogFile == "" {
		return base, nopCloser{}
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Observability.LogFile,
		MaxSize:    cfg.Observability.LogMaxSizeMB,
		MaxBackups: cfg.Observability.LogMaxBackups,
		MaxAge:     cfg.Observability.LogMaxAgeDays,
		Compress:   true,
	}
	if base == nil {
		return rotator, rotator
	}
	return io.MultiWriter(base, rotator), rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
