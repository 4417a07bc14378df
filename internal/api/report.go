package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/observability"
)

func reportHandler(deps Dependencies) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if deps.Reports == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "REPORT_NOT_CONFIGURED", "history reports require history and object storage", false)
			return
		}

		var since time.Time
		if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SINCE", "since must be an RFC3339 timestamp", false)
				return
			}
			since = parsed
		}

		out, err := deps.Reports.Build(r.Context(), since)
		if err != nil {
			if deps.Logger != nil {
				deps.Logger.ErrorContext(r.Context(), "history report failed",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.Any("error", err),
				)
			}
			writeError(r.Context(), w, http.StatusInternalServerError, "REPORT_FAILED", "failed to build history report", true)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}
