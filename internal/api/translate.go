package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sqltranslator/sqltranslator/internal/generation"
	"github.com/sqltranslator/sqltranslator/internal/observability"
	"github.com/sqltranslator/sqltranslator/internal/prompt"
	"github.com/sqltranslator/sqltranslator/internal/translate"
)

const (
	translateHumanToSQL = prompt.HumanToSQL
	translateSQLToHuman = prompt.SQLToHuman

	defaultMaxBodyBytes = 1 << 20
)

type translateRequest struct {
	InputText *string `json:"inputText"`
}

type translateResponse struct {
	OutputText string `json:"outputText"`
}

type translateHandler struct {
	translator   Translator
	logger       *slog.Logger
	maxBodyBytes int64
}

func (h *translateHandler) direction(direction prompt.Direction) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(direction, w, r)
	})
}

func (h *translateHandler) serve(direction prompt.Direction, w http.ResponseWriter, r *http.Request) {
	if h.translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "translation is not configured", false)
		return
	}

	limit := h.maxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	var req translateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body is too large", false)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "request body must be a JSON object with an inputText string", false)
		return
	}
	if req.InputText == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_INPUT", "inputText is required", false)
		return
	}

	result, err := h.translator.Translate(r.Context(), translate.Request{Direction: direction, InputText: *req.InputText})
	if err != nil {
		h.writeFailure(w, r, direction, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{OutputText: result.OutputText})
}

func (h *translateHandler) writeFailure(w http.ResponseWriter, r *http.Request, direction prompt.Direction, err error) {
	ctx := r.Context()
	failure, ok := translate.AsFailure(err)
	if !ok {
		failure = &translate.Failure{Kind: translate.KindBackend, Detail: err.Error(), Err: err}
	}
	if failure.Kind == translate.KindInvalidInput {
		writeError(ctx, w, http.StatusBadRequest, "INVALID_INPUT", failure.Detail, false)
		return
	}

	if h.logger != nil {
		h.logger.WarnContext(ctx, "translation failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("direction", string(direction)),
			slog.String("kind", string(failure.Kind)),
			slog.Int("attempts", failure.Attempts),
			slog.String("detail", failure.Detail),
		)
	}

	switch failure.Kind {
	case translate.KindTimeout:
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", "translation timed out, please try again", true)
	default:
		writeError(ctx, w, http.StatusBadGateway, "BACKEND_ERROR", "translation backend failed", generation.IsTransient(failure.Err))
	}
}
