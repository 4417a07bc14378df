// Package lambdafn serves translations as direct AWS Lambda invocations.
package lambdafn

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/sqltranslator/sqltranslator/internal/generation"
	"github.com/sqltranslator/sqltranslator/internal/prompt"
	"github.com/sqltranslator/sqltranslator/internal/translate"
)

type Translator interface {
	Translate(ctx context.Context, req translate.Request) (translate.Result, error)
}

// Invoker is the subset of the Lambda API used for warmup fan-out.
type Invoker interface {
	Invoke(ctx context.Context, params *lambdasdk.InvokeInput, optFns ...func(*lambdasdk.Options)) (*lambdasdk.InvokeOutput, error)
}

type Request struct {
	Direction string  `json:"direction"`
	InputText *string `json:"inputText"`
}

type Response struct {
	OutputText string `json:"outputText,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"errorCode,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

type Handler struct {
	Translator Translator
	Logger     *slog.Logger
	// Invoker and FunctionName enable warmup self-invocation. Without them a
	// warmup event only warms the current instance.
	Invoker      Invoker
	FunctionName string
}

// Handle dispatches a raw invocation payload. Translation failures are
// reported in the Response body rather than as a Lambda error so callers can
// inspect errorCode and statusCode.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (any, error) {
	if warmup, ok := IsWarmupEvent(event); ok {
		return h.HandleWarmup(ctx, warmup), nil
	}

	var req Request
	if err := json.Unmarshal(event, &req); err != nil {
		return errorResponse(http.StatusBadRequest, "INVALID_JSON", "payload must be a JSON object with direction and inputText", false), nil
	}
	return h.translate(ctx, req), nil
}

func (h *Handler) translate(ctx context.Context, req Request) *Response {
	if req.InputText == nil {
		return errorResponse(http.StatusBadRequest, "INVALID_INPUT", "inputText is required", false)
	}
	direction := prompt.HumanToSQL
	if req.Direction != "" {
		parsed, err := prompt.ParseDirection(req.Direction)
		if err != nil {
			return errorResponse(http.StatusBadRequest, "INVALID_DIRECTION", err.Error(), false)
		}
		direction = parsed
	}

	result, err := h.Translator.Translate(ctx, translate.Request{Direction: direction, InputText: *req.InputText})
	if err == nil {
		return &Response{OutputText: result.OutputText}
	}

	failure, ok := translate.AsFailure(err)
	if !ok {
		failure = &translate.Failure{Kind: translate.KindBackend, Detail: err.Error(), Err: err}
	}
	if failure.Kind == translate.KindInvalidInput {
		return errorResponse(http.StatusBadRequest, "INVALID_INPUT", failure.Detail, false)
	}
	if h.Logger != nil {
		h.Logger.WarnContext(ctx, "translation failed",
			slog.String("direction", string(direction)),
			slog.String("kind", string(failure.Kind)),
			slog.Int("attempts", failure.Attempts),
			slog.String("detail", failure.Detail),
		)
	}
	if failure.Kind == translate.KindTimeout {
		return errorResponse(http.StatusGatewayTimeout, "TIMEOUT", "translation timed out, please try again", true)
	}
	return errorResponse(http.StatusBadGateway, "BACKEND_ERROR", "translation backend failed", generation.IsTransient(failure.Err))
}

func errorResponse(status int, code, message string, retryable bool) *Response {
	return &Response{Error: message, ErrorCode: code, StatusCode: status, Retryable: retryable}
}
