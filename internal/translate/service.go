// Package translate turns one untrusted piece of text into one translated
// string, or one typed failure, under per-attempt and overall deadlines.
package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/sqltranslator/sqltranslator/internal/config"
	"github.com/sqltranslator/sqltranslator/internal/generation"
	"github.com/sqltranslator/sqltranslator/internal/history"
	"github.com/sqltranslator/sqltranslator/internal/observability"
	"github.com/sqltranslator/sqltranslator/internal/prompt"
)

type Request struct {
	Direction prompt.Direction
	InputText string
}

type Result struct {
	OutputText string
}

type Config struct {
	MaxInputChars  int
	AttemptTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	OverallTimeout time.Duration
}

func ConfigFrom(cfg config.TranslateConfig) Config {
	return Config{
		MaxInputChars:  cfg.MaxInputChars,
		AttemptTimeout: cfg.AttemptTimeout,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		OverallTimeout: cfg.OverallTimeout,
	}
}

type Options struct {
	Recorder history.Recorder
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Service is immutable after NewService and safe for concurrent use.
type Service struct {
	client   generation.Client
	config   Config
	recorder history.Recorder
	logger   *slog.Logger
	clock    func() time.Time
}

func NewService(client generation.Client, cfg Config, opts Options) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("generation client is required")
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 4000
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = time.Duration(cfg.MaxRetries+1)*cfg.AttemptTimeout + 10*time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		client:   client,
		config:   cfg,
		recorder: opts.Recorder,
		logger:   logger,
		clock:    clock,
	}, nil
}

func (s *Service) Config() Config {
	return s.config
}

func (s *Service) Translate(ctx context.Context, req Request) (Result, error) {
	start := s.clock()
	result, attempts, failure := s.translate(ctx, req)
	elapsed := s.clock().Sub(start)

	outcome := history.OutcomeSuccess
	if failure != nil {
		outcome = history.Outcome(failure.Kind)
	}
	observability.ObserveTranslation(string(req.Direction), string(outcome), elapsed)
	s.record(ctx, req, result, failure, attempts, elapsed, start)

	if failure != nil {
		return Result{}, failure
	}
	return result, nil
}

func (s *Service) translate(ctx context.Context, req Request) (Result, int, *Failure) {
	if !req.Direction.Valid() {
		return Result{}, 0, invalidInput(fmt.Sprintf("unknown direction %q", req.Direction), prompt.ErrUnknownDirection)
	}
	text := strings.TrimSpace(req.InputText)
	if text == "" {
		return Result{}, 0, invalidInput("input text is empty", prompt.ErrEmptyInput)
	}
	if n := utf8.RuneCountInString(text); n > s.config.MaxInputChars {
		return Result{}, 0, invalidInput(fmt.Sprintf("input text has %d characters, limit is %d", n, s.config.MaxInputChars), nil)
	}

	payload, err := prompt.Build(req.Direction, text)
	if err != nil {
		return Result{}, 0, invalidInput(err.Error(), err)
	}

	overallCtx, cancel := context.WithTimeout(ctx, s.config.OverallTimeout)
	defer cancel()

	attempts := 0
	var last *generation.Error
	var output string
	operation := func() error {
		attempts++
		raw, err := s.client.Generate(overallCtx, payload, s.config.AttemptTimeout)
		if err != nil {
			var genErr *generation.Error
			if !errors.As(err, &genErr) {
				genErr = &generation.Error{Kind: generation.KindBackend, Detail: err.Error(), Err: err}
			}
			last = genErr
			if !genErr.Transient {
				return backoff.Permanent(genErr)
			}
			return genErr
		}
		normalized := Normalize(raw)
		if normalized == "" {
			last = &generation.Error{Kind: generation.KindBackend, Detail: "output empty after normalization"}
			return backoff.Permanent(last)
		}
		output = normalized
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "generation attempt failed, retrying",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("direction", string(req.Direction)),
			slog.Int("attempt", attempts),
			slog.String("wait", wait.String()),
			slog.Any("error", err),
		)
	}

	if err := backoff.RetryNotify(operation, s.retryPolicy(overallCtx), notify); err != nil {
		if last == nil {
			// Deadline hit before the first attempt could start.
			return Result{}, attempts, &Failure{Kind: KindTimeout, Detail: err.Error(), Attempts: attempts, Err: err}
		}
		return Result{}, attempts, failureFrom(last, attempts)
	}
	return Result{OutputText: output}, attempts, nil
}

func (s *Service) retryPolicy(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.config.InitialBackoff
	exp.MaxInterval = s.config.MaxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.config.MaxRetries)), ctx)
}

func failureFrom(genErr *generation.Error, attempts int) *Failure {
	kind := KindBackend
	if genErr.Kind == generation.KindTimeout {
		kind = KindTimeout
	}
	return &Failure{Kind: kind, Detail: genErr.Error(), Attempts: attempts, Err: genErr}
}

func (s *Service) record(ctx context.Context, req Request, result Result, failure *Failure, attempts int, elapsed time.Duration, start time.Time) {
	if s.recorder == nil {
		return
	}
	entry := history.Entry{
		Direction:  string(req.Direction),
		InputText:  truncateRunes(strings.TrimSpace(req.InputText), s.config.MaxInputChars),
		OutputText: result.OutputText,
		Outcome:    history.OutcomeSuccess,
		Attempts:   attempts,
		LatencyMs:  elapsed.Milliseconds(),
		TraceID:    observability.TraceIDFromContext(ctx),
		CreatedAt:  start.UTC(),
	}
	if failure != nil {
		entry.Outcome = history.Outcome(failure.Kind)
		entry.Detail = failure.Detail
	}
	// The caller's context may already be done; the record must still land.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.Record(recordCtx, entry); err != nil {
		s.logger.WarnContext(ctx, "record translation history failed",
			slog.String("trace_id", entry.TraceID),
			slog.Any("error", err),
		)
	}
}

// truncateRunes caps stored input; oversize rejections keep their length in
// the failure detail.
func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
