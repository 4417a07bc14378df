// Package generation sends prompt payloads to text generation backends.
//
// A Client performs exactly one backend call per Generate invocation and
// never retries. Every failure is reported as *Error so callers can decide
// whether another attempt is worthwhile.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sqltranslator/sqltranslator/internal/prompt"
)

type Client interface {
	Generate(ctx context.Context, payload prompt.Payload, budget time.Duration) (string, error)
}

type Kind string

const (
	KindTimeout Kind = "timeout"
	KindBackend Kind = "backend_error"
)

const maxDetailRunes = 240

type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Transient  bool
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a generation failure worth retrying.
func IsTransient(err error) bool {
	var genErr *Error
	if !errors.As(err, &genErr) {
		return false
	}
	return genErr.Transient
}

func transientStatus(code int) bool {
	switch {
	case code == 408, code == 425, code == 429:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// callFailure classifies an error from the network call made under
// attemptCtx, a child of parent carrying the per-attempt budget.
func callFailure(provider string, parent, attemptCtx context.Context, budget time.Duration, err error) *Error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return &Error{Kind: KindBackend, Provider: provider, Detail: "request canceled", Err: err}
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Provider: provider, Transient: true, Detail: "overall deadline exceeded", Err: err}
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Provider: provider, Transient: true, Detail: "no response within " + budget.String(), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Provider: provider, Transient: true, Detail: "network timeout", Err: err}
	}
	return &Error{Kind: KindBackend, Provider: provider, Transient: true, Detail: "transport failure", Err: err}
}

func statusFailure(provider string, status int, body []byte, secrets ...string) *Error {
	return &Error{
		Kind:       KindBackend,
		Provider:   provider,
		StatusCode: status,
		Transient:  transientStatus(status),
		Detail:     excerpt(string(body), secrets...),
	}
}

func malformed(provider, detail string, err error) *Error {
	return &Error{Kind: KindBackend, Provider: provider, Detail: detail, Err: err}
}

// excerpt bounds backend text for logs and masks credentials.
func excerpt(text string, secrets ...string) string {
	for _, secret := range secrets {
		if strings.TrimSpace(secret) == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, "[redacted]")
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxDetailRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxDetailRunes]) + "..."
}

func withBudget(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}
