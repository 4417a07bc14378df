package translate

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindTimeout      Kind = "timeout"
	KindBackend      Kind = "backend_error"
)

// Failure is the single error type returned by Service.Translate. Detail is
// meant for logs; it is never shown to end users by the HTTP layer.
type Failure struct {
	Kind     Kind
	Detail   string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Attempts > 0 {
		return fmt.Sprintf("translate %s after %d attempt(s): %s", f.Kind, f.Attempts, f.Detail)
	}
	return fmt.Sprintf("translate %s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}

func invalidInput(detail string, err error) *Failure {
	return &Failure{Kind: KindInvalidInput, Detail: detail, Err: err}
}
