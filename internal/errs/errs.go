// Package errs defines the error taxonomy shared across components.
// Components surface typed errors to their callers; the API layer maps
// kinds to HTTP status codes and a machine-readable reason.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for callers deciding whether to retry.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindRateLimited  Kind = "rate_limited"
	KindTimeout      Kind = "timeout"
	KindUpstream     Kind = "upstream"
)

// Error carries a kind, a human-readable message, and retry metadata.
type Error struct {
	Kind       Kind
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Elapsed    time.Duration
	// Raw holds the unparsed upstream response for parse failures.
	Raw string
	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Is allows matching against kind template errors, e.g.
// errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

func newf(kind Kind, retryable bool, format string, args ...interface{}) *Error {
	var wrapped error
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			wrapped = err
		}
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: retryable, err: wrapped}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, false, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, false, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, false, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return newf(KindInvalidState, false, format, args...)
}

func RateLimited(retryAfter time.Duration, format string, args ...interface{}) *Error {
	e := newf(KindRateLimited, true, format, args...)
	e.RetryAfter = retryAfter
	return e
}

func Timeout(elapsed time.Duration, format string, args ...interface{}) *Error {
	e := newf(KindTimeout, true, format, args...)
	e.Elapsed = elapsed
	return e
}

// Upstream reports a provider or infrastructure failure. Server-side
// conditions are retryable; client-side conditions are not.
func Upstream(retryable bool, format string, args ...interface{}) *Error {
	return newf(KindUpstream, retryable, format, args...)
}

// Parse reports a malformed provider response. The raw response is kept
// for diagnostics. Never retryable.
func Parse(raw string, format string, args ...interface{}) *Error {
	e := newf(KindValidation, false, format, args...)
	e.Raw = raw
	return e
}

// KindOf extracts the taxonomy kind from an error chain. Unclassified
// errors report KindUpstream.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// IsRetryable reports whether any error in the chain is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
