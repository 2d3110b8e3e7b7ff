package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a closed enumeration of failure categories. Kinds are
// assigned where the error originates so that retry policy is a pure
// function of the tag, never of message contents.
type ErrorKind string

const (
	// KindValidation marks malformed input. Fails fast, never retried,
	// never enters the queue.
	KindValidation ErrorKind = "validation"
	// KindAuth marks authentication/authorization failures from a
	// downstream service. Never retried.
	KindAuth ErrorKind = "auth"
	// KindTransient marks timeouts, network errors, rate limits and
	// explicit service-unavailable responses. Retryable.
	KindTransient ErrorKind = "transient"
	// KindPermanent marks downstream errors that will not heal on retry.
	KindPermanent ErrorKind = "permanent"
	// KindCircuitOpen marks a short-circuit from the breaker. Not retried
	// within a single executor run, but transient at the job level since
	// the breaker may close again before the next queue attempt.
	KindCircuitOpen ErrorKind = "circuit_open"
	// KindExhausted marks a job whose queue attempt budget ran out.
	KindExhausted ErrorKind = "exhausted"
)

// Error is the tagged error type shared by all components.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewValidationError creates a validation-kind error.
func NewValidationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

// NewAuthError creates an auth-kind error.
func NewAuthError(code, msg string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: msg}
}

// NewTransientError creates a transient-kind error.
func NewTransientError(code, msg string) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: msg}
}

// NewPermanentError creates a permanent-kind error.
func NewPermanentError(code, msg string) *Error {
	return &Error{Kind: KindPermanent, Code: code, Message: msg}
}

// NewCircuitOpenError creates a circuit-open error.
func NewCircuitOpenError(msg string) *Error {
	return &Error{Kind: KindCircuitOpen, Code: "circuit_open", Message: msg}
}

// NewExhaustedError creates an attempts-exhausted error.
func NewExhaustedError(msg string, cause error) *Error {
	return &Error{Kind: KindExhausted, Code: "attempts_exhausted", Message: msg, cause: cause}
}

// WrapTransient tags an underlying error as transient.
func WrapTransient(code, msg string, cause error) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: msg, cause: cause}
}

// WrapPermanent tags an underlying error as permanent.
func WrapPermanent(code, msg string, cause error) *Error {
	return &Error{Kind: KindPermanent, Code: code, Message: msg, cause: cause}
}

// KindOf extracts the kind from an error chain. Untagged errors are
// treated as transient: the safe default for infrastructure failures.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}

// CodeOf extracts the stable code from an error chain, or "internal".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}

// Retryable reports whether the Retry Executor may attempt err again.
// Circuit-open errors surface immediately so the job-level backoff, not
// the executor's tight loop, paces the next probe.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}
