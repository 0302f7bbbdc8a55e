// Package taxonomy defines the unified error kinds shared by every backend,
// sub-server, and transport in the hub. Every operation either succeeds or
// fails with one of the Kind values below; nothing else should cross a
// package boundary as an error outside of programmer bugs.
package taxonomy

import (
	"errors"
	"fmt"
)

// Kind enumerates the unified error taxonomy.
type Kind string

const (
	InvalidInput            Kind = "invalid_input"
	NotFound                Kind = "not_found"
	Duplicate               Kind = "duplicate"
	BackendUnavailable      Kind = "backend_unavailable"
	Timeout                 Kind = "timeout"
	GovernanceBlocked       Kind = "governance_blocked"
	GovernanceInvalidFormat Kind = "governance_invalid_format"
	Internal                Kind = "internal"
)

// Error is the concrete error type returned by hub operations.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, taxonomy.New(kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured details to an error and returns it.
func (e *Error) WithDetails(d any) *Error {
	e.Details = d
	return e
}

// Of reports whether err carries the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Internal for unrecognized
// errors (e.g. ones escaping a backend driver without translation).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Retryable reports whether errors of this kind may be retried by a caller
// that has been explicitly told retrying is safe (graph acquisition, model
// routing). Nothing else is retryable by default.
func Retryable(kind Kind) bool {
	return kind == Timeout
}
