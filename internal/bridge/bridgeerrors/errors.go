// Package bridgeerrors defines the error-kind taxonomy the bridge uses to
// communicate failures across component boundaries, and the HTTP status
// each kind maps to at the webhook and search surfaces.
package bridgeerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the internal error-kind taxonomy. These are not Go type names,
// matching the spec's instruction that the taxonomy is named, not typed.
type Kind string

const (
	KindInvalidInput        Kind = "InvalidInput"
	KindAuthFailure         Kind = "AuthFailure"
	KindSignatureFailure    Kind = "SignatureFailure"
	KindValidationFailure   Kind = "ValidationFailure"
	KindNotFound            Kind = "NotFound"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUpstreamEmpty       Kind = "UpstreamEmpty"
	KindDimensionMismatch   Kind = "DimensionMismatch"
	KindLockTimeout         Kind = "LockTimeout"
	KindChunkingError       Kind = "ChunkingError"
	KindIndexingError       Kind = "IndexingError"
	KindConflictResolved    Kind = "ConflictResolved"
)

// Error is the bridge's structured error type.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Retryable bool
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: isRetryable(kind)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, Retryable: isRetryable(kind)}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func isRetryable(kind Kind) bool {
	return kind == KindUpstreamUnavailable || kind == KindLockTimeout
}

// HTTPStatus returns the HTTP status code the webhook and search surfaces
// propagate for this error kind, per the §7 propagation rules. Error kinds
// that are never surfaced directly as an HTTP response (because the caller
// collapses them into a result struct instead) return 0.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindSignatureFailure:
		return http.StatusUnauthorized
	case KindAuthFailure:
		return http.StatusUnauthorized
	case KindValidationFailure:
		return http.StatusUnprocessableEntity
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return 0
	}
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
