package store

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the stable, machine-readable class of an error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindResourceExhausted Kind = "resource_exhausted"
	KindStorage           Kind = "storage"
	KindInvalidState      Kind = "invalid_state"
)

// Sentinel errors matched by kind with errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "version conflict"}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted, Message: "resource exhausted"}
	ErrStorage           = &Error{Kind: KindStorage, Message: "storage failure"}
	ErrInvalidState      = &Error{Kind: KindInvalidState, Message: "invalid state"}
)

// FieldError describes a problem with one payload field.
type FieldError struct {
	Field   string
	Message string
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// Error is the structured error returned by every layer of the engine.
// Message is safe to show to callers; Cause may carry storage detail and is
// only reachable through Unwrap.
type Error struct {
	Kind      Kind
	Message   string
	Fields    []FieldError
	Cause     error
	Retryable bool
}

// Error returns a formatted error string without the cause.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.String())
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Validation builds a ValidationError for the given fields.
func Validation(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// FieldInvalid is shorthand for a single-field ValidationError.
func FieldInvalid(field, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return Validation("invalid field", FieldError{Field: field, Message: msg})
}

// NotFound builds a NotFoundError. The message never says whether the record
// exists under another tenant.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// Conflict builds a retryable optimistic-lock failure.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message, Retryable: true}
}

// Duplicate builds a Conflict that re-reading cannot resolve, such as a
// second registration of the same pair.
func Duplicate(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// ResourceExhausted builds a retryable saturation error.
func ResourceExhausted(message string, cause error) *Error {
	return &Error{Kind: KindResourceExhausted, Message: message, Cause: cause, Retryable: true}
}

// Storage builds a storage failure; transient failures are retryable.
func Storage(message string, transient bool, cause error) *Error {
	return &Error{Kind: KindStorage, Message: message, Cause: cause, Retryable: transient}
}

// InvalidState builds an error for misuse of a unit of work.
func InvalidState(message string) *Error {
	return &Error{Kind: KindInvalidState, Message: message}
}

// KindOf extracts the kind from an error chain.
// Returns empty string if the error is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsTransient reports a retryable storage failure such as a deadlock.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindStorage && e.Retryable
	}
	return false
}
