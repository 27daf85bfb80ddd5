package errors

import (
	"errors"
	"fmt"
)

// Type categorizes failures by how a run recovers from them.
type Type int

const (
	// TypeSourceFetch - a source adapter failed (network, auth, rate limit).
	// Recovery: skip that source for the current run.
	TypeSourceFetch Type = iota
	// TypeConstraint - a write conflicted with a uniqueness constraint.
	// Recovery: skip the record, count it, continue.
	TypeConstraint
	// TypePairing - an ADDRESSES/TRACKED_IN pair was partially created.
	// Recovery: compensating delete of the half that succeeded.
	TypePairing
	// TypeMigration - schema migration failed. Fatal for the run.
	TypeMigration
	// TypeConfig - missing or invalid configuration. Fatal for the run.
	TypeConfig
	// TypeInternal - unexpected internal state.
	TypeInternal
)

// Error is a categorized error. Per-record types are swallowed at the record
// boundary and surfaced as counters; fatal types abort the run with a
// non-zero exit.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on error type, so callers can use errors.Is with a bare
// &Error{Type: ...} sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Fatal reports whether the error must abort the whole run.
func (e *Error) Fatal() bool {
	return e.Type == TypeMigration || e.Type == TypeConfig
}

func newf(t Type, cause error, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// SourceFetchf wraps an adapter failure.
func SourceFetchf(cause error, format string, args ...any) *Error {
	return newf(TypeSourceFetch, cause, format, args...)
}

// Constraintf wraps an unexpected uniqueness-constraint violation.
func Constraintf(cause error, format string, args ...any) *Error {
	return newf(TypeConstraint, cause, format, args...)
}

// Pairingf wraps a partial pairing-edge creation.
func Pairingf(cause error, format string, args ...any) *Error {
	return newf(TypePairing, cause, format, args...)
}

// Migrationf wraps a schema migration failure.
func Migrationf(cause error, format string, args ...any) *Error {
	return newf(TypeMigration, cause, format, args...)
}

// Configf creates a configuration error.
func Configf(format string, args ...any) *Error {
	return newf(TypeConfig, nil, format, args...)
}

// Internalf creates an internal error.
func Internalf(cause error, format string, args ...any) *Error {
	return newf(TypeInternal, cause, format, args...)
}

// IsFatal reports whether err (or anything it wraps) must abort the run.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal()
	}
	return false
}

// TypeOf returns the category of err, or TypeInternal for plain errors.
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}
