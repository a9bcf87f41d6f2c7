package contracts

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindDataUnavailable     ErrorKind = "DataUnavailable"
	KindProviderError       ErrorKind = "ProviderError"
	KindValidationError     ErrorKind = "ValidationError"
	KindInsufficientHistory ErrorKind = "InsufficientHistory"
	KindPersistenceError    ErrorKind = "PersistenceError"
	KindScoringError        ErrorKind = "ScoringError"
)

// Error is a typed pipeline failure.
// Only fatal conditions travel as Error; per-item conditions use Outcome.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is
var (
	ErrDataUnavailable     = &Error{Kind: KindDataUnavailable}
	ErrProvider            = &Error{Kind: KindProviderError}
	ErrValidation          = &Error{Kind: KindValidationError}
	ErrInsufficientHistory = &Error{Kind: KindInsufficientHistory}
	ErrPersistence         = &Error{Kind: KindPersistenceError}
)

// ErrRunFinalized reports a write against a run that is no longer RUNNING.
// Terminal status never changes, so the writer that loses the race gets this.
var ErrRunFinalized = errors.New("analysis run is no longer RUNNING")

// DataUnavailable wraps err as a DataUnavailable failure
func DataUnavailable(op string, err error) error {
	return &Error{Kind: KindDataUnavailable, Op: op, Err: err}
}

// ProviderError wraps err as a ProviderError failure
func ProviderError(op string, err error) error {
	return &Error{Kind: KindProviderError, Op: op, Err: err}
}

// PersistenceError wraps err as a PersistenceError failure
func PersistenceError(op string, err error) error {
	return &Error{Kind: KindPersistenceError, Op: op, Err: err}
}

// KindOf returns the kind of a typed error, or "" for untyped errors
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
