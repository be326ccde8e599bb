package profiles

import (
	"errors"
	"fmt"
)

// Kind categorizes manager errors for the presentation layer.
type Kind string

const (
	// KindNotReady indicates an operation before Initialize completed.
	KindNotReady Kind = "not_ready"

	// KindInvalidRecord indicates a record that cannot be persisted.
	KindInvalidRecord Kind = "invalid_record"

	// KindQueryFailure indicates a read that failed in the store.
	KindQueryFailure Kind = "query_failure"

	// KindNotFound indicates a Get for an id that is not present.
	KindNotFound Kind = "not_found"

	// KindStorage indicates a failed write or an unusable store.
	KindStorage Kind = "storage"
)

// ErrNotReady is wrapped by errors of KindNotReady.
var ErrNotReady = errors.New("profile manager is not initialized")

// Error is the structured error returned by Manager operations.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op is the Manager operation that failed (e.g. "get_all").
	Op string

	// ID is the affected profile id, when there is one.
	ID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s (id=%s): %v", e.Op, e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *Error of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

func newError(kind Kind, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}
