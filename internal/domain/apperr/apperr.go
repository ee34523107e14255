// Package apperr defines the error taxonomy shared by the domain services,
// the repositories and the HTTP adapter.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies an error for the caller.
type Kind uint8

const (
	// KindValidation marks malformed or out-of-range input.
	KindValidation Kind = iota + 1
	// KindNotFound marks a reference to an entity that does not exist.
	KindNotFound
	// KindConflict marks an operation that clashes with the current state,
	// such as mutating a terminal order or reusing a unique key.
	KindConflict
	// KindDatabase marks an underlying store failure.
	KindDatabase
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDatabase:
		return "database"
	default:
		return "internal"
	}
}

// Sentinels matching any error of the corresponding kind via errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrDatabase   = &Error{Kind: KindDatabase}
)

// Error is a classified error carrying a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	// Err is the underlying cause, kept for diagnostics only.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindDatabase {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation returns a validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found error naming the missing entity.
func NotFound(entity string, id any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// Conflict returns a conflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Database wraps a store failure. The message describes the attempted
// operation; the cause is only reachable through Unwrap.
func Database(err error, op string) error {
	return &Error{Kind: KindDatabase, Message: op, Err: err}
}

// KindOf returns the kind of err, or zero when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Message returns the client-facing message of err. Database and
// unclassified errors yield a generic text so internals never leak.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindDatabase {
		return "internal error"
	}
	return e.Message
}
