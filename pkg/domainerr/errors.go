// Package domainerr classifies workflow failures into the kinds the API layer
// understands: not found, domain validation and concurrency conflict.
package domainerr

import "errors"

type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation_error"
	KindConflict   Kind = "conflict"
)

// Error is a classified domain failure. Code is a stable machine-readable
// identifier, Message is safe to show to API callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// ErrConcurrencyConflict is returned when an optimistic version check fails.
// Callers may retry the whole command from scratch.
var ErrConcurrencyConflict = Conflict("concurrency_conflict", "resource was modified concurrently")

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) && de != nil {
		return de, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	de, ok := As(err)
	return ok && de.Kind == kind
}

func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

func IsValidation(err error) bool { return IsKind(err, KindValidation) }

func IsConcurrencyConflict(err error) bool { return IsKind(err, KindConflict) }
