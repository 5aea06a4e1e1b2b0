// Package apperr defines the error taxonomy surfaced at the CQRS bus
// boundary: {kind, message} per spec, with BadRequest/NotFound/Conflict/
// Forbidden/Internal as the five recognized kinds.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the five recognized error kinds.
type Kind string

const (
	KindBadRequest Kind = "BadRequest"
	KindNotFound   Kind = "NotFound"
	KindConflict   Kind = "Conflict"
	KindForbidden  Kind = "Forbidden"
	KindInternal   Kind = "Internal"
)

// Error is the {kind, message} envelope. It implements the error interface
// so it can flow through normal Go error handling and still be recovered at
// the boundary via KindOf/As.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// BadRequest builds a caller-input violation error. Messages must be
// actionable: name the missing section, the offending field, or the
// disallowed transition.
func BadRequest(format string, args ...any) *Error { return newErr(KindBadRequest, format, args...) }

// NotFound builds a missing-entity error. Messages should include the
// entity kind and id.
func NotFound(format string, args ...any) *Error { return newErr(KindNotFound, format, args...) }

// Conflict builds a race-lost / already-used error.
func Conflict(format string, args ...any) *Error { return newErr(KindConflict, format, args...) }

// Forbidden builds a permission-denied error. Not raised by this core;
// reserved for the surrounding guard.
func Forbidden(format string, args ...any) *Error { return newErr(KindForbidden, format, args...) }

// Internal builds a generic internal-failure error. Messages are
// intentionally non-specific (no driver internals leaked to callers).
func Internal(format string, args ...any) *Error { return newErr(KindInternal, format, args...) }

// KindOf recovers the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
