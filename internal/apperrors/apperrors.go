// Package apperrors provides the stable error kinds shared by every service.
package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	// KindValidation marks user-correctable input errors.
	KindValidation Kind = "VALIDATION"
	// KindNotFound marks lookups for entities that do not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindForbidden marks privileged actions attempted without the required role.
	KindForbidden Kind = "FORBIDDEN"
	// KindConflict marks unique-constraint violations; callers may retry.
	KindConflict Kind = "CONFLICT"
	// KindStore marks persistence failures not caused by the caller.
	KindStore Kind = "STORE"
)

// Error carries a kind and a human-readable message.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind exposes the classification of the error.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the user-facing text without any wrapped cause.
func (e *Error) Message() string {
	return e.message
}

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return &Error{kind: KindValidation, message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{kind: KindNotFound, message: fmt.Sprintf(format, args...)}
}

// Forbidden builds an access-denied error.
func Forbidden(format string, args ...any) error {
	return &Error{kind: KindForbidden, message: fmt.Sprintf(format, args...)}
}

// Conflict builds a retryable uniqueness-violation error.
func Conflict(format string, args ...any) error {
	return &Error{kind: KindConflict, message: fmt.Sprintf(format, args...)}
}

// Store wraps a persistence failure. The cause is kept for logs but never
// rendered to end users.
func Store(cause error) error {
	return &Error{kind: KindStore, message: "storage failure", cause: cause}
}

// KindOf extracts the Kind from err, or KindStore when err is not an
// apperrors value.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindStore
}

// FromStore translates raw store errors into the taxonomy: record-not-found
// becomes NotFound, unique-constraint violations become Conflict, anything
// else is a Store error.
func FromStore(err error, notFoundMessage string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound("%s", notFoundMessage)
	case IsUniqueViolation(err):
		return Conflict("record already exists")
	default:
		return Store(err)
	}
}

// IsUniqueViolation reports whether err stems from a unique-constraint
// violation. The sqlite driver surfaces these as textual errors, so both the
// gorm sentinel and the driver message are checked.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	text := err.Error()
	return strings.Contains(text, "UNIQUE constraint failed") ||
		strings.Contains(text, "constraint violation")
}
