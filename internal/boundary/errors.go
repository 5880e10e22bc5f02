package boundary

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorCode categorizes boundary errors.
type ErrorCode string

const (
	// ErrCodeInvalidCall indicates a malformed call.
	ErrCodeInvalidCall ErrorCode = "INVALID_CALL"

	// ErrCodeUnknownDatabase indicates the database does not exist.
	ErrCodeUnknownDatabase ErrorCode = "UNKNOWN_DATABASE"

	// ErrCodeUnknownStore indicates the store does not exist in the database.
	ErrCodeUnknownStore ErrorCode = "UNKNOWN_STORE"

	// ErrCodeConstraint indicates a primary key or unique index violation.
	ErrCodeConstraint ErrorCode = "CONSTRAINT"

	// ErrCodeQuotaExceeded indicates the write would exceed the storage quota.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeUnavailable indicates the engine is closed or not running.
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"

	// ErrCodeInternal indicates a backend failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error is a failure raised by the boundary for one call.
type Error struct {
	Code    ErrorCode
	Action  Action
	Token   uuid.UUID
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Action != "" {
		return fmt.Sprintf("%s: %s: %s", e.Action, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeInternal
}

// IsConstraint returns true if err is a constraint violation.
func IsConstraint(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Code == ErrCodeConstraint
}

// IsNotFound returns true if err reports an unknown database or store.
func IsNotFound(err error) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Code == ErrCodeUnknownDatabase || be.Code == ErrCodeUnknownStore
}
