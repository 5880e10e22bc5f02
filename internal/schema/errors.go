package schema

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes schema errors.
//
// ErrorCode implements error so callers can match a category directly with
// errors.Is(err, schema.ErrNoPrimaryKey).
type ErrorCode string

const (
	// ErrNoPrimaryKey indicates no field is marked primary key and none was supplied.
	ErrNoPrimaryKey ErrorCode = "NO_PRIMARY_KEY"

	// ErrMultiplePrimaryKeys indicates more than one field is marked primary key.
	ErrMultiplePrimaryKeys ErrorCode = "MULTIPLE_PRIMARY_KEYS"

	// ErrUnknownField indicates a referenced field is not part of the descriptor.
	ErrUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrDuplicateColumn indicates two fields resolve to the same column.
	ErrDuplicateColumn ErrorCode = "DUPLICATE_COLUMN"

	// ErrDuplicateField indicates two fields share a name.
	ErrDuplicateField ErrorCode = "DUPLICATE_FIELD"

	// ErrEncryptNonString indicates the encrypt tag on a non-string field.
	ErrEncryptNonString ErrorCode = "ENCRYPT_NON_STRING"

	// ErrInvalidPrimaryKey indicates a primary key of a kind stores cannot
	// key on, or auto-increment on a non-integer key.
	ErrInvalidPrimaryKey ErrorCode = "INVALID_PRIMARY_KEY"

	// ErrStoreMismatch indicates a descriptor disagrees with the database definition.
	ErrStoreMismatch ErrorCode = "STORE_MISMATCH"
)

// Error implements the error interface for a bare code.
func (c ErrorCode) Error() string {
	return string(c)
}

// Error is a schema derivation or usage failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Schema is the table name, when known.
	Schema string

	// Field is the offending field name, when known.
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Schema != "" && e.Field != "":
		return fmt.Sprintf("schema %s: field %s: %s: %s", e.Schema, e.Field, e.Code, e.Message)
	case e.Schema != "":
		return fmt.Sprintf("schema %s: %s: %s", e.Schema, e.Code, e.Message)
	default:
		return fmt.Sprintf("schema: %s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the code so errors.Is matches categories.
func (e *Error) Unwrap() error {
	return e.Code
}

// IsSchemaError returns true if err is or wraps a *Error.
func IsSchemaError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
