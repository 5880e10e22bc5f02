package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/idxstore/internal/boundary"
)

var (
	// ErrMissingKey indicates a record without a primary key value where
	// one is required.
	ErrMissingKey = errors.New("record has no primary key value")

	// ErrUnknownStore indicates a descriptor names a store the database
	// definition does not declare.
	ErrUnknownStore = errors.New("store not declared by database")

	// ErrKeyType indicates a key that does not match the primary key kind.
	ErrKeyType = errors.New("key does not match primary key")
)

// BoundaryError is a call the boundary rejected or failed.
type BoundaryError struct {
	Action boundary.Action
	Token  uuid.UUID
	Err    error
}

// Error implements the error interface.
func (e *BoundaryError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Action, e.Token, e.Err)
}

// Unwrap returns the boundary's error.
func (e *BoundaryError) Unwrap() error { return e.Err }

// IsBoundaryError returns true if err is or wraps a *BoundaryError.
func IsBoundaryError(err error) bool {
	var be *BoundaryError
	return errors.As(err, &be)
}
