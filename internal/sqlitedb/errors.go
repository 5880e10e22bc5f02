package sqlitedb

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/idxstore/internal/boundary"
)

func invalid(format string, args ...any) error {
	return &boundary.Error{Code: boundary.ErrCodeInvalidCall, Message: fmt.Sprintf(format, args...)}
}

func constraint(err error, format string, args ...any) error {
	return &boundary.Error{Code: boundary.ErrCodeConstraint, Message: fmt.Sprintf(format, args...), Err: err}
}

func unknownDatabase(name string) error {
	return &boundary.Error{Code: boundary.ErrCodeUnknownDatabase, Message: fmt.Sprintf("database %s does not exist", name)}
}

func unknownStore(db, store string) error {
	return &boundary.Error{Code: boundary.ErrCodeUnknownStore,
		Message: fmt.Sprintf("store %s does not exist in database %s", store, db)}
}

// isConstraint reports whether err is a SQLite constraint violation.
func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
