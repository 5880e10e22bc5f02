package ir

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// TableSchema describes one object store: its primary key and which columns
// the boundary maintains indexes for.
type TableSchema struct {
	Name           string   `json:"name"`
	PrimaryKey     string   `json:"primary_key"`
	PrimaryKeyAuto bool     `json:"primary_key_auto"`
	UniqueIndexes  []string `json:"unique_indexes"`
	Indexes        []string `json:"indexes"`
}

// IsUnique reports whether column carries a unique index.
func (s TableSchema) IsUnique(column string) bool {
	return slices.Contains(s.UniqueIndexes, column)
}

// IsIndexed reports whether column can be queried: primary key, unique index
// or regular index.
func (s TableSchema) IsIndexed(column string) bool {
	return column != "" && (column == s.PrimaryKey ||
		slices.Contains(s.UniqueIndexes, column) ||
		slices.Contains(s.Indexes, column))
}

// Validate checks a table schema. Returns all errors (not fail-fast).
func (s TableSchema) Validate() []ValidationError {
	var errs []ValidationError

	if s.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "store name is required"})
	}
	if s.PrimaryKey == "" {
		errs = append(errs, ValidationError{
			Field:   "primary_key",
			Message: fmt.Sprintf("store %q has no primary key", s.Name),
		})
	}

	seen := make(map[string]string)
	check := func(list, col string) {
		if col == "" {
			errs = append(errs, ValidationError{Field: list, Message: "empty column name"})
			return
		}
		if prev, ok := seen[col]; ok {
			errs = append(errs, ValidationError{
				Field:   list,
				Message: fmt.Sprintf("column %q already declared in %s", col, prev),
			})
			return
		}
		seen[col] = list
	}
	for _, col := range s.UniqueIndexes {
		check("unique_indexes", col)
	}
	for _, col := range s.Indexes {
		check("indexes", col)
	}
	return errs
}

// DatabaseSpec is the full definition of a database: its name, version and
// object stores. It is what the boundary needs to create or upgrade the
// database.
type DatabaseSpec struct {
	Name    string        `json:"name"`
	Version int64         `json:"version"`
	Stores  []TableSchema `json:"stores"`
}

// Store returns the schema of the named store.
func (d DatabaseSpec) Store(name string) (TableSchema, bool) {
	for _, s := range d.Stores {
		if s.Name == name {
			return s, true
		}
	}
	return TableSchema{}, false
}

// Validate checks the database definition and every store in it.
func (d DatabaseSpec) Validate() []ValidationError {
	var errs []ValidationError

	if d.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "database name is required"})
	}
	if d.Version < 1 {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("version must be >= 1, got %d", d.Version),
		})
	}

	names := make(map[string]bool)
	for i, s := range d.Stores {
		if names[s.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("stores[%d].name", i),
				Message: fmt.Sprintf("duplicate store name: %q", s.Name),
			})
		}
		names[s.Name] = true
		for _, e := range s.Validate() {
			e.Field = fmt.Sprintf("stores[%d].%s", i, e.Field)
			errs = append(errs, e)
		}
	}
	return errs
}

// Outcome is the completion of one boundary call: the token it was issued
// under, whether it failed, and a human-readable message. Payload carries an
// optional result (for example a deleted-row count).
//
// Outcomes are produced by the boundary, never by the core.
type Outcome struct {
	Token   uuid.UUID `json:"token"`
	Failed  bool      `json:"failed"`
	Message string    `json:"message"`
	Payload IRValue   `json:"payload,omitempty"`
}

// Succeeded builds a successful outcome.
func Succeeded(token uuid.UUID, message string) Outcome {
	return Outcome{Token: token, Message: message}
}

// Failed builds a failed outcome.
func Failed(token uuid.UUID, message string) Outcome {
	return Outcome{Token: token, Failed: true, Message: message}
}

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
