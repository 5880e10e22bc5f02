package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/idxstore/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// DatabaseSpec errors (E101-E109)
	ErrDatabaseName    = "E101" // database name is required
	ErrDatabaseVersion = "E102" // version must be >= 1
	ErrNoStores        = "E103" // at least one store required
	ErrDuplicateStore  = "E104" // duplicate store name

	// TableSchema errors (E110-E119)
	ErrStoreName        = "E110" // store name is required
	ErrMissingKey       = "E111" // primary key is required
	ErrInvalidColumn    = "E112" // empty or malformed column name
	ErrDuplicateColumn  = "E113" // column declared in two index lists
	ErrIndexedKeyColumn = "E114" // primary key repeated as an index
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled database definitions.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.DatabaseSpec:
		return validateDatabase(spec)
	case ir.DatabaseSpec:
		return validateDatabase(&spec)
	case ir.TableSchema:
		return validateStore(spec, "")
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateDatabase(spec *ir.DatabaseSpec) []ValidationError {
	var errs []ValidationError

	if len(spec.Stores) == 0 {
		errs = append(errs, ValidationError{
			Field:   "stores",
			Message: "at least one store is required",
			Code:    ErrNoStores,
		})
	}
	for _, e := range spec.Validate() {
		errs = append(errs, coded(e, strings.HasPrefix(e.Field, "stores[")))
	}
	for i, s := range spec.Stores {
		errs = append(errs, keyRoles(s, fmt.Sprintf("stores[%d].", i))...)
	}
	return errs
}

func validateStore(s ir.TableSchema, prefix string) []ValidationError {
	var errs []ValidationError
	for _, e := range s.Validate() {
		e.Field = prefix + e.Field
		errs = append(errs, coded(e, true))
	}
	return append(errs, keyRoles(s, prefix)...)
}

// keyRoles rejects a primary key that is also listed as an index. Its
// uniqueness is already enforced by the key itself.
func keyRoles(s ir.TableSchema, prefix string) []ValidationError {
	if s.PrimaryKey == "" {
		return nil
	}
	var errs []ValidationError
	for _, list := range []struct {
		field string
		cols  []string
	}{{"unique_indexes", s.UniqueIndexes}, {"indexes", s.Indexes}} {
		for _, col := range list.cols {
			if col == s.PrimaryKey {
				errs = append(errs, ValidationError{
					Field:   prefix + list.field,
					Message: fmt.Sprintf("primary key %q must not be listed in %s", col, list.field),
					Code:    ErrIndexedKeyColumn,
				})
			}
		}
	}
	return errs
}

// coded assigns a code to an ir validation error by its field path.
func coded(e ir.ValidationError, store bool) ValidationError {
	out := ValidationError{Field: e.Field, Message: e.Message}

	leaf := e.Field
	if i := strings.LastIndex(leaf, "."); i >= 0 {
		leaf = leaf[i+1:]
	}

	switch {
	case !store && leaf == "name":
		out.Code = ErrDatabaseName
	case !store && leaf == "version":
		out.Code = ErrDatabaseVersion
	case leaf == "name" && strings.HasPrefix(e.Message, "duplicate"):
		out.Code = ErrDuplicateStore
	case leaf == "name":
		out.Code = ErrStoreName
	case leaf == "primary_key":
		out.Code = ErrMissingKey
	case e.Message == "empty column name":
		out.Code = ErrInvalidColumn
	default:
		out.Code = ErrDuplicateColumn
	}
	return out
}
