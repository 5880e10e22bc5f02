package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/idxstore/internal/ir"
)

// CompileDatabase parses a CUE value into a DatabaseSpec.
//
// The CUE value should be the database struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`database: Directory: { ... }`)
//	spec, err := CompileDatabase(v.LookupPath(cue.ParsePath("database.Directory")))
//
// Stores keep their declaration order.
func CompileDatabase(v cue.Value) (*ir.DatabaseSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.DatabaseSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}
	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Name = name
	}

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return nil, &CompileError{
			Field:   "version",
			Message: "version is required",
			Pos:     v.Pos(),
		}
	}
	version, err := resolved(versionVal).Int64()
	if err != nil {
		return nil, &CompileError{
			Field:   "version",
			Message: fmt.Sprintf("version must be an integer: %v", err),
			Pos:     versionVal.Pos(),
		}
	}
	spec.Version = version

	storesVal := v.LookupPath(cue.ParsePath("stores"))
	if !storesVal.Exists() {
		return nil, &CompileError{
			Field:   "stores",
			Message: "at least one store is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := storesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		store, err := parseStore(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Stores = append(spec.Stores, store)
	}
	if len(spec.Stores) == 0 {
		return nil, &CompileError{
			Field:   "stores",
			Message: "at least one store is required",
			Pos:     storesVal.Pos(),
		}
	}

	return spec, nil
}

func parseStore(name string, v cue.Value) (ir.TableSchema, error) {
	s := ir.TableSchema{Name: name}

	pkVal := v.LookupPath(cue.ParsePath("primary_key"))
	if !pkVal.Exists() {
		return s, &CompileError{
			Field:   "primary_key",
			Message: fmt.Sprintf("store %q has no primary_key", name),
			Pos:     v.Pos(),
		}
	}
	pk, err := resolved(pkVal).String()
	if err != nil {
		return s, formatCUEError(err)
	}
	s.PrimaryKey = pk

	if autoVal := v.LookupPath(cue.ParsePath("auto_increment")); autoVal.Exists() {
		auto, err := resolved(autoVal).Bool()
		if err != nil {
			return s, formatCUEError(err)
		}
		s.PrimaryKeyAuto = auto
	}

	if s.UniqueIndexes, err = stringList(v, "unique_indexes"); err != nil {
		return s, err
	}
	if s.Indexes, err = stringList(v, "indexes"); err != nil {
		return s, err
	}
	return s, nil
}

// resolved picks the default of a disjunction such as `bool | *false`.
func resolved(v cue.Value) cue.Value {
	d, _ := v.Default()
	return d
}

// stringList reads an optional list of column names.
func stringList(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	listVal = resolved(listVal)
	if listVal.IncompleteKind() != cue.ListKind {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a list of column names", field),
			Pos:     listVal.Pos(),
		}
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		col, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("column names must be strings: %v", err),
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, col)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error that carries a position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
