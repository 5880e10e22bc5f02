package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/idxstore/internal/ir"
)

// LoadMode controls how errors are handled while loading definitions.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes (E001-E009)
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoDatabases = "E007" // no database definitions
)

// LoadResult contains the databases compiled from a directory.
type LoadResult struct {
	Databases []ir.DatabaseSpec
	CUEValue  cue.Value
	FileCount int
}

// Database returns the named database definition.
func (r *LoadResult) Database(name string) (ir.DatabaseSpec, bool) {
	for _, d := range r.Databases {
		if d.Name == name {
			return d, true
		}
	}
	return ir.DatabaseSpec{}, false
}

// LoadError is an error that occurred while loading definitions.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load builds the CUE package in dir and compiles every field under
// `database`. Compiled databases are also validated; validation errors are
// returned as ValidationError values.
func Load(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{CUEValue: value, FileCount: len(cueFiles)}
	return result, compileAll(result, value, mode)
}

// LoadValue compiles the databases of an already built CUE value.
func LoadValue(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	result := &LoadResult{CUEValue: value}
	return result, compileAll(result, value, mode)
}

func compileAll(result *LoadResult, value cue.Value, mode LoadMode) []error {
	var errs []error

	dbVal := value.LookupPath(cue.ParsePath("database"))
	if !dbVal.Exists() {
		return []error{&LoadError{Code: ErrCodeNoDatabases, Message: "no database definitions found"}}
	}
	iter, err := dbVal.Fields()
	if err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating databases: %v", err)}}
	}

	for iter.Next() {
		spec, err := CompileDatabase(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "database."+iter.Label()))
			if mode == LoadModeFailFast {
				return errs
			}
			continue
		}
		if verrs := Validate(spec); len(verrs) > 0 {
			for _, ve := range verrs {
				ve.Field = spec.Name + "." + ve.Field
				errs = append(errs, ve)
				if mode == LoadModeFailFast {
					return errs
				}
			}
			continue
		}
		result.Databases = append(result.Databases, *spec)
	}

	if len(result.Databases) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoDatabases, Message: "no database definitions found"})
	}
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "version":
		return ErrDatabaseVersion
	case "stores":
		return ErrNoStores
	case "primary_key":
		return ErrMissingKey
	case "unique_indexes", "indexes":
		return ErrInvalidColumn
	default:
		return ErrCodeGeneric
	}
}
