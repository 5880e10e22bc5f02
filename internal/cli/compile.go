package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/idxstore/internal/compiler"
	"github.com/roach88/idxstore/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledDatabase is one compiled definition with its schema hash.
type CompiledDatabase struct {
	ir.DatabaseSpec
	Hash string `json:"hash"`
}

// CompilationResult holds the compiled databases.
type CompilationResult struct {
	Databases []CompiledDatabase `json:"databases"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <definitions-dir>",
		Short: "Compile CUE database definitions to JSON",
		Long: `Compile the CUE database definitions in a directory.

Every field under "database" is compiled to a database definition with
its stores, keys and index lists, validated, and printed with the schema
hash used to detect definition drift between versions.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := compiler.Load(dir, compiler.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return formatter.Fail(ExitCommandError, code, message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{Databases: make([]CompiledDatabase, 0, len(loadResult.Databases))}
	for _, spec := range loadResult.Databases {
		formatter.VerboseLog("Compiled database: %s", spec.Name)
		hash, err := ir.SpecHash(spec)
		if err != nil {
			return formatter.Fail(ExitCommandError, compiler.ErrCodeGeneric, fmt.Sprintf("hashing %s: %v", spec.Name, err))
		}
		result.Databases = append(result.Databases, CompiledDatabase{DatabaseSpec: spec, Hash: hash})
	}

	if opts.Output != "" {
		if err := writeResult(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// ErrCodeWriteFailed reports a failure writing command output to a file.
const ErrCodeWriteFailed = "E008"

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d database(s)\n\n", len(result.Databases))
	for _, db := range result.Databases {
		fmt.Fprintf(w, "%s v%d (%s)\n", db.Name, db.Version, db.Hash)
		for _, s := range db.Stores {
			key := s.PrimaryKey
			if s.PrimaryKeyAuto {
				key += ", auto"
			}
			fmt.Fprintf(w, "  %s: key %s; %d unique, %d index(es)\n",
				s.Name, key, len(s.UniqueIndexes), len(s.Indexes))
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote definitions to %s\n", outputFile)
	}
	return nil
}

func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors}); err != nil {
			return err
		}
		return reportedExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return reportedExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from a load error.
func parseCompileError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var validationErr compiler.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Code, validationErr.Field + ": " + validationErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// writeResult writes the compiled definitions as indented JSON.
func writeResult(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling definitions: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}
