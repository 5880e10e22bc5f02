package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/compiler"
	"github.com/roach88/idxstore/internal/ir"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Decrypt []string // columns to decrypt with the keyring secret
}

// DumpResult holds the rows of one store.
type DumpResult struct {
	Database string        `json:"database"`
	Store    string        `json:"store"`
	Rows     []ir.IRObject `json:"rows"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <definitions-dir> <database> <store>",
		Short: "Print every row of a store",
		Long: `Open a database from its definition on the configured backend and
print every row of one store in primary key order, one canonical JSON
object per line.

Opening applies the definition: a newer version upgrades the stored
database first. Encrypted columns are printed as stored unless named
with --decrypt.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Decrypt, "decrypt", nil, "columns to decrypt with the keyring secret")

	return cmd
}

func runDump(opts *DumpOptions, dir, database, storeName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	loadResult, loadErrors := compiler.Load(dir, compiler.LoadModeFailFast)
	if len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return formatter.Fail(ExitCommandError, code, message)
	}
	spec, ok := loadResult.Database(database)
	if !ok {
		return formatter.Fail(ExitCommandError, string(boundary.ErrCodeUnknownDatabase),
			fmt.Sprintf("database %s is not defined in %s", database, dir))
	}

	s, err := openSession(ctx, opts.RootOptions, spec, len(opts.Decrypt) > 0)
	if err != nil {
		return err
	}
	defer s.close()

	open, err := s.manager.OpenDatabaseAsync(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, string(boundary.CodeOf(err)), err.Error())
	}
	if open.Failed {
		return formatter.Fail(ExitCommandError, "OPEN_FAILED", open.Message)
	}
	formatter.VerboseLog("%s", open.Message)

	rows, err := s.manager.Rows(ctx, storeName)
	if err != nil {
		return formatter.Fail(ExitCommandError, string(boundary.CodeOf(err)), err.Error())
	}

	result := DumpResult{Database: spec.Name, Store: storeName, Rows: make([]ir.IRObject, 0, len(rows))}
	for _, row := range rows {
		for _, col := range opts.Decrypt {
			v, ok := row.Get(col)
			cipher, isString := v.(ir.IRString)
			if !ok || !isString {
				continue
			}
			plain, err := s.manager.Decrypt(ctx, string(cipher))
			if err != nil {
				return formatter.Fail(ExitFailure, "DECRYPT_FAILED", fmt.Sprintf("%s: %v", col, err))
			}
			row.Set(col, ir.IRString(plain))
		}
		result.Rows = append(result.Rows, row.Object())
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	for _, row := range result.Rows {
		line, err := ir.MarshalCanonical(row)
		if err != nil {
			return err
		}
		fmt.Fprintln(formatter.Writer, string(line))
	}
	formatter.VerboseLog("%d row(s) in %s", len(result.Rows), storeName)
	return nil
}
