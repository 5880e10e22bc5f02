package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	definitionsDir = filepath.Join("..", "compiler", "testdata", "directory")
	brokenDir      = filepath.Join("..", "compiler", "testdata", "broken")
	emptyDir       = filepath.Join("..", "compiler", "testdata", "empty")
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompile_Text(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), definitionsDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 2 database(s)")
	assert.Contains(t, out, "Directory v1 (")
	assert.Contains(t, out, "  Person: key Id, auto; 2 unique, 2 index(es)")
	assert.Contains(t, out, "Inventory v3 (")
	assert.Contains(t, out, "  Item: key Id; 1 unique, 1 index(es)")
	assert.Contains(t, out, "  Supplier: key Code; 0 unique, 0 index(es)")
}

func TestCompile_JSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), definitionsDir)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Databases, 2)

	names := []string{resp.Data.Databases[0].Name, resp.Data.Databases[1].Name}
	assert.ElementsMatch(t, []string{"Directory", "Inventory"}, names)
	for _, db := range resp.Data.Databases {
		assert.Len(t, db.Hash, 64, db.Name)
		assert.NotEmpty(t, db.Stores)
	}
}

func TestCompile_OutputFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "defs.json")
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), definitionsDir, "-o", outFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote definitions to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Databases, 2)
}

func TestCompile_CollectsAllErrors(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), brokenDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "compilation failed with 2 error(s)")
	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, out, "E111")
	assert.Contains(t, out, "E113")
}

func TestCompile_ErrorsJSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), brokenDir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []CLIError `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 2)
	require.NotNil(t, resp.Error)
	assert.Equal(t, resp.Data[0].Code, resp.Error.Code)
}

func TestCompile_MissingDirectory(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "/nonexistent/defs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestCompile_MissingArgs(t *testing.T) {
	_, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
