package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/testutil"
)

func compileString(t *testing.T, src, path string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v.LookupPath(cue.ParsePath(path))
}

func TestCompileDatabaseBasic(t *testing.T) {
	v := compileString(t, `
		database: Directory: {
			version: 1
			stores: Person: {
				primary_key:    "Id"
				auto_increment: true
				unique_indexes: ["GUID", "Email"]
				indexes: ["Name", "age"]
			}
		}
	`, "database.Directory")

	spec, err := CompileDatabase(v)
	require.NoError(t, err)
	assert.Equal(t, testutil.PeopleSpec(), *spec)
}

func TestCompileDatabaseKeepsStoreOrder(t *testing.T) {
	v := compileString(t, `
		database: Shop: {
			version: 2
			stores: {
				Zebra: primary_key: "Id"
				Apple: primary_key: "Id"
				Mango: primary_key: "Code"
			}
		}
	`, "database.Shop")

	spec, err := CompileDatabase(v)
	require.NoError(t, err)
	require.Len(t, spec.Stores, 3)
	assert.Equal(t, "Zebra", spec.Stores[0].Name)
	assert.Equal(t, "Apple", spec.Stores[1].Name)
	assert.Equal(t, "Mango", spec.Stores[2].Name)
	assert.Equal(t, int64(2), spec.Version)
	assert.False(t, spec.Stores[2].PrimaryKeyAuto)
	assert.Empty(t, spec.Stores[2].Indexes)
}

func TestCompileDatabaseNameOverride(t *testing.T) {
	v := compileString(t, `
		database: dir: {
			name:    "Directory"
			version: 1
			stores: Person: primary_key: "Id"
		}
	`, "database.dir")

	spec, err := CompileDatabase(v)
	require.NoError(t, err)
	assert.Equal(t, "Directory", spec.Name)
}

func TestCompileDatabaseErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "missing version",
			src:   `database: D: { stores: S: primary_key: "Id" }`,
			field: "version",
		},
		{
			name:  "float version",
			src:   `database: D: { version: 1.5, stores: S: primary_key: "Id" }`,
			field: "version",
		},
		{
			name:  "missing stores",
			src:   `database: D: { version: 1 }`,
			field: "stores",
		},
		{
			name:  "empty stores",
			src:   `database: D: { version: 1, stores: {} }`,
			field: "stores",
		},
		{
			name:  "missing primary key",
			src:   `database: D: { version: 1, stores: S: indexes: ["a"] }`,
			field: "primary_key",
		},
		{
			name:  "indexes not a list",
			src:   `database: D: { version: 1, stores: S: { primary_key: "Id", indexes: "Name" } }`,
			field: "indexes",
		},
		{
			name:  "non-string column",
			src:   `database: D: { version: 1, stores: S: { primary_key: "Id", unique_indexes: [1] } }`,
			field: "unique_indexes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compileString(t, tt.src, "database.D")
			_, err := CompileDatabase(v)
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "version", Message: "version is required"}
	assert.Equal(t, "version: version is required", err.Error())
}

func TestFormatCUEErrorNil(t *testing.T) {
	assert.NoError(t, formatCUEError(nil))
}
