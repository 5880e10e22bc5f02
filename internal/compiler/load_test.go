package compiler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/testutil"
)

func TestLoadDirectory(t *testing.T) {
	result, errs := Load(filepath.Join("testdata", "directory"), LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Databases, 2)

	dir, ok := result.Database("Directory")
	require.True(t, ok)
	assert.Equal(t, testutil.PeopleSpec(), dir)

	inv, ok := result.Database("Inventory")
	require.True(t, ok)
	assert.Equal(t, int64(3), inv.Version)
	require.Len(t, inv.Stores, 2)
	assert.Equal(t, "Id", inv.Stores[0].PrimaryKey)
	assert.Equal(t, []string{"Sku"}, inv.Stores[0].UniqueIndexes)
	assert.Equal(t, "Code", inv.Stores[1].PrimaryKey)

	_, ok = result.Database("Missing")
	assert.False(t, ok)
}

func TestLoadCollectsAllErrors(t *testing.T) {
	result, errs := Load(filepath.Join("testdata", "broken"), LoadModeCollectAll)
	require.NotNil(t, result)
	require.Len(t, errs, 2)
	assert.Empty(t, result.Databases)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrMissingKey, le.Code)
	assert.Contains(t, le.Message, "database.NoKey")

	var ve ValidationError
	require.ErrorAs(t, errs[1], &ve)
	assert.Equal(t, ErrDuplicateColumn, ve.Code)
	assert.Equal(t, "Twice.stores[0].indexes", ve.Field)
}

func TestLoadFailFast(t *testing.T) {
	_, errs := Load(filepath.Join("testdata", "broken"), LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestLoadDirectoryErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing", filepath.Join("testdata", "nope"), ErrCodeNotFound},
		{"file", filepath.Join("testdata", "directory", "directory.cue"), ErrCodeNotFound},
		{"no files", t.TempDir(), ErrCodeNoFiles},
		{"no databases", filepath.Join("testdata", "empty"), ErrCodeNoDatabases},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := Load(tt.dir, LoadModeCollectAll)
			require.Len(t, errs, 1)

			var le *LoadError
			require.ErrorAs(t, errs[0], &le)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrMissingKey, MapFieldToErrorCode("primary_key"))
	assert.Equal(t, ErrInvalidColumn, MapFieldToErrorCode("indexes"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("cue"))
}
