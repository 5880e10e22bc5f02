package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/testutil"
)

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateDatabaseValid(t *testing.T) {
	spec := testutil.PeopleSpec()
	assert.Empty(t, Validate(&spec))
	assert.Empty(t, Validate(spec))
}

func TestValidateDatabaseErrors(t *testing.T) {
	tests := []struct {
		name  string
		spec  ir.DatabaseSpec
		codes []string
	}{
		{
			name:  "no name",
			spec:  ir.DatabaseSpec{Version: 1, Stores: []ir.TableSchema{{Name: "S", PrimaryKey: "Id"}}},
			codes: []string{ErrDatabaseName},
		},
		{
			name:  "zero version",
			spec:  ir.DatabaseSpec{Name: "D", Stores: []ir.TableSchema{{Name: "S", PrimaryKey: "Id"}}},
			codes: []string{ErrDatabaseVersion},
		},
		{
			name:  "no stores",
			spec:  ir.DatabaseSpec{Name: "D", Version: 1},
			codes: []string{ErrNoStores},
		},
		{
			name: "duplicate store",
			spec: ir.DatabaseSpec{Name: "D", Version: 1, Stores: []ir.TableSchema{
				{Name: "S", PrimaryKey: "Id"},
				{Name: "S", PrimaryKey: "Id"},
			}},
			codes: []string{ErrDuplicateStore},
		},
		{
			name:  "unnamed store",
			spec:  ir.DatabaseSpec{Name: "D", Version: 1, Stores: []ir.TableSchema{{PrimaryKey: "Id"}}},
			codes: []string{ErrStoreName},
		},
		{
			name:  "missing key",
			spec:  ir.DatabaseSpec{Name: "D", Version: 1, Stores: []ir.TableSchema{{Name: "S"}}},
			codes: []string{ErrMissingKey},
		},
		{
			name: "empty column",
			spec: ir.DatabaseSpec{Name: "D", Version: 1, Stores: []ir.TableSchema{
				{Name: "S", PrimaryKey: "Id", Indexes: []string{""}},
			}},
			codes: []string{ErrInvalidColumn},
		},
		{
			name: "column in both lists",
			spec: ir.DatabaseSpec{Name: "D", Version: 1, Stores: []ir.TableSchema{
				{Name: "S", PrimaryKey: "Id", UniqueIndexes: []string{"Email"}, Indexes: []string{"Email"}},
			}},
			codes: []string{ErrDuplicateColumn},
		},
		{
			name: "key listed as index",
			spec: ir.DatabaseSpec{Name: "D", Version: 1, Stores: []ir.TableSchema{
				{Name: "S", PrimaryKey: "Id", Indexes: []string{"Id"}},
			}},
			codes: []string{ErrIndexedKeyColumn},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&tt.spec)
			assert.Equal(t, tt.codes, codes(errs), "%v", errs)
		})
	}
}

func TestValidateStoreFieldPaths(t *testing.T) {
	spec := ir.DatabaseSpec{Name: "D", Version: 1, Stores: []ir.TableSchema{
		{Name: "A", PrimaryKey: "Id"},
		{Name: "B"},
	}}

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, "stores[1].primary_key", errs[0].Field)
	assert.Equal(t, `[E111] stores[1].primary_key: store "B" has no primary key`, errs[0].Error())
}

func TestValidateSingleStore(t *testing.T) {
	errs := Validate(ir.TableSchema{Name: "S", PrimaryKey: "Id", Indexes: []string{"Id"}})
	assert.Equal(t, []string{ErrIndexedKeyColumn}, codes(errs))
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("not a spec")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidationErrorWithLine(t *testing.T) {
	err := ValidationError{Field: "version", Message: "bad", Code: ErrDatabaseVersion, Line: 4}
	assert.Equal(t, "[E102] line 4: version: bad", err.Error())
}
