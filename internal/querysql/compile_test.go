package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/queryir"
)

func TestCompile_NoGroups(t *testing.T) {
	sql, params, err := NewCompiler().Compile("Shop", queryir.Query{Store: "Person"})
	require.NoError(t, err)

	assert.Equal(t, "SELECT 0 AS grp, key, doc FROM records WHERE db = ? AND store = ? ORDER BY grp ASC, key ASC", sql)
	assert.Equal(t, []any{"Shop", "Person"}, params)
}

func TestCompile_SingleGroup(t *testing.T) {
	q := queryir.Query{
		Store: "Person",
		Groups: queryir.Groups{{
			{Column: "Name", Operation: queryir.Equal, Value: ir.IRString("Bob"), IsString: true, CaseSensitive: true},
			{Column: "age", Operation: queryir.GreaterThan, Value: ir.IRInt(30)},
		}},
	}

	sql, params, err := NewCompiler().Compile("Shop", q)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT 0 AS grp, key, doc FROM records WHERE db = ? AND store = ? AND "+
			"((json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?) AND "+
			"(json_type(doc, ?) IN ('integer', 'real') AND json_extract(doc, ?) > ?)) "+
			"ORDER BY grp ASC, key ASC",
		sql)
	assert.Equal(t, []any{"Shop", "Person", `$."Name"`, `$."Name"`, "Bob", `$."age"`, `$."age"`, int64(30)}, params)
}

func TestCompile_NoStringInterpolation(t *testing.T) {
	q := queryir.Query{
		Store: "Person",
		Groups: queryir.Groups{{
			{Column: "Name'; DROP TABLE records; --", Operation: queryir.Equal, Value: ir.IRString("x' OR '1'='1"), IsString: true},
		}},
	}

	sql, params, err := NewCompiler().Compile("Shop", q)
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.NotContains(t, sql, "'1'='1")
	assert.Contains(t, params, "x' OR '1'='1")
}

func TestCompile_GroupsUnionInOrder(t *testing.T) {
	q := queryir.Query{
		Store: "Person",
		Groups: queryir.Groups{
			{{Column: "Name", Operation: queryir.StartsWith, Value: ir.IRString("c"), IsString: true}},
			{{Column: "Name", Operation: queryir.StartsWith, Value: ir.IRString("l"), IsString: true}},
		},
	}

	sql, params, err := NewCompiler().Compile("Shop", q)
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT 0 AS grp")
	assert.Contains(t, sql, " UNION ALL SELECT 1 AS grp")
	assert.Contains(t, sql, "substr(idx_fold(json_extract(doc, ?)), 1, length(idx_fold(?))) = idx_fold(?)")
	assert.Contains(t, sql, "ORDER BY grp ASC, key ASC")
	assert.Len(t, params, 12)
}

func TestCompile_Operations(t *testing.T) {
	tests := []struct {
		name   string
		cond   queryir.Condition
		sql    string
		params []any
	}{
		{
			name:   "not equal",
			cond:   queryir.Condition{Column: "age", Operation: queryir.NotEqual, Value: ir.IRInt(3)},
			sql:    "(json_type(doc, ?) NOT IN ('null') AND NOT (json_type(doc, ?) IN ('integer', 'real') AND json_extract(doc, ?) = ?))",
			params: []any{`$."age"`, `$."age"`, `$."age"`, int64(3)},
		},
		{
			name:   "less or equal float",
			cond:   queryir.Condition{Column: "Score", Operation: queryir.LessThanOrEqual, Value: ir.IRFloat(2.5)},
			sql:    "(json_type(doc, ?) IN ('integer', 'real') AND json_extract(doc, ?) <= ?)",
			params: []any{`$."Score"`, `$."Score"`, 2.5},
		},
		{
			name:   "contains sensitive",
			cond:   queryir.Condition{Column: "Name", Operation: queryir.Contains, Value: ir.IRString("ob"), IsString: true, CaseSensitive: true},
			sql:    "(json_type(doc, ?) = 'text' AND instr(json_extract(doc, ?), ?) > 0)",
			params: []any{`$."Name"`, `$."Name"`, "ob"},
		},
		{
			name:   "string equals folded",
			cond:   queryir.Condition{Column: "Name", Operation: queryir.StringEquals, Value: ir.IRString("BOB"), IsString: true},
			sql:    "(json_type(doc, ?) = 'text' AND idx_fold(json_extract(doc, ?)) = idx_fold(?))",
			params: []any{`$."Name"`, `$."Name"`, "BOB"},
		},
		{
			name:   "bool equal",
			cond:   queryir.Condition{Column: "Retired", Operation: queryir.Equal, Value: ir.IRBool(true)},
			sql:    "json_type(doc, ?) = ?",
			params: []any{`$."Retired"`, "true"},
		},
		{
			name:   "null equal never matches",
			cond:   queryir.Condition{Column: "Retired", Operation: queryir.Equal, Value: ir.IRNull{}},
			sql:    "0 = 1",
			params: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := NewCompiler().compileCondition(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	c := NewCompiler()

	_, _, err := c.Compile("Shop", queryir.Query{})
	assert.Error(t, err)

	_, _, err = c.Compile("Shop", queryir.Query{Store: "P", Groups: queryir.Groups{{}}})
	assert.Error(t, err)

	_, _, err = c.Compile("Shop", queryir.Query{Store: "P", Groups: queryir.Groups{{
		{Column: "a", Operation: queryir.LessThan, Value: ir.IRBool(true)},
	}}})
	assert.Error(t, err)

	_, _, err = c.Compile("Shop", queryir.Query{Store: "P", Groups: queryir.Groups{{
		{Column: "a", Operation: queryir.Equal, Value: ir.IRArray{}},
	}}})
	assert.Error(t, err)
}
