// Package querysql compiles query payloads to parameterized SQLite SQL over
// the records table of the sqlitedb engine.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/queryir"
)

// FoldFunc is the SQL function performing Unicode case folding. The engine
// registers it on every connection.
const FoldFunc = "idx_fold"

// Compiler compiles query groups to SQL for SQLite.
//
// Records are stored one JSON document per row:
//
//	records(db, store, key, doc)
//
// CRITICAL: every query includes ORDER BY for deterministic results.
// CRITICAL: all values and JSON paths are parameterized, never interpolated.
type Compiler struct{}

// NewCompiler creates a new Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile converts the filter of q into one SQL statement.
//
// Each OR-group becomes one SELECT tagged with its group index; the selects
// are joined with UNION ALL and ordered by (grp, key), so rows come back in
// the group-then-key order the reference semantics define. Deduplication and
// directives are applied by the caller on the returned rows.
//
// Result columns: grp, key, doc.
func (c *Compiler) Compile(db string, q queryir.Query) (string, []any, error) {
	if q.Store == "" {
		return "", nil, fmt.Errorf("cannot compile query without a store")
	}

	if len(q.Groups) == 0 {
		sql := "SELECT 0 AS grp, key, doc FROM records WHERE db = ? AND store = ? ORDER BY grp ASC, key ASC"
		return sql, []any{db, q.Store}, nil
	}

	var selects []string
	var params []any
	for i, g := range q.Groups {
		where, gp, err := c.compileGroup(g)
		if err != nil {
			return "", nil, fmt.Errorf("group %d: %w", i, err)
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT %d AS grp, key, doc FROM records WHERE db = ? AND store = ? AND %s", i, where))
		params = append(params, db, q.Store)
		params = append(params, gp...)
	}

	// MANDATORY: ORDER BY
	sql := strings.Join(selects, " UNION ALL ") + " ORDER BY grp ASC, key ASC"
	return sql, params, nil
}

// compileGroup compiles one AND-group.
func (c *Compiler) compileGroup(g queryir.Group) (string, []any, error) {
	if len(g) == 0 {
		return "", nil, fmt.Errorf("empty group")
	}

	parts := make([]string, 0, len(g))
	var params []any
	for _, cond := range g {
		sql, p, err := c.compileCondition(cond)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

// compileCondition compiles one condition. Each fragment guards the JSON
// type of the stored value so that values of a different kind never match an
// ordering comparison, as in queryir.Matches.
func (c *Compiler) compileCondition(cond queryir.Condition) (string, []any, error) {
	path := JSONPath(cond.Column)
	value := "json_extract(doc, ?)"
	typ := "json_type(doc, ?)"

	if ir.IsNull(cond.Value) {
		// A stored null never matches; a missing column never matches.
		if cond.Operation == queryir.NotEqual {
			return fmt.Sprintf("%s NOT IN ('null')", typ), []any{path}, nil
		}
		return "0 = 1", nil, nil
	}

	if b, ok := cond.Value.(ir.IRBool); ok {
		want := "false"
		if b {
			want = "true"
		}
		switch cond.Operation {
		case queryir.Equal:
			return fmt.Sprintf("%s = ?", typ), []any{path, want}, nil
		case queryir.NotEqual:
			return fmt.Sprintf("%s NOT IN ('null', ?)", typ), []any{path, want}, nil
		default:
			return "", nil, fmt.Errorf("operation %s on a boolean literal", cond.Operation)
		}
	}

	param, err := irValueToParam(cond.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}

	guard := fmt.Sprintf("%s IN ('integer', 'real')", typ)
	if _, isString := cond.Value.(ir.IRString); isString {
		guard = fmt.Sprintf("%s = 'text'", typ)
	}

	fold := cond.IsString && !cond.CaseSensitive
	if cond.Operation.IsString() {
		fold = !cond.CaseSensitive
	}
	lhs, rhs := value, "?"
	if fold {
		lhs = fmt.Sprintf("%s(%s)", FoldFunc, value)
		rhs = fmt.Sprintf("%s(?)", FoldFunc)
	}

	switch cond.Operation {
	case queryir.Equal:
		return fmt.Sprintf("(%s AND %s = %s)", guard, lhs, rhs), []any{path, path, param}, nil
	case queryir.NotEqual:
		// Present, non-null, and either another kind or a different value.
		sql := fmt.Sprintf("(%s NOT IN ('null') AND NOT (%s AND %s = %s))", typ, guard, lhs, rhs)
		return sql, []any{path, path, path, param}, nil
	case queryir.GreaterThan, queryir.GreaterThanOrEqual, queryir.LessThan, queryir.LessThanOrEqual:
		sql := fmt.Sprintf("(%s AND %s %s ?)", guard, value, relational(cond.Operation))
		return sql, []any{path, path, param}, nil
	case queryir.StringEquals:
		return fmt.Sprintf("(%s AND %s = %s)", guard, lhs, rhs), []any{path, path, param}, nil
	case queryir.Contains:
		sql := fmt.Sprintf("(%s AND instr(%s, %s) > 0)", guard, lhs, rhs)
		return sql, []any{path, path, param}, nil
	case queryir.StartsWith:
		sql := fmt.Sprintf("(%s AND substr(%s, 1, length(%s)) = %s)", guard, lhs, rhs, rhs)
		return sql, []any{path, path, param, param}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operation %q", cond.Operation)
	}
}

func relational(op queryir.Operation) string {
	switch op {
	case queryir.GreaterThan:
		return ">"
	case queryir.GreaterThanOrEqual:
		return ">="
	case queryir.LessThan:
		return "<"
	default:
		return "<="
	}
}

// JSONPath returns the SQLite JSON path addressing a top-level column.
// Column names are quoted so any character except '"' is allowed.
func JSONPath(column string) string {
	return `$."` + column + `"`
}

// irValueToParam converts an ir.IRValue to a Go native type for a SQL
// parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
