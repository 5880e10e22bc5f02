package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/idxstore/internal/ir"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each rule violation, in traversal order.
	Problems []string
}

// Err returns nil for a valid result, otherwise an error joining all problems.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks a query against the payload rules.
//
// Rules:
//  1. Store is named
//  2. Every group has at least one condition (zero groups means "all rows")
//  3. Every condition names a column and a known operation
//  4. String operations compare against a string literal
//  5. Relational operations compare against a number or string literal
//  6. Directives are known; counts are non-negative; orderings name a column
//
// Validate is a pure function with no side effects.
func Validate(q Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(q)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	if q.Store == "" {
		v.addProblem("store name is required")
	}
	for i, g := range q.Groups {
		if len(g) == 0 {
			v.addProblem("group %d is empty", i)
		}
		for j, c := range g {
			v.validateCondition(fmt.Sprintf("group %d condition %d", i, j), c)
		}
	}
	for i, d := range q.Directives {
		v.validateDirective(i, d)
	}
}

func (v *validator) validateCondition(at string, c Condition) {
	if c.Column == "" {
		v.addProblem("%s: column is required", at)
	}
	if !c.Operation.Valid() {
		v.addProblem("%s: unknown operation %q", at, c.Operation)
		return
	}

	kind := ir.KindOf(c.Value)
	switch {
	case c.Operation.IsString():
		if kind != ir.KindString {
			v.addProblem("%s: %s requires a string value, got %s", at, c.Operation, kind)
		}
	case c.Operation.IsRelational():
		if kind != ir.KindNumber && kind != ir.KindString {
			v.addProblem("%s: %s requires a number or string value, got %s", at, c.Operation, kind)
		}
	default:
		if kind == ir.KindArray || kind == ir.KindObject {
			v.addProblem("%s: %s requires a scalar value, got %s", at, c.Operation, kind)
		}
	}
	if c.IsString && kind != ir.KindString {
		v.addProblem("%s: is_string set on a %s value", at, kind)
	}
}

func (v *validator) validateDirective(i int, d Directive) {
	switch d.Name {
	case Take, TakeLast, Skip:
		if d.Count < 0 {
			v.addProblem("directive %d: %s count must be >= 0, got %d", i, d.Name, d.Count)
		}
	case OrderBy, OrderByDescending:
		if d.Column == "" {
			v.addProblem("directive %d: %s requires a column", i, d.Name)
		}
	default:
		v.addProblem("directive %d: unknown directive %q", i, d.Name)
	}
}
