package predicate

import (
	"errors"
	"fmt"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/queryir"
	"github.com/roach88/idxstore/internal/schema"
)

var (
	// ErrNestedOr is returned for an OR beneath another OR split, e.g.
	// a || ((b || c) && d) or ((a || (b || c)) && d).
	ErrNestedOr = errors.New("nested OR not supported")

	// ErrNotIndexed is returned when a comparison references a field that is
	// neither primary key, unique, nor indexed.
	ErrNotIndexed = errors.New("field is not indexed")

	// ErrUnsupportedExpr is returned for expression shapes the payload cannot
	// express: negation, field-to-field comparisons, unknown fields.
	ErrUnsupportedExpr = errors.New("unsupported expression")
)

// CompileError reports the sub-expression that failed to compile.
type CompileError struct {
	Err   error
	Field string
	Expr  string
}

func (e *CompileError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %s: %v", e.Expr, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Expr, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compile translates expr into OR-of-AND groups against the columns lookup
// resolves.
//
// The top-level OR chain splits into groups emitted left to right, so
// a || (b || c) yields three groups. Within a group, conditions keep the
// order their leaves appear in the expression. An OR beneath an AND is
// distributed: (a || b) && c compiles to [[a, c], [b, c]]. Once an OR has
// split, any OR beneath it fails with ErrNestedOr. A literal on the left of a
// relational operator is swapped to the right with the operator mirrored.
func Compile(lookup schema.Lookup, expr Expr) (queryir.Groups, error) {
	if expr == nil {
		return nil, &CompileError{Err: ErrUnsupportedExpr, Expr: Format(expr)}
	}
	c := &compiler{lookup: lookup}

	branches := flatten(OpOr, expr)
	depth := 0
	if len(branches) > 1 {
		depth = 1
	}
	var out queryir.Groups
	for _, branch := range branches {
		groups, err := c.compile(branch, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, groups...)
	}
	return out, nil
}

type compiler struct {
	lookup schema.Lookup
}

// compile returns the DNF of e. orDepth counts the OR splits enclosing e.
func (c *compiler) compile(e Expr, orDepth int) (queryir.Groups, error) {
	b, isBinary := e.(Binary)
	switch {
	case isBinary && b.Op == OpOr:
		if orDepth >= 1 {
			return nil, &CompileError{Err: ErrNestedOr, Expr: Format(e)}
		}
		left, err := c.compile(b.Left, orDepth+1)
		if err != nil {
			return nil, err
		}
		right, err := c.compile(b.Right, orDepth+1)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil

	case isBinary && b.Op == OpAnd:
		out := queryir.Groups{nil}
		for _, operand := range flatten(OpAnd, e) {
			groups, err := c.compile(operand, orDepth)
			if err != nil {
				return nil, err
			}
			out = product(out, groups)
		}
		return out, nil
	}

	cond, err := c.leaf(e)
	if err != nil {
		return nil, err
	}
	return queryir.Groups{{cond}}, nil
}

// flatten collects the operands of a chain of op, left to right.
func flatten(op BinOp, e Expr) []Expr {
	b, ok := e.(Binary)
	if !ok || b.Op != op {
		return []Expr{e}
	}
	return append(flatten(op, b.Left), flatten(op, b.Right)...)
}

// product distributes AND over OR: every left group joined with every right
// group, left-major.
func product(left, right queryir.Groups) queryir.Groups {
	out := make(queryir.Groups, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			g := make(queryir.Group, 0, len(l)+len(r))
			g = append(g, l...)
			g = append(g, r...)
			out = append(out, g)
		}
	}
	return out
}

func (c *compiler) leaf(e Expr) (queryir.Condition, error) {
	switch n := e.(type) {
	case Binary:
		return c.comparison(n)
	case Call:
		return c.call(n)
	default:
		// Not, or a bare field or literal.
		return queryir.Condition{}, &CompileError{Err: ErrUnsupportedExpr, Expr: Format(e)}
	}
}

var binaryOps = map[BinOp]queryir.Operation{
	OpEq: queryir.Equal,
	OpNe: queryir.NotEqual,
	OpLt: queryir.LessThan,
	OpLe: queryir.LessThanOrEqual,
	OpGt: queryir.GreaterThan,
	OpGe: queryir.GreaterThanOrEqual,
}

func (c *compiler) comparison(b Binary) (queryir.Condition, error) {
	op, ok := binaryOps[b.Op]
	if !ok {
		return queryir.Condition{}, &CompileError{Err: ErrUnsupportedExpr, Expr: Format(b)}
	}

	field, lit, swapped, ok := split(b.Left, b.Right)
	if !ok {
		return queryir.Condition{}, &CompileError{Err: ErrUnsupportedExpr, Expr: Format(b)}
	}
	if swapped {
		op = op.Mirror()
	}

	col, err := c.resolve(field, b)
	if err != nil {
		return queryir.Condition{}, err
	}
	value, err := ir.FromGo(lit.Value)
	if err != nil {
		return queryir.Condition{}, &CompileError{Err: fmt.Errorf("%w: %v", ErrUnsupportedExpr, err), Field: field.Name, Expr: Format(b)}
	}
	if op.IsRelational() {
		switch value.(type) {
		case ir.IRInt, ir.IRFloat, ir.IRString:
		default:
			return queryir.Condition{}, &CompileError{
				Err:   fmt.Errorf("%w: %s needs a number or string operand", ErrUnsupportedExpr, b.Op),
				Field: field.Name,
				Expr:  Format(b),
			}
		}
	}
	if k := ir.KindOf(value); k == ir.KindArray || k == ir.KindObject {
		return queryir.Condition{}, &CompileError{
			Err:   fmt.Errorf("%w: %s operand", ErrUnsupportedExpr, k),
			Field: field.Name,
			Expr:  Format(b),
		}
	}

	_, isString := value.(ir.IRString)
	return queryir.Condition{
		Column:        col.Name,
		Operation:     op,
		Value:         value,
		IsString:      isString,
		CaseSensitive: true,
	}, nil
}

var methodOps = map[Method]queryir.Operation{
	MethodEquals:     queryir.StringEquals,
	MethodContains:   queryir.Contains,
	MethodStartsWith: queryir.StartsWith,
}

func (c *compiler) call(n Call) (queryir.Condition, error) {
	op, ok := methodOps[n.Method]
	if !ok {
		return queryir.Condition{}, &CompileError{Err: ErrUnsupportedExpr, Expr: Format(n)}
	}
	field, ok := n.Target.(Field)
	if !ok {
		return queryir.Condition{}, &CompileError{
			Err:  fmt.Errorf("%w: %s must be called on a field", ErrUnsupportedExpr, n.Method),
			Expr: Format(n),
		}
	}
	lit, ok := n.Arg.(Literal)
	if !ok {
		return queryir.Condition{}, &CompileError{
			Err:   fmt.Errorf("%w: %s argument must be a constant", ErrUnsupportedExpr, n.Method),
			Field: field.Name,
			Expr:  Format(n),
		}
	}
	s, ok := lit.Value.(string)
	if !ok {
		return queryir.Condition{}, &CompileError{
			Err:   fmt.Errorf("%w: %s argument must be a string", ErrUnsupportedExpr, n.Method),
			Field: field.Name,
			Expr:  Format(n),
		}
	}

	col, err := c.resolve(field, n)
	if err != nil {
		return queryir.Condition{}, err
	}
	if col.Kind != schema.KindString && col.Kind != schema.KindUUID {
		return queryir.Condition{}, &CompileError{
			Err:   fmt.Errorf("%w: %s on a non-string field", ErrUnsupportedExpr, n.Method),
			Field: field.Name,
			Expr:  Format(n),
		}
	}

	return queryir.Condition{
		Column:        col.Name,
		Operation:     op,
		Value:         ir.IRString(s),
		IsString:      true,
		CaseSensitive: n.Comparison.CaseSensitive(),
	}, nil
}

// split orients a comparison as field-op-literal. swapped reports that the
// literal was on the left.
func split(left, right Expr) (Field, Literal, bool, bool) {
	if f, ok := left.(Field); ok {
		if l, ok := right.(Literal); ok {
			return f, l, false, true
		}
	}
	if l, ok := left.(Literal); ok {
		if f, ok := right.(Field); ok {
			return f, l, true, true
		}
	}
	return Field{}, Literal{}, false, false
}

func (c *compiler) resolve(f Field, at Expr) (schema.Column, error) {
	col, ok := c.lookup.Resolve(f.Name)
	if !ok {
		return schema.Column{}, &CompileError{
			Err:   fmt.Errorf("%w: no field %q on %s", ErrUnsupportedExpr, f.Name, c.lookup.Name()),
			Field: f.Name,
			Expr:  Format(at),
		}
	}
	if !col.Indexed() {
		return schema.Column{}, &CompileError{Err: ErrNotIndexed, Field: f.Name, Expr: Format(at)}
	}
	return col, nil
}
