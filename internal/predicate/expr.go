package predicate

import (
	"fmt"
	"strings"

	"github.com/roach88/idxstore/internal/ir"
)

// Expr is a node of a boolean predicate expression.
//
// This is a sealed interface - only types in this package implement it.
// Build trees with F, L, And, Or and Not rather than by hand.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
	fmt.Stringer
}

// BinOp is a binary operator.
type BinOp uint8

const (
	OpEq BinOp = iota + 1
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

func (op BinOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Method is a string method recognized on a field.
type Method uint8

const (
	MethodEquals Method = iota + 1
	MethodContains
	MethodStartsWith
)

func (m Method) String() string {
	switch m {
	case MethodEquals:
		return "Equals"
	case MethodContains:
		return "Contains"
	case MethodStartsWith:
		return "StartsWith"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// Comparison selects how a string method compares text.
type Comparison uint8

const (
	// Default compares case-sensitively.
	Default Comparison = iota
	// Ordinal compares code points; case-sensitive.
	Ordinal
	// Invariant compares culture-independently; case-sensitive.
	Invariant
	// CultureAware compares linguistically, ignoring case.
	CultureAware
)

// CaseSensitive reports whether the comparison distinguishes case.
func (c Comparison) CaseSensitive() bool {
	return c != CultureAware
}

func (c Comparison) String() string {
	switch c {
	case Ordinal:
		return "Ordinal"
	case Invariant:
		return "Invariant"
	case CultureAware:
		return "CultureAware"
	default:
		return "Default"
	}
}

// Field references a record field by its declared name.
type Field struct {
	Name string
}

func (Field) exprNode() {}

func (f Field) String() string { return f.Name }

// Literal is a constant operand.
type Literal struct {
	Value any
}

func (Literal) exprNode() {}

func (l Literal) String() string {
	if v, err := ir.FromGo(l.Value); err == nil {
		if data, err := ir.MarshalCanonical(v); err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", l.Value)
}

// Binary is a comparison or logical connective.
type Binary struct {
	Op    BinOp
	Left  Expr
	Right Expr
}

func (Binary) exprNode() {}

func (b Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// Call is a string method invoked on Target with one argument.
type Call struct {
	Method     Method
	Target     Expr
	Arg        Expr
	Comparison Comparison
}

func (Call) exprNode() {}

func (c Call) String() string {
	if c.Comparison == Default {
		return fmt.Sprintf("%s.%s(%s)", c.Target, c.Method, c.Arg)
	}
	return fmt.Sprintf("%s.%s(%s, %s)", c.Target, c.Method, c.Arg, c.Comparison)
}

// Not negates an expression. The compiler rejects it: the payload has no
// negation.
type Not struct {
	X Expr
}

func (Not) exprNode() {}

func (n Not) String() string { return fmt.Sprintf("!%s", n.X) }

// F references a field.
func F(name string) Field { return Field{Name: name} }

// L wraps a constant so it can appear on the left of a comparison.
func L(v any) Literal { return Literal{Value: v} }

func operand(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return Literal{Value: v}
}

func comparison(cmp []Comparison) Comparison {
	if len(cmp) == 0 {
		return Default
	}
	return cmp[0]
}

// Eq builds f == v. v may be a literal value or another Expr.
func (f Field) Eq(v any) Expr { return Binary{Op: OpEq, Left: f, Right: operand(v)} }

// Ne builds f != v.
func (f Field) Ne(v any) Expr { return Binary{Op: OpNe, Left: f, Right: operand(v)} }

// Lt builds f < v.
func (f Field) Lt(v any) Expr { return Binary{Op: OpLt, Left: f, Right: operand(v)} }

// Le builds f <= v.
func (f Field) Le(v any) Expr { return Binary{Op: OpLe, Left: f, Right: operand(v)} }

// Gt builds f > v.
func (f Field) Gt(v any) Expr { return Binary{Op: OpGt, Left: f, Right: operand(v)} }

// Ge builds f >= v.
func (f Field) Ge(v any) Expr { return Binary{Op: OpGe, Left: f, Right: operand(v)} }

// Equals builds f.Equals(s[, cmp]).
func (f Field) Equals(s string, cmp ...Comparison) Expr {
	return Call{Method: MethodEquals, Target: f, Arg: Literal{Value: s}, Comparison: comparison(cmp)}
}

// Contains builds f.Contains(s[, cmp]).
func (f Field) Contains(s string, cmp ...Comparison) Expr {
	return Call{Method: MethodContains, Target: f, Arg: Literal{Value: s}, Comparison: comparison(cmp)}
}

// StartsWith builds f.StartsWith(s[, cmp]).
func (f Field) StartsWith(s string, cmp ...Comparison) Expr {
	return Call{Method: MethodStartsWith, Target: f, Arg: Literal{Value: s}, Comparison: comparison(cmp)}
}

// Eq builds l == e.
func (l Literal) Eq(e Expr) Expr { return Binary{Op: OpEq, Left: l, Right: e} }

// Ne builds l != e.
func (l Literal) Ne(e Expr) Expr { return Binary{Op: OpNe, Left: l, Right: e} }

// Lt builds l < e.
func (l Literal) Lt(e Expr) Expr { return Binary{Op: OpLt, Left: l, Right: e} }

// Le builds l <= e.
func (l Literal) Le(e Expr) Expr { return Binary{Op: OpLe, Left: l, Right: e} }

// Gt builds l > e.
func (l Literal) Gt(e Expr) Expr { return Binary{Op: OpGt, Left: l, Right: e} }

// Ge builds l >= e.
func (l Literal) Ge(e Expr) Expr { return Binary{Op: OpGe, Left: l, Right: e} }

// And chains operands left-associatively: And(a, b, c) is ((a && b) && c).
func And(first Expr, rest ...Expr) Expr { return chain(OpAnd, first, rest) }

// Or chains operands left-associatively: Or(a, b, c) is ((a || b) || c).
func Or(first Expr, rest ...Expr) Expr { return chain(OpOr, first, rest) }

func chain(op BinOp, first Expr, rest []Expr) Expr {
	out := first
	for _, e := range rest {
		out = Binary{Op: op, Left: out, Right: e}
	}
	return out
}

// Negate wraps x in Not.
func Negate(x Expr) Expr { return Not{X: x} }

// Format renders an expression for diagnostics.
func Format(e Expr) string {
	if e == nil {
		return "<nil>"
	}
	return strings.TrimSpace(e.String())
}
