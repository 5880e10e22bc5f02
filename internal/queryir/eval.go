package queryir

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/idxstore/internal/ir"
)

// Reference semantics shared by the in-process engines. A remote engine is
// free to execute the payload however it likes as long as it agrees with
// these functions.

// Matches reports whether row satisfies c. A row lacking the column never
// matches, mirroring an index that holds no entry for the record.
func Matches(c Condition, row *ir.Bag) bool {
	v, ok := row.Get(c.Column)
	if !ok || ir.IsNull(v) {
		return false
	}

	if c.Operation.IsString() {
		s, ok1 := v.(ir.IRString)
		lit, ok2 := c.Value.(ir.IRString)
		if !ok1 || !ok2 {
			return false
		}
		a, b := string(s), string(lit)
		if !c.CaseSensitive {
			a, b = fold(a), fold(b)
		}
		switch c.Operation {
		case StringEquals:
			return a == b
		case Contains:
			return strings.Contains(a, b)
		default:
			return strings.HasPrefix(a, b)
		}
	}

	if c.IsString && !c.CaseSensitive && (c.Operation == Equal || c.Operation == NotEqual) {
		s, ok1 := v.(ir.IRString)
		lit, ok2 := c.Value.(ir.IRString)
		if ok1 && ok2 {
			eq := fold(string(s)) == fold(string(lit))
			return eq == (c.Operation == Equal)
		}
	}

	n, comparable := Compare(v, c.Value)
	switch c.Operation {
	case Equal:
		return comparable && n == 0
	case NotEqual:
		return !comparable || n != 0
	case GreaterThan:
		return comparable && n > 0
	case GreaterThanOrEqual:
		return comparable && n >= 0
	case LessThan:
		return comparable && n < 0
	case LessThanOrEqual:
		return comparable && n <= 0
	}
	return false
}

// MatchesGroup reports whether row satisfies every condition in g.
func MatchesGroup(g Group, row *ir.Bag) bool {
	for _, c := range g {
		if !Matches(c, row) {
			return false
		}
	}
	return true
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// Compare orders two scalar values. Numbers compare numerically across
// IRInt and IRFloat; strings by code point; false sorts before true. The
// second result is false when the values are of different kinds.
func Compare(a, b ir.IRValue) (int, bool) {
	switch x := a.(type) {
	case ir.IRInt:
		switch y := b.(type) {
		case ir.IRInt:
			return cmp.Compare(x, y), true
		case ir.IRFloat:
			return cmp.Compare(float64(x), float64(y)), true
		}
	case ir.IRFloat:
		switch y := b.(type) {
		case ir.IRInt:
			return cmp.Compare(float64(x), float64(y)), true
		case ir.IRFloat:
			return cmp.Compare(x, y), true
		}
	case ir.IRString:
		if y, ok := b.(ir.IRString); ok {
			return strings.Compare(string(x), string(y)), true
		}
	case ir.IRBool:
		if y, ok := b.(ir.IRBool); ok {
			return cmp.Compare(boolRank(bool(x)), boolRank(bool(y))), true
		}
	case ir.IRNull:
		if ir.IsNull(b) {
			return 0, true
		}
	}
	return 0, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sortRank orders values of different kinds: missing and null first, then
// numbers, strings and booleans.
func sortRank(v ir.IRValue) int {
	switch ir.KindOf(v) {
	case ir.KindNumber:
		return 1
	case ir.KindString:
		return 2
	case ir.KindBool:
		return 3
	case ir.KindNull:
		return 0
	default:
		return 4
	}
}

// SortCompare is the total order used by the ordering directives.
func SortCompare(a, b ir.IRValue) int {
	if ra, rb := sortRank(a), sortRank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	n, _ := Compare(a, b)
	return n
}

// Filter returns the rows matching groups, evaluated group by group in
// order and concatenated. Zero groups match every row. When unique is set,
// a row already emitted (by key) is not emitted again.
func Filter(groups Groups, rows []*ir.Bag, unique bool, key func(*ir.Bag) string) []*ir.Bag {
	if len(groups) == 0 {
		return slices.Clone(rows)
	}

	var out []*ir.Bag
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, row := range rows {
			if !MatchesGroup(g, row) {
				continue
			}
			if unique {
				k := key(row)
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			out = append(out, row)
		}
	}
	return out
}

// Apply runs directives over rows in declaration order.
func Apply(rows []*ir.Bag, directives []Directive) []*ir.Bag {
	out := slices.Clone(rows)
	for _, d := range directives {
		switch d.Name {
		case Take:
			out = out[:min(max(d.Count, 0), len(out))]
		case TakeLast:
			out = out[len(out)-min(max(d.Count, 0), len(out)):]
		case Skip:
			out = out[min(max(d.Count, 0), len(out)):]
		case OrderBy, OrderByDescending:
			col, desc := d.Column, d.Name == OrderByDescending
			slices.SortStableFunc(out, func(a, b *ir.Bag) int {
				va, _ := a.Get(col)
				vb, _ := b.Get(col)
				if desc {
					return SortCompare(vb, va)
				}
				return SortCompare(va, vb)
			})
		}
	}
	return out
}

// Execute filters rows and applies the query's directives.
func Execute(q Query, rows []*ir.Bag, key func(*ir.Bag) string) []*ir.Bag {
	return Apply(Filter(q.Groups, rows, q.Unique, key), q.Directives)
}
