package queryir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/idxstore/internal/ir"
)

// Operation is a condition's comparison operator.
type Operation string

const (
	Equal              Operation = "Equal"
	NotEqual           Operation = "NotEqual"
	GreaterThan        Operation = "GreaterThan"
	GreaterThanOrEqual Operation = "GreaterThanOrEqual"
	LessThan           Operation = "LessThan"
	LessThanOrEqual    Operation = "LessThanOrEqual"
	StringEquals       Operation = "StringEquals"
	Contains           Operation = "Contains"
	StartsWith         Operation = "StartsWith"
)

// IsString reports whether op is one of the string-method operations.
func (op Operation) IsString() bool {
	switch op {
	case StringEquals, Contains, StartsWith:
		return true
	}
	return false
}

// IsRelational reports whether op orders its operands.
func (op Operation) IsRelational() bool {
	switch op {
	case GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual:
		return true
	}
	return false
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case Equal, NotEqual:
		return true
	}
	return op.IsString() || op.IsRelational()
}

// Mirror returns the operation with its operands swapped: a > b is b < a.
// Equality operations mirror to themselves.
func (op Operation) Mirror() Operation {
	switch op {
	case GreaterThan:
		return LessThan
	case LessThan:
		return GreaterThan
	case GreaterThanOrEqual:
		return LessThanOrEqual
	case LessThanOrEqual:
		return GreaterThanOrEqual
	default:
		return op
	}
}

// Condition is one field-op-literal comparison against an indexed column.
//
// Semantics:
//
//	<column> <operation> <value>
//
// IsString records that the literal was textual. CaseSensitive only matters
// for string comparisons.
type Condition struct {
	Column        string
	Operation     Operation
	Value         ir.IRValue
	IsString      bool
	CaseSensitive bool
}

// object returns the condition as an IRObject for canonical encoding.
func (c Condition) object() ir.IRObject {
	v := c.Value
	if v == nil {
		v = ir.IRNull{}
	}
	return ir.IRObject{
		"column":         ir.IRString(c.Column),
		"operation":      ir.IRString(c.Operation),
		"value":          v,
		"is_string":      ir.IRBool(c.IsString),
		"case_sensitive": ir.IRBool(c.CaseSensitive),
	}
}

// MarshalJSON encodes the condition canonically.
func (c Condition) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical(c.object())
}

type conditionJSON struct {
	Column        string          `json:"column"`
	Operation     Operation       `json:"operation"`
	Value         json.RawMessage `json:"value"`
	IsString      bool            `json:"is_string"`
	CaseSensitive bool            `json:"case_sensitive"`
}

// UnmarshalJSON decodes a condition. A missing value decodes as null.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw conditionJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("condition: %w", err)
	}

	var v ir.IRValue = ir.IRNull{}
	if len(raw.Value) > 0 {
		parsed, err := ir.UnmarshalIRValue(raw.Value)
		if err != nil {
			return fmt.Errorf("condition %s value: %w", raw.Column, err)
		}
		v = parsed
	}
	*c = Condition{
		Column:        raw.Column,
		Operation:     raw.Operation,
		Value:         v,
		IsString:      raw.IsString,
		CaseSensitive: raw.CaseSensitive,
	}
	return nil
}

// Group is an ordered list of conditions combined by AND.
type Group []Condition

// Groups is an ordered list of groups combined by OR: a record matches iff
// all conditions of at least one group match.
type Groups []Group

// DirectiveName names a post-filter directive.
type DirectiveName string

const (
	Take              DirectiveName = "take"
	TakeLast          DirectiveName = "take_last"
	Skip              DirectiveName = "skip"
	OrderBy           DirectiveName = "order_by"
	OrderByDescending DirectiveName = "order_by_descending"
)

// Directive is a post-filter step applied to matched rows, in declaration
// order. Take, TakeLast and Skip use Count; the ordering directives use
// Column.
type Directive struct {
	Name   DirectiveName `json:"name"`
	Count  int           `json:"count,omitempty"`
	Column string        `json:"column,omitempty"`
}

// Query is a complete filtered-query request against one store.
type Query struct {
	Store      string
	Groups     Groups
	Directives []Directive
	Unique     bool
}

// EncodeGroups serializes groups as a JSON array of per-group condition
// arrays. The encoding is canonical: equal groups yield equal bytes.
func EncodeGroups(g Groups) ([]byte, error) {
	arr := make(ir.IRArray, 0, len(g))
	for _, group := range g {
		conds := make(ir.IRArray, 0, len(group))
		for _, c := range group {
			conds = append(conds, c.object())
		}
		arr = append(arr, conds)
	}
	return ir.MarshalCanonical(arr)
}

// DecodeGroups parses the output of EncodeGroups.
func DecodeGroups(data []byte) (Groups, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var g Groups
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return g, nil
}

// EncodeDirectives serializes directives as a JSON array. Canonical.
func EncodeDirectives(ds []Directive) ([]byte, error) {
	arr := make(ir.IRArray, 0, len(ds))
	for _, d := range ds {
		obj := ir.IRObject{"name": ir.IRString(d.Name)}
		if d.Count != 0 {
			obj["count"] = ir.IRInt(d.Count)
		}
		if d.Column != "" {
			obj["column"] = ir.IRString(d.Column)
		}
		arr = append(arr, obj)
	}
	return ir.MarshalCanonical(arr)
}

// DecodeDirectives parses the output of EncodeDirectives.
func DecodeDirectives(data []byte) ([]Directive, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var ds []Directive
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode directives: %w", err)
	}
	return ds, nil
}
