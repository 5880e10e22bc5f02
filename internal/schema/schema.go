package schema

import (
	"fmt"
	"sync"

	"github.com/roach88/idxstore/internal/ir"
)

// Descriptor is the static declaration of record type T: a default table
// name and its ordered fields.
//
// The default schema is derived once and cached; concurrent callers of
// Schema observe the same result.
type Descriptor[T any] struct {
	name   string
	fields []*Field[T]

	once   sync.Once
	schema *Schema[T]
	err    error
}

// Describe declares record type T under the given table name.
func Describe[T any](name string, fields ...*Field[T]) *Descriptor[T] {
	return &Descriptor[T]{name: name, fields: fields}
}

// Name returns the declared table name.
func (d *Descriptor[T]) Name() string { return d.name }

// Fields returns the declared fields in order, including not-mapped ones.
func (d *Descriptor[T]) Fields() []*Field[T] { return d.fields }

// Schema returns the memoized default derivation.
func (d *Descriptor[T]) Schema() (*Schema[T], error) {
	d.once.Do(func() {
		d.schema, d.err = Derive(d)
	})
	return d.schema, d.err
}

// DeriveOption customizes a derivation.
type DeriveOption func(*deriveConfig)

type deriveConfig struct {
	name       string
	primaryKey string
	auto       *bool
}

// WithName overrides the table name.
func WithName(name string) DeriveOption {
	return func(c *deriveConfig) { c.name = name }
}

// WithPrimaryKey names the primary key field explicitly. The field must exist
// and be mapped; primary key tags on other fields are then ignored.
func WithPrimaryKey(field string) DeriveOption {
	return func(c *deriveConfig) { c.primaryKey = field }
}

// WithAutoIncrement overrides whether the store generates primary keys.
func WithAutoIncrement(auto bool) DeriveOption {
	return func(c *deriveConfig) { c.auto = &auto }
}

// Schema is the derived table schema of T together with its column mapping.
type Schema[T any] struct {
	table    ir.TableSchema
	fields   []*Field[T]
	byName   map[string]*Field[T]
	byColumn map[string]*Field[T]
	pk       *Field[T]
}

// Derive computes the table schema and column mapping of a descriptor.
//
// Fails with *Error when more than one field is tagged primary key, when no
// primary key is tagged or supplied, when a supplied primary key names an
// unknown field, or when two fields resolve to the same column.
func Derive[T any](d *Descriptor[T], opts ...DeriveOption) (*Schema[T], error) {
	cfg := deriveConfig{name: d.name}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		return nil, &Error{Code: ErrUnknownField, Message: "table name is required"}
	}

	s := &Schema[T]{
		table:    ir.TableSchema{Name: cfg.name, UniqueIndexes: []string{}, Indexes: []string{}},
		byName:   make(map[string]*Field[T]),
		byColumn: make(map[string]*Field[T]),
	}

	var tagged []*Field[T]
	for _, f := range d.fields {
		if _, dup := s.byName[f.name]; dup {
			return nil, &Error{Code: ErrDuplicateField, Schema: cfg.name, Field: f.name,
				Message: "field declared twice"}
		}
		if f.notMapped {
			continue
		}
		col := f.ColumnName()
		if other, dup := s.byColumn[col]; dup {
			return nil, &Error{Code: ErrDuplicateColumn, Schema: cfg.name, Field: f.name,
				Message: fmt.Sprintf("column %q already used by field %s", col, other.name)}
		}
		s.byName[f.name] = f
		s.byColumn[col] = f
		s.fields = append(s.fields, f)

		if f.primaryKey {
			tagged = append(tagged, f)
		}
		if f.unique {
			s.table.UniqueIndexes = append(s.table.UniqueIndexes, col)
		}
		if f.index {
			s.table.Indexes = append(s.table.Indexes, col)
		}
	}

	switch {
	case cfg.primaryKey != "":
		f, ok := s.byName[cfg.primaryKey]
		if !ok {
			return nil, &Error{Code: ErrUnknownField, Schema: cfg.name, Field: cfg.primaryKey,
				Message: "primary key field does not exist"}
		}
		s.pk = f
	case len(tagged) == 0:
		return nil, &Error{Code: ErrNoPrimaryKey, Schema: cfg.name,
			Message: "no primary key field is tagged and none was supplied"}
	case len(tagged) > 1:
		return nil, &Error{Code: ErrMultiplePrimaryKeys, Schema: cfg.name,
			Message: fmt.Sprintf("fields %s and %s are both tagged primary key", tagged[0].name, tagged[1].name)}
	default:
		s.pk = tagged[0]
	}

	s.table.PrimaryKey = s.pk.ColumnName()
	s.table.PrimaryKeyAuto = s.pk.auto
	if cfg.auto != nil {
		s.table.PrimaryKeyAuto = *cfg.auto
	}

	switch s.pk.kind {
	case KindString, KindInt, KindUUID:
	default:
		return nil, &Error{Code: ErrInvalidPrimaryKey, Schema: cfg.name, Field: s.pk.name,
			Message: fmt.Sprintf("primary key must be a string, integer or UUID, not %s", s.pk.kind)}
	}
	if s.table.PrimaryKeyAuto && s.pk.kind != KindInt {
		return nil, &Error{Code: ErrInvalidPrimaryKey, Schema: cfg.name, Field: s.pk.name,
			Message: "auto increment requires an integer primary key"}
	}
	return s, nil
}

// Table returns a copy of the table schema.
func (s *Schema[T]) Table() ir.TableSchema {
	t := s.table
	t.UniqueIndexes = append([]string{}, s.table.UniqueIndexes...)
	t.Indexes = append([]string{}, s.table.Indexes...)
	return t
}

// Name returns the table name.
func (s *Schema[T]) Name() string { return s.table.Name }

// Fields returns the mapped fields in declaration order.
func (s *Schema[T]) Fields() []*Field[T] { return s.fields }

// Field looks up a mapped field by name.
func (s *Schema[T]) Field(name string) (*Field[T], bool) {
	f, ok := s.byName[name]
	return f, ok
}

// FieldByColumn looks up a mapped field by stored column name.
func (s *Schema[T]) FieldByColumn(column string) (*Field[T], bool) {
	f, ok := s.byColumn[column]
	return f, ok
}

// PrimaryKey returns the primary key field.
func (s *Schema[T]) PrimaryKey() *Field[T] { return s.pk }

// AutoIncrement reports whether the store generates primary keys.
func (s *Schema[T]) AutoIncrement() bool { return s.table.PrimaryKeyAuto }

// Resolve implements Lookup.
func (s *Schema[T]) Resolve(field string) (Column, bool) {
	f, ok := s.byName[field]
	if !ok {
		return Column{}, false
	}
	// Priority index > unique > primary key. A primary key tag on a field that
	// lost to WithPrimaryKey does not count.
	role := RoleNone
	if f == s.pk {
		role = RolePrimaryKey
	}
	if f.unique {
		role = RoleUnique
	}
	if f.index {
		role = RoleIndex
	}
	return Column{Field: f.name, Name: f.ColumnName(), Kind: f.kind, Role: role}, true
}

// Column is the resolved storage view of a field.
type Column struct {
	Field string
	Name  string
	Kind  Kind
	Role  Role
}

// Indexed reports whether the column can appear in a query.
func (c Column) Indexed() bool { return c.Role != RoleNone }

// Lookup resolves field names to columns. Schema implements it; the
// predicate compiler and query builder depend only on this view.
type Lookup interface {
	Name() string
	Resolve(field string) (Column, bool)
}

// Check verifies that the derived schema agrees with a store declared in a
// database definition: same primary key and every declared index present.
func (s *Schema[T]) Check(declared ir.TableSchema) error {
	mismatch := func(msg string, args ...any) error {
		return &Error{Code: ErrStoreMismatch, Schema: s.table.Name, Message: fmt.Sprintf(msg, args...)}
	}
	if declared.PrimaryKey != s.table.PrimaryKey {
		return mismatch("primary key %q, database declares %q", s.table.PrimaryKey, declared.PrimaryKey)
	}
	if declared.PrimaryKeyAuto != s.table.PrimaryKeyAuto {
		return mismatch("auto increment %t, database declares %t", s.table.PrimaryKeyAuto, declared.PrimaryKeyAuto)
	}
	for _, col := range s.table.UniqueIndexes {
		if !declared.IsUnique(col) {
			return mismatch("unique index %q is not declared", col)
		}
	}
	for _, col := range s.table.Indexes {
		if !declared.IsIndexed(col) {
			return mismatch("index %q is not declared", col)
		}
	}
	return nil
}
