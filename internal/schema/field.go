package schema

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/idxstore/internal/ir"
)

// Kind is the native value kind of a field.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindUUID
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindUUID:
		return "uuid"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Role is the most specific index role a field plays.
type Role uint8

const (
	RoleNone Role = iota
	RolePrimaryKey
	RoleUnique
	RoleIndex
)

func (r Role) String() string {
	switch r {
	case RolePrimaryKey:
		return "primary_key"
	case RoleUnique:
		return "unique_index"
	case RoleIndex:
		return "index"
	default:
		return "none"
	}
}

// Field describes one property of record type T: its name, native kind,
// metadata tags and typed accessors.
//
// Fields are built with String, Int, Float, Bool and UUID and refined with
// the chainable tag methods. A Field must not be modified once its
// Descriptor has derived a schema.
type Field[T any] struct {
	name       string
	column     string
	kind       Kind
	primaryKey bool
	auto       bool
	unique     bool
	index      bool
	notMapped  bool
	encrypt    bool

	get  func(*T) ir.IRValue
	set  func(*T, ir.IRValue) error
	zero func(*T) bool
}

// String declares a string field.
func String[T any](name string, ref func(*T) *string) *Field[T] {
	return &Field[T]{
		name: name,
		kind: KindString,
		get:  func(r *T) ir.IRValue { return ir.IRString(*ref(r)) },
		set: func(r *T, v ir.IRValue) error {
			switch val := v.(type) {
			case ir.IRNull:
				*ref(r) = ""
			case ir.IRString:
				*ref(r) = string(val)
			default:
				return fmt.Errorf("cannot assign %s to string", ir.KindOf(v))
			}
			return nil
		},
		zero: func(r *T) bool { return *ref(r) == "" },
	}
}

// Int declares an integer field of any signed integer type.
func Int[T any, V ~int | ~int8 | ~int16 | ~int32 | ~int64](name string, ref func(*T) *V) *Field[T] {
	return &Field[T]{
		name: name,
		kind: KindInt,
		get:  func(r *T) ir.IRValue { return ir.IRInt(int64(*ref(r))) },
		set: func(r *T, v ir.IRValue) error {
			switch val := v.(type) {
			case ir.IRNull:
				*ref(r) = 0
			case ir.IRInt:
				n := V(val)
				if int64(n) != int64(val) {
					return fmt.Errorf("value %d overflows field", int64(val))
				}
				*ref(r) = n
			default:
				return fmt.Errorf("cannot assign %s to int", ir.KindOf(v))
			}
			return nil
		},
		zero: func(r *T) bool { return *ref(r) == 0 },
	}
}

// Float declares a floating point field.
func Float[T any, V ~float32 | ~float64](name string, ref func(*T) *V) *Field[T] {
	return &Field[T]{
		name: name,
		kind: KindFloat,
		get:  func(r *T) ir.IRValue { return ir.IRFloat(float64(*ref(r))) },
		set: func(r *T, v ir.IRValue) error {
			switch val := v.(type) {
			case ir.IRNull:
				*ref(r) = 0
			case ir.IRFloat:
				*ref(r) = V(val)
			case ir.IRInt:
				*ref(r) = V(val)
			default:
				return fmt.Errorf("cannot assign %s to float", ir.KindOf(v))
			}
			return nil
		},
		zero: func(r *T) bool { return *ref(r) == 0 },
	}
}

// Bool declares a boolean field.
func Bool[T any](name string, ref func(*T) *bool) *Field[T] {
	return &Field[T]{
		name: name,
		kind: KindBool,
		get:  func(r *T) ir.IRValue { return ir.IRBool(*ref(r)) },
		set: func(r *T, v ir.IRValue) error {
			switch val := v.(type) {
			case ir.IRNull:
				*ref(r) = false
			case ir.IRBool:
				*ref(r) = bool(val)
			default:
				return fmt.Errorf("cannot assign %s to bool", ir.KindOf(v))
			}
			return nil
		},
		zero: func(r *T) bool { return !*ref(r) },
	}
}

// UUID declares a UUID field. UUIDs travel as their textual form.
func UUID[T any](name string, ref func(*T) *uuid.UUID) *Field[T] {
	return &Field[T]{
		name: name,
		kind: KindUUID,
		get:  func(r *T) ir.IRValue { return ir.IRString(ref(r).String()) },
		set: func(r *T, v ir.IRValue) error {
			switch val := v.(type) {
			case ir.IRNull:
				*ref(r) = uuid.Nil
			case ir.IRString:
				if val == "" {
					*ref(r) = uuid.Nil
					return nil
				}
				id, err := uuid.Parse(string(val))
				if err != nil {
					return fmt.Errorf("parse uuid: %w", err)
				}
				*ref(r) = id
			default:
				return fmt.Errorf("cannot assign %s to uuid", ir.KindOf(v))
			}
			return nil
		},
		zero: func(r *T) bool { return *ref(r) == uuid.Nil },
	}
}

// PrimaryKey marks the field as the store's primary key.
func (f *Field[T]) PrimaryKey() *Field[T] {
	f.primaryKey = true
	return f
}

// AutoIncrement marks the primary key as generated by the store.
// Implies PrimaryKey.
func (f *Field[T]) AutoIncrement() *Field[T] {
	f.primaryKey = true
	f.auto = true
	return f
}

// Unique marks the field as carrying a unique index.
func (f *Field[T]) Unique() *Field[T] {
	f.unique = true
	return f
}

// Index marks the field as carrying a regular index.
func (f *Field[T]) Index() *Field[T] {
	f.index = true
	return f
}

// Column overrides the stored column name.
func (f *Field[T]) Column(name string) *Field[T] {
	f.column = name
	return f
}

// NotMapped excludes the field from storage.
func (f *Field[T]) NotMapped() *Field[T] {
	f.notMapped = true
	return f
}

// Encrypt routes the field's value through the encryption hook.
// Only string fields may be encrypted; the check happens at marshal time.
func (f *Field[T]) Encrypt() *Field[T] {
	f.encrypt = true
	return f
}

// Name returns the field name.
func (f *Field[T]) Name() string { return f.name }

// Kind returns the native kind.
func (f *Field[T]) Kind() Kind { return f.kind }

// ColumnName is the single column resolution function: the override when set,
// otherwise the field name.
func (f *Field[T]) ColumnName() string {
	if f.column != "" {
		return f.column
	}
	return f.name
}

// Role returns the most specific index role: index, then unique, then
// primary key.
func (f *Field[T]) Role() Role {
	switch {
	case f.index:
		return RoleIndex
	case f.unique:
		return RoleUnique
	case f.primaryKey:
		return RolePrimaryKey
	default:
		return RoleNone
	}
}

// IsPrimaryKey reports the primary key tag.
func (f *Field[T]) IsPrimaryKey() bool { return f.primaryKey }

// IsAutoIncrement reports the auto-increment tag.
func (f *Field[T]) IsAutoIncrement() bool { return f.auto }

// IsUnique reports the unique-index tag.
func (f *Field[T]) IsUnique() bool { return f.unique }

// IsIndexed reports the regular index tag.
func (f *Field[T]) IsIndexed() bool { return f.index }

// IsNotMapped reports the not-mapped tag.
func (f *Field[T]) IsNotMapped() bool { return f.notMapped }

// IsEncrypted reports the encrypt tag.
func (f *Field[T]) IsEncrypted() bool { return f.encrypt }

// Get reads the field from r as its native IR value.
func (f *Field[T]) Get(r *T) ir.IRValue { return f.get(r) }

// Set writes v into r. v must already be the field's native IR kind (or null).
func (f *Field[T]) Set(r *T, v ir.IRValue) error {
	if err := f.set(r, v); err != nil {
		return fmt.Errorf("field %s: %w", f.name, err)
	}
	return nil
}

// IsZero reports whether the field holds its kind's zero value.
func (f *Field[T]) IsZero(r *T) bool { return f.zero(r) }
