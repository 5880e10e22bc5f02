// Package marshal converts typed records to and from ordered property bags
// using a derived schema.
package marshal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/mo"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/schema"
)

// ErrNoHook is returned when a record has encrypt-tagged fields but no
// encryption hook was configured.
var ErrNoHook = errors.New("encryption hook not configured")

// Hook is the encryption insertion point. The algorithm behind it is the
// caller's choice.
type Hook interface {
	Encrypt(ctx context.Context, plaintext, key string) (string, error)
	Decrypt(ctx context.Context, ciphertext, key string) (string, error)
}

// Option configures a Marshaller.
type Option func(*config)

type config struct {
	hook Hook
	key  string
}

// WithHook installs the encryption hook and the key passed to it.
func WithHook(h Hook, key string) Option {
	return func(c *config) {
		c.hook = h
		c.key = key
	}
}

// Marshaller maps records of type T to property bags and back.
// It is safe for concurrent use.
type Marshaller[T any] struct {
	schema *schema.Schema[T]
	cfg    config
}

// New creates a marshaller for s.
func New[T any](s *schema.Schema[T], opts ...Option) *Marshaller[T] {
	m := &Marshaller[T]{schema: s}
	for _, opt := range opts {
		opt(&m.cfg)
	}
	return m
}

// Schema returns the schema the marshaller was built from.
func (m *Marshaller[T]) Schema() *schema.Schema[T] { return m.schema }

// ToPropertyBag converts rec into its stored form.
//
// Not-mapped fields are excluded. Encrypt-tagged string fields go through the
// hook unless blank. An auto-increment primary key holding its zero value is
// omitted so the store generates one. rec is never modified.
func (m *Marshaller[T]) ToPropertyBag(ctx context.Context, rec *T) (*ir.Bag, error) {
	if rec == nil {
		return nil, fmt.Errorf("marshal %s: nil record", m.schema.Name())
	}

	pk := m.schema.PrimaryKey()
	bag := ir.NewBag()
	for _, f := range m.schema.Fields() {
		if f == pk && m.schema.AutoIncrement() && f.IsZero(rec) {
			continue
		}

		v := f.Get(rec)
		if f.IsEncrypted() {
			enc, err := m.encrypt(ctx, f, v)
			if err != nil {
				return nil, err
			}
			v = enc
		}
		bag.Set(f.ColumnName(), v)
	}
	return bag, nil
}

func (m *Marshaller[T]) encrypt(ctx context.Context, f *schema.Field[T], v ir.IRValue) (ir.IRValue, error) {
	if f.Kind() != schema.KindString {
		return nil, &schema.Error{
			Code:    schema.ErrEncryptNonString,
			Schema:  m.schema.Name(),
			Field:   f.Name(),
			Message: fmt.Sprintf("encrypt tag on %s field", f.Kind()),
		}
	}
	s := string(v.(ir.IRString))
	if strings.TrimSpace(s) == "" {
		return v, nil
	}
	if m.cfg.hook == nil {
		return nil, fmt.Errorf("marshal %s.%s: %w", m.schema.Name(), f.Name(), ErrNoHook)
	}
	out, err := m.cfg.hook.Encrypt(ctx, s, m.cfg.key)
	if err != nil {
		return nil, fmt.Errorf("encrypt %s.%s: %w", m.schema.Name(), f.Name(), err)
	}
	return ir.IRString(out), nil
}

// FromPropertyBag builds a record from its stored form.
//
// Each column is coerced into its field's kind (see Coerce). Columns with no
// mapped field are ignored; fields with no column keep their zero value.
// Encrypted fields are returned as stored; use Decrypt to read them.
func (m *Marshaller[T]) FromPropertyBag(bag *ir.Bag) (*T, error) {
	rec := new(T)
	for col, v := range bag.All() {
		f, ok := m.schema.FieldByColumn(col)
		if !ok {
			continue
		}
		cv, err := Coerce(v, f.Kind())
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s.%s: %w", m.schema.Name(), f.Name(), err)
		}
		if err := f.Set(rec, cv); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", m.schema.Name(), err)
		}
	}
	return rec, nil
}

// Decrypt reverses the hook for a stored value. Blank values are returned
// unchanged.
func (m *Marshaller[T]) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return Decrypt(ctx, m.cfg.hook, ciphertext, m.cfg.key)
}

// Decrypt reverses h for a stored value. Blank values are returned unchanged.
func Decrypt(ctx context.Context, h Hook, ciphertext, key string) (string, error) {
	if strings.TrimSpace(ciphertext) == "" {
		return ciphertext, nil
	}
	if h == nil {
		return "", ErrNoHook
	}
	return h.Decrypt(ctx, ciphertext, key)
}

// PrimaryKey returns rec's primary key value, or None when the key is
// store-generated and not yet assigned.
func (m *Marshaller[T]) PrimaryKey(rec *T) mo.Option[ir.IRValue] {
	pk := m.schema.PrimaryKey()
	if pk.IsZero(rec) && m.schema.AutoIncrement() {
		return mo.None[ir.IRValue]()
	}
	return mo.Some(pk.Get(rec))
}

// Key converts a caller-supplied key into the primary key's native IR kind.
// The key's kind must match the primary key: text for string and UUID keys,
// a number for numeric keys.
func (m *Marshaller[T]) Key(key any) (ir.IRValue, error) {
	pk := m.schema.PrimaryKey()
	v, err := ir.FromGo(key)
	if err != nil {
		return nil, fmt.Errorf("key for %s: %w", m.schema.Name(), err)
	}

	want := ir.KindNumber
	if pk.Kind() == schema.KindString || pk.Kind() == schema.KindUUID {
		want = ir.KindString
	}
	if got := ir.KindOf(v); got != want {
		return nil, fmt.Errorf("key for %s: primary key %s is %s, got %s",
			m.schema.Name(), pk.Name(), pk.Kind(), got)
	}
	return Coerce(v, pk.Kind())
}
