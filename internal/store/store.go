package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/correlate"
	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/marshal"
	"github.com/roach88/idxstore/internal/schema"
)

// Store is the typed view of one object store.
type Store[T any] struct {
	m       *Manager
	schema  *schema.Schema[T]
	marshal *marshal.Marshaller[T]
}

// Bind derives the schema of d and checks it against the store of the same
// name in the manager's database definition.
func Bind[T any](m *Manager, d *schema.Descriptor[T], opts ...schema.DeriveOption) (*Store[T], error) {
	var (
		s   *schema.Schema[T]
		err error
	)
	if len(opts) == 0 {
		s, err = d.Schema()
	} else {
		s, err = schema.Derive(d, opts...)
	}
	if err != nil {
		return nil, err
	}

	declared, ok := m.spec.Store(s.Name())
	if !ok {
		return nil, fmt.Errorf("bind %s to %s: %w", s.Name(), m.spec.Name, ErrUnknownStore)
	}
	if err := s.Check(declared); err != nil {
		return nil, err
	}

	var mopts []marshal.Option
	if m.hook != nil {
		mopts = append(mopts, marshal.WithHook(m.hook, m.hookKey))
	}
	return &Store[T]{m: m, schema: s, marshal: marshal.New(s, mopts...)}, nil
}

// Name returns the store name.
func (s *Store[T]) Name() string { return s.schema.Name() }

// Schema returns the derived schema.
func (s *Store[T]) Schema() *schema.Schema[T] { return s.schema }

func (s *Store[T]) bags(ctx context.Context, recs []*T) ([]*ir.Bag, error) {
	out := make([]*ir.Bag, 0, len(recs))
	for _, rec := range recs {
		bag, err := s.marshal.ToPropertyBag(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, bag)
	}
	return out, nil
}

// keyed marshals recs, requiring each to carry its primary key.
func (s *Store[T]) keyed(ctx context.Context, recs []*T) ([]*ir.Bag, error) {
	for i, rec := range recs {
		if rec == nil {
			return nil, fmt.Errorf("%s: record %d is nil", s.Name(), i)
		}
		if s.marshal.PrimaryKey(rec).IsAbsent() {
			return nil, fmt.Errorf("%s: record %d: %w", s.Name(), i, ErrMissingKey)
		}
	}
	return s.bags(ctx, recs)
}

func (s *Store[T]) keys(recs []*T) ([]ir.IRValue, error) {
	keys := make([]ir.IRValue, 0, len(recs))
	for i, rec := range recs {
		if rec == nil {
			return nil, fmt.Errorf("%s: record %d is nil", s.Name(), i)
		}
		key, ok := s.marshal.PrimaryKey(rec).Get()
		if !ok || ir.IsNull(key) {
			return nil, fmt.Errorf("%s: record %d: %w", s.Name(), i, ErrMissingKey)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Add inserts rec. A zero auto-increment key is generated by the store.
func (s *Store[T]) Add(ctx context.Context, rec *T, l *correlate.Listener) (uuid.UUID, error) {
	items, err := s.bags(ctx, []*T{rec})
	if err != nil {
		return uuid.Nil, err
	}
	return s.m.issue(ctx, l, boundary.Call{Action: boundary.AddItem, Store: s.Name(), Items: items}), nil
}

// AddAsync inserts rec and waits. On success the outcome payload is the
// record's key.
func (s *Store[T]) AddAsync(ctx context.Context, rec *T) (ir.Outcome, error) {
	items, err := s.bags(ctx, []*T{rec})
	if err != nil {
		return ir.Outcome{}, err
	}
	return s.m.issueAsync(ctx, boundary.Call{Action: boundary.AddItem, Store: s.Name(), Items: items})
}

// AddRange inserts recs in one call and waits. The batch succeeds or fails
// as a whole; the outcome payload lists the keys in order.
func (s *Store[T]) AddRange(ctx context.Context, recs []*T) (ir.Outcome, error) {
	items, err := s.bags(ctx, recs)
	if err != nil {
		return ir.Outcome{}, err
	}
	return s.m.issueAsync(ctx, boundary.Call{Action: boundary.BulkAdd, Store: s.Name(), Items: items})
}

// Update replaces the stored record with rec's key, inserting it when
// absent.
func (s *Store[T]) Update(ctx context.Context, rec *T, l *correlate.Listener) (uuid.UUID, error) {
	items, err := s.keyed(ctx, []*T{rec})
	if err != nil {
		return uuid.Nil, err
	}
	return s.m.issue(ctx, l, boundary.Call{Action: boundary.UpdateItem, Store: s.Name(), Items: items}), nil
}

// UpdateAsync is Update waiting for the outcome.
func (s *Store[T]) UpdateAsync(ctx context.Context, rec *T) (ir.Outcome, error) {
	items, err := s.keyed(ctx, []*T{rec})
	if err != nil {
		return ir.Outcome{}, err
	}
	return s.m.issueAsync(ctx, boundary.Call{Action: boundary.UpdateItem, Store: s.Name(), Items: items})
}

// UpdateRange updates recs in one call.
func (s *Store[T]) UpdateRange(ctx context.Context, recs []*T, l *correlate.Listener) (uuid.UUID, error) {
	items, err := s.keyed(ctx, recs)
	if err != nil {
		return uuid.Nil, err
	}
	return s.m.issue(ctx, l, boundary.Call{Action: boundary.BulkUpdate, Store: s.Name(), Items: items}), nil
}

// Delete removes the record with rec's key.
func (s *Store[T]) Delete(ctx context.Context, rec *T, l *correlate.Listener) (uuid.UUID, error) {
	keys, err := s.keys([]*T{rec})
	if err != nil {
		return uuid.Nil, err
	}
	return s.m.issue(ctx, l, boundary.Call{Action: boundary.DeleteItem, Store: s.Name(), Keys: keys}), nil
}

// DeleteAsync is Delete waiting for the outcome.
func (s *Store[T]) DeleteAsync(ctx context.Context, rec *T) (ir.Outcome, error) {
	keys, err := s.keys([]*T{rec})
	if err != nil {
		return ir.Outcome{}, err
	}
	return s.m.issueAsync(ctx, boundary.Call{Action: boundary.DeleteItem, Store: s.Name(), Keys: keys})
}

// DeleteRange removes the records with the keys of recs and returns how
// many existed. Every record must carry its key; otherwise nothing is sent.
func (s *Store[T]) DeleteRange(ctx context.Context, recs []*T) (int64, error) {
	keys, err := s.keys(recs)
	if err != nil {
		return 0, err
	}
	reply, err := s.m.read(ctx, boundary.Call{Action: boundary.BulkDelete, Store: s.Name(), Keys: keys})
	if err != nil {
		return 0, err
	}
	return reply.Count, nil
}

// Clear removes every record, keeping the store.
func (s *Store[T]) Clear(ctx context.Context, l *correlate.Listener) uuid.UUID {
	return s.m.ClearStore(ctx, s.Name(), l)
}

// ClearAsync is Clear waiting for the outcome.
func (s *Store[T]) ClearAsync(ctx context.Context) (ir.Outcome, error) {
	return s.m.ClearStoreAsync(ctx, s.Name())
}

// GetByID returns the record stored under key. The key must match the
// primary key's kind: a string for string and UUID keys, an integer for
// integer keys. Reports false when no record has the key.
func (s *Store[T]) GetByID(ctx context.Context, key any) (*T, bool, error) {
	k, err := s.marshal.Key(key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrKeyType, err)
	}
	reply, err := s.m.read(ctx, boundary.Call{Action: boundary.FindItem, Store: s.Name(), Keys: []ir.IRValue{k}})
	if err != nil {
		return nil, false, err
	}
	if reply.Item == nil {
		return nil, false, nil
	}
	rec, err := s.marshal.FromPropertyBag(reply.Item)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// GetAll returns every record in primary key order.
func (s *Store[T]) GetAll(ctx context.Context) ([]*T, error) {
	reply, err := s.m.read(ctx, boundary.Call{Action: boundary.ToArray, Store: s.Name()})
	if err != nil {
		return nil, err
	}
	return s.records(reply.Rows)
}

func (s *Store[T]) records(rows []*ir.Bag) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		rec, err := s.marshal.FromPropertyBag(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Decrypt reverses the encryption hook for a stored value.
func (s *Store[T]) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return s.marshal.Decrypt(ctx, ciphertext)
}
