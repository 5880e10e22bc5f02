package harness

import (
	"context"
	"fmt"
	"runtime"

	"github.com/roach88/idxstore/internal/correlate"
	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/marshal"
	"github.com/roach88/idxstore/internal/predicate"
	"github.com/roach88/idxstore/internal/schema"
	"github.com/roach88/idxstore/internal/store"
)

// Binding runs scenario steps against one typed store. Records cross it as
// column-keyed maps.
type Binding interface {
	Add(ctx context.Context, rec map[string]any) (ir.Outcome, error)
	AddRange(ctx context.Context, recs []map[string]any) (ir.Outcome, error)
	Update(ctx context.Context, rec map[string]any) (ir.Outcome, error)
	UpdateRange(ctx context.Context, recs []map[string]any) (ir.Outcome, error)
	Delete(ctx context.Context, rec map[string]any) (ir.Outcome, error)
	DeleteRange(ctx context.Context, recs []map[string]any) (int64, error)
	Clear(ctx context.Context) (ir.Outcome, error)
	Get(ctx context.Context, key any) (ir.IRObject, bool, error)
	All(ctx context.Context) ([]ir.IRObject, error)
	Query(ctx context.Context, q Query) ([]ir.IRObject, error)
	Count(ctx context.Context, q Query) (int, error)
}

// Query is a compiled-ready query step.
type Query struct {
	Where      predicate.Expr
	Directives []Directive
	NotUnique  bool
}

// Binder binds a record type to a manager.
type Binder func(m *store.Manager) (Binding, error)

// Bind returns a Binder for records described by d.
func Bind[T any](d *schema.Descriptor[T]) Binder {
	return func(m *store.Manager) (Binding, error) {
		s, err := store.Bind(m, d)
		if err != nil {
			return nil, err
		}
		return &typed[T]{
			m:     m,
			s:     s,
			plain: marshal.New(s.Schema()),
		}, nil
	}
}

type typed[T any] struct {
	m     *store.Manager
	s     *store.Store[T]
	plain *marshal.Marshaller[T]
}

// record builds a T from column values. Values are taken as given; encrypt
// fields are encrypted later by the store.
func (b *typed[T]) record(values map[string]any) (*T, error) {
	bag := ir.NewBag()
	for col, v := range values {
		iv, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", b.s.Name(), col, err)
		}
		bag.Set(col, iv)
	}
	return b.plain.FromPropertyBag(bag)
}

func (b *typed[T]) records(values []map[string]any) ([]*T, error) {
	out := make([]*T, 0, len(values))
	for _, v := range values {
		rec, err := b.record(v)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// object reads every mapped field of rec, keyed by column.
func (b *typed[T]) object(rec *T) ir.IRObject {
	obj := ir.IRObject{}
	for _, f := range b.s.Schema().Fields() {
		if f.IsNotMapped() {
			continue
		}
		obj[f.ColumnName()] = f.Get(rec)
	}
	return obj
}

func (b *typed[T]) objects(recs []*T) []ir.IRObject {
	out := make([]ir.IRObject, len(recs))
	for i, rec := range recs {
		out[i] = b.object(rec)
	}
	return out
}

func (b *typed[T]) Add(ctx context.Context, values map[string]any) (ir.Outcome, error) {
	rec, err := b.record(values)
	if err != nil {
		return ir.Outcome{}, err
	}
	return b.s.AddAsync(ctx, rec)
}

func (b *typed[T]) AddRange(ctx context.Context, values []map[string]any) (ir.Outcome, error) {
	recs, err := b.records(values)
	if err != nil {
		return ir.Outcome{}, err
	}
	return b.s.AddRange(ctx, recs)
}

func (b *typed[T]) Update(ctx context.Context, values map[string]any) (ir.Outcome, error) {
	rec, err := b.record(values)
	if err != nil {
		return ir.Outcome{}, err
	}
	return b.s.UpdateAsync(ctx, rec)
}

// UpdateRange uses the callback style: the outcome arrives at a listener,
// or on the notification channel when the boundary rejects the call.
func (b *typed[T]) UpdateRange(ctx context.Context, values []map[string]any) (ir.Outcome, error) {
	recs, err := b.records(values)
	if err != nil {
		return ir.Outcome{}, err
	}

	done := make(chan ir.Outcome, 1)
	l := correlate.NewListener(func(o ir.Outcome) { done <- o })
	defer runtime.KeepAlive(l)

	token, err := b.s.UpdateRange(ctx, recs, l)
	if err != nil {
		return ir.Outcome{}, err
	}
	for {
		select {
		case o := <-done:
			return o, nil
		case o := <-b.m.Notifications():
			if o.Token == token {
				return o, nil
			}
		case <-ctx.Done():
			return ir.Outcome{}, ctx.Err()
		}
	}
}

func (b *typed[T]) Delete(ctx context.Context, values map[string]any) (ir.Outcome, error) {
	rec, err := b.record(values)
	if err != nil {
		return ir.Outcome{}, err
	}
	return b.s.DeleteAsync(ctx, rec)
}

func (b *typed[T]) DeleteRange(ctx context.Context, values []map[string]any) (int64, error) {
	recs, err := b.records(values)
	if err != nil {
		return 0, err
	}
	return b.s.DeleteRange(ctx, recs)
}

func (b *typed[T]) Clear(ctx context.Context) (ir.Outcome, error) {
	return b.s.ClearAsync(ctx)
}

func (b *typed[T]) Get(ctx context.Context, key any) (ir.IRObject, bool, error) {
	rec, ok, err := b.s.GetByID(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return b.object(rec), true, nil
}

func (b *typed[T]) All(ctx context.Context) ([]ir.IRObject, error) {
	recs, err := b.s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return b.objects(recs), nil
}

func (b *typed[T]) build(q Query) (*store.Query[T], error) {
	query, err := b.s.Where(q.Where)
	if err != nil {
		return nil, err
	}
	for _, d := range q.Directives {
		switch {
		case d.Take != nil:
			query.Take(*d.Take)
		case d.TakeLast != nil:
			query.TakeLast(*d.TakeLast)
		case d.Skip != nil:
			query.Skip(*d.Skip)
		case d.OrderBy != "":
			query.OrderBy(d.OrderBy)
		case d.OrderByDescending != "":
			query.OrderByDescending(d.OrderByDescending)
		}
	}
	if q.NotUnique {
		query.NotUnique()
	}
	return query, nil
}

func (b *typed[T]) Query(ctx context.Context, q Query) ([]ir.IRObject, error) {
	query, err := b.build(q)
	if err != nil {
		return nil, err
	}
	recs, err := query.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return b.objects(recs), nil
}

func (b *typed[T]) Count(ctx context.Context, q Query) (int, error) {
	query, err := b.build(q)
	if err != nil {
		return 0, err
	}
	return query.Count(ctx)
}
