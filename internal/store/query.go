package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/predicate"
	"github.com/roach88/idxstore/internal/queryir"
)

// Query is a filtered read against one store, built by Store.Where.
//
// Directives run in the order they are added, after filtering. Results are
// unique by primary key unless NotUnique is called. A Query is not safe for
// concurrent modification.
type Query[T any] struct {
	store      *Store[T]
	groups     queryir.Groups
	directives []queryir.Directive
	unique     bool
	err        error
}

// Where compiles expr against the store's schema. Compile errors are
// returned here, before anything crosses the boundary.
func (s *Store[T]) Where(expr predicate.Expr) (*Query[T], error) {
	groups, err := predicate.Compile(s.schema, expr)
	if err != nil {
		return nil, err
	}
	return &Query[T]{store: s, groups: groups, unique: true}, nil
}

// Take keeps the first n results.
func (q *Query[T]) Take(n int) *Query[T] {
	q.directives = append(q.directives, queryir.Directive{Name: queryir.Take, Count: n})
	return q
}

// TakeLast keeps the last n results.
func (q *Query[T]) TakeLast(n int) *Query[T] {
	q.directives = append(q.directives, queryir.Directive{Name: queryir.TakeLast, Count: n})
	return q
}

// Skip drops the first n results.
func (q *Query[T]) Skip(n int) *Query[T] {
	q.directives = append(q.directives, queryir.Directive{Name: queryir.Skip, Count: n})
	return q
}

// OrderBy sorts the results ascending by an indexed field.
func (q *Query[T]) OrderBy(field string) *Query[T] {
	return q.order(queryir.OrderBy, field)
}

// OrderByDescending sorts the results descending by an indexed field.
func (q *Query[T]) OrderByDescending(field string) *Query[T] {
	return q.order(queryir.OrderByDescending, field)
}

func (q *Query[T]) order(name queryir.DirectiveName, field string) *Query[T] {
	if q.err != nil {
		return q
	}
	col, ok := q.store.schema.Resolve(field)
	switch {
	case !ok:
		q.err = &predicate.CompileError{Err: predicate.ErrUnsupportedExpr, Field: field, Expr: string(name)}
	case !col.Indexed():
		q.err = &predicate.CompileError{Err: predicate.ErrNotIndexed, Field: field, Expr: string(name)}
	default:
		q.directives = append(q.directives, queryir.Directive{Name: name, Column: col.Name})
	}
	return q
}

// NotUnique keeps a record once per group it matches.
func (q *Query[T]) NotUnique() *Query[T] {
	q.unique = false
	return q
}

// Err returns the first error recorded while building the query.
func (q *Query[T]) Err() error { return q.err }

// Payload returns the groups and directives exactly as they cross the
// boundary.
func (q *Query[T]) Payload() (groups, directives json.RawMessage, err error) {
	if q.err != nil {
		return nil, nil, q.err
	}
	if groups, err = queryir.EncodeGroups(q.groups); err != nil {
		return nil, nil, fmt.Errorf("encode query for %s: %w", q.store.Name(), err)
	}
	if directives, err = queryir.EncodeDirectives(q.directives); err != nil {
		return nil, nil, fmt.Errorf("encode query for %s: %w", q.store.Name(), err)
	}
	return groups, directives, nil
}

// Execute runs the query and returns the matching records.
func (q *Query[T]) Execute(ctx context.Context) ([]*T, error) {
	groups, directives, err := q.Payload()
	if err != nil {
		return nil, err
	}
	reply, err := q.store.m.read(ctx, boundary.Call{
		Action:     boundary.Where,
		Store:      q.store.Name(),
		Groups:     groups,
		Directives: directives,
		Unique:     q.unique,
	})
	if err != nil {
		return nil, err
	}
	return q.store.records(reply.Rows)
}

// Count runs the query and returns the number of results.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	recs, err := q.Execute(ctx)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
