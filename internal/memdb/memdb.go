// Package memdb is an in-memory engine.Backend.
//
// Each store is a skip list of BSON-encoded rows keyed by an order
// preserving encoding of the primary key, so scans come back in key order
// without sorting.
package memdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/queryir"
)

type database struct {
	spec   ir.DatabaseSpec
	hash   string
	stores map[string]*table
}

// DB holds every database of one process.
type DB struct {
	mu     sync.Mutex
	dbs    map[string]*database
	logger *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// New creates an empty DB.
func New(opts ...Option) *DB {
	db := &DB{dbs: make(map[string]*database), logger: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func unknownDatabase(name string) error {
	return &boundary.Error{Code: boundary.ErrCodeUnknownDatabase, Message: fmt.Sprintf("database %s does not exist", name)}
}

func (db *DB) table(name, store string) (*table, error) {
	d, ok := db.dbs[name]
	if !ok {
		return nil, unknownDatabase(name)
	}
	t, ok := d.stores[store]
	if !ok {
		return nil, &boundary.Error{Code: boundary.ErrCodeUnknownStore,
			Message: fmt.Sprintf("store %s does not exist in database %s", store, name)}
	}
	return t, nil
}

// CreateDatabase implements engine.Backend.
//
// An absent database is created. A newer version creates new stores, drops
// stores no longer declared, and reshapes the rest. The same version is a
// no-op; an older version is rejected.
func (db *DB) CreateDatabase(_ context.Context, spec ir.DatabaseSpec) error {
	if errs := spec.Validate(); len(errs) > 0 {
		return invalid("invalid database spec: %v", errs[0])
	}
	hash, err := ir.SpecHash(spec)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	d, exists := db.dbs[spec.Name]
	if !exists {
		d = &database{spec: spec, hash: hash, stores: make(map[string]*table, len(spec.Stores))}
		for _, s := range spec.Stores {
			d.stores[s.Name] = newTable(s)
		}
		db.dbs[spec.Name] = d
		return nil
	}

	switch {
	case spec.Version < d.spec.Version:
		return invalid("database %s is at version %d, cannot open version %d", spec.Name, d.spec.Version, spec.Version)
	case spec.Version == d.spec.Version:
		if hash != d.hash {
			db.logger.Warn("database definition changed without a version bump",
				"db", spec.Name, "version", spec.Version)
		}
		return nil
	}

	stores := make(map[string]*table, len(spec.Stores))
	for _, s := range spec.Stores {
		t, ok := d.stores[s.Name]
		if !ok {
			stores[s.Name] = newTable(s)
			continue
		}
		if err := t.reshape(s); err != nil {
			return err
		}
		stores[s.Name] = t
	}
	d.stores, d.spec, d.hash = stores, spec, hash
	db.logger.Info("database upgraded", "db", spec.Name, "version", spec.Version)
	return nil
}

// DeleteDatabase implements engine.Backend. Deleting an absent database
// succeeds.
func (db *DB) DeleteDatabase(_ context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.dbs, name)
	return nil
}

// Add implements engine.Backend.
func (db *DB) Add(_ context.Context, name, store string, items []*ir.Bag) ([]ir.IRValue, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(name, store)
	if err != nil {
		return nil, err
	}

	keys := make([]ir.IRValue, 0, len(items))
	undos := make([]undo, 0, len(items))
	for i, item := range items {
		key, u, err := t.write(item, true)
		if err != nil {
			rollback(undos)
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		keys = append(keys, key)
		undos = append(undos, u)
	}
	return keys, nil
}

// Put implements engine.Backend.
func (db *DB) Put(_ context.Context, name, store string, items []*ir.Bag) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(name, store)
	if err != nil {
		return err
	}

	undos := make([]undo, 0, len(items))
	for i, item := range items {
		_, u, err := t.write(item, false)
		if err != nil {
			rollback(undos)
			return fmt.Errorf("item %d: %w", i, err)
		}
		undos = append(undos, u)
	}
	return nil
}

// Delete implements engine.Backend.
func (db *DB) Delete(_ context.Context, name, store string, keys []ir.IRValue) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(name, store)
	if err != nil {
		return 0, err
	}

	var n int64
	undos := make([]undo, 0, len(keys))
	for _, key := range keys {
		existed, u, err := t.remove(key)
		if err != nil {
			rollback(undos)
			return 0, err
		}
		undos = append(undos, u)
		if existed {
			n++
		}
	}
	return n, nil
}

// Clear implements engine.Backend.
func (db *DB) Clear(_ context.Context, name, store string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(name, store)
	if err != nil {
		return err
	}
	t.clear()
	return nil
}

// Get implements engine.Backend.
func (db *DB) Get(_ context.Context, name, store string, key ir.IRValue) (*ir.Bag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(name, store)
	if err != nil {
		return nil, err
	}
	return t.get(key)
}

// All implements engine.Backend.
func (db *DB) All(_ context.Context, name, store string) ([]*ir.Bag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(name, store)
	if err != nil {
		return nil, err
	}
	return t.all()
}

// Query implements engine.Backend by scanning the store in key order and
// evaluating q with queryir.
func (db *DB) Query(_ context.Context, name string, q queryir.Query) ([]*ir.Bag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(name, q.Store)
	if err != nil {
		return nil, err
	}
	rows, err := t.all()
	if err != nil {
		return nil, err
	}
	pk := t.schema.PrimaryKey
	return queryir.Execute(q, rows, func(row *ir.Bag) string {
		v, _ := row.Get(pk)
		return canonical(v)
	}), nil
}

// Usage implements engine.Backend: the encoded size of every row.
func (db *DB) Usage(context.Context) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	for _, d := range db.dbs {
		for _, t := range d.stores {
			n += t.bytes
		}
	}
	return n, nil
}

// Close implements engine.Backend. Data is discarded.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dbs = make(map[string]*database)
	return nil
}

// Spec returns the stored definition of a database.
func (db *DB) Spec(name string) (ir.DatabaseSpec, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.dbs[name]
	if !ok {
		return ir.DatabaseSpec{}, false
	}
	return d.spec, true
}
