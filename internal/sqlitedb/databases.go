package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/idxstore/internal/ir"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, rolling back when it fails.
func (s *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type storedSpec struct {
	spec ir.DatabaseSpec
	hash string
}

func loadSpec(ctx context.Context, q querier, name string) (storedSpec, bool, error) {
	var hash, data string
	err := q.QueryRowContext(ctx, `SELECT spec_hash, spec FROM databases WHERE name = ?`, name).Scan(&hash, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return storedSpec{}, false, nil
	}
	if err != nil {
		return storedSpec{}, false, fmt.Errorf("load database %s: %w", name, err)
	}
	var spec ir.DatabaseSpec
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return storedSpec{}, false, fmt.Errorf("decode database %s: %w", name, err)
	}
	return storedSpec{spec: spec, hash: hash}, true, nil
}

// schemaOf returns the declaration of one store.
func schemaOf(ctx context.Context, q querier, db, store string) (ir.TableSchema, error) {
	stored, ok, err := loadSpec(ctx, q, db)
	if err != nil {
		return ir.TableSchema{}, err
	}
	if !ok {
		return ir.TableSchema{}, unknownDatabase(db)
	}
	ts, ok := stored.spec.Store(store)
	if !ok {
		return ir.TableSchema{}, unknownStore(db, store)
	}
	return ts, nil
}

// Spec returns the stored definition of a database.
func (s *DB) Spec(ctx context.Context, name string) (ir.DatabaseSpec, bool, error) {
	stored, ok, err := loadSpec(ctx, s.db, name)
	return stored.spec, ok, err
}

// CreateDatabase implements engine.Backend.
//
// An absent database is created. A newer version creates new stores, drops
// stores no longer declared, and rebuilds the unique indexes of the rest.
// The same version is a no-op; an older version is rejected.
func (s *DB) CreateDatabase(ctx context.Context, spec ir.DatabaseSpec) error {
	if errs := spec.Validate(); len(errs) > 0 {
		return invalid("invalid database spec: %v", errs[0])
	}
	hash, err := ir.SpecHash(spec)
	if err != nil {
		return err
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode database %s: %w", spec.Name, err)
	}

	upgraded := false
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stored, exists, err := loadSpec(ctx, tx, spec.Name)
		if err != nil {
			return err
		}

		if !exists {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO databases (name, version, spec_hash, spec) VALUES (?, ?, ?, ?)`,
				spec.Name, spec.Version, hash, string(data)); err != nil {
				return fmt.Errorf("create database %s: %w", spec.Name, err)
			}
			for _, ts := range spec.Stores {
				if err := createStore(ctx, tx, spec.Name, ts.Name); err != nil {
					return err
				}
			}
			return nil
		}

		switch {
		case spec.Version < stored.spec.Version:
			return invalid("database %s is at version %d, cannot open version %d",
				spec.Name, stored.spec.Version, spec.Version)
		case spec.Version == stored.spec.Version:
			if hash != stored.hash {
				s.logger.Warn("database definition changed without a version bump",
					"db", spec.Name, "version", spec.Version)
			}
			return nil
		}

		for _, old := range stored.spec.Stores {
			if _, kept := spec.Store(old.Name); kept {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE db = ? AND name = ?`,
				spec.Name, old.Name); err != nil {
				return fmt.Errorf("drop store %s: %w", old.Name, err)
			}
		}
		for _, ts := range spec.Stores {
			old, ok := stored.spec.Store(ts.Name)
			if !ok {
				if err := createStore(ctx, tx, spec.Name, ts.Name); err != nil {
					return err
				}
				continue
			}
			if err := reshape(ctx, tx, spec.Name, old, ts); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE databases SET version = ?, spec_hash = ?, spec = ? WHERE name = ?`,
			spec.Version, hash, string(data), spec.Name); err != nil {
			return fmt.Errorf("upgrade database %s: %w", spec.Name, err)
		}
		upgraded = true
		return nil
	})
	if err != nil {
		return err
	}
	if upgraded {
		s.logger.Info("database upgraded", "db", spec.Name, "version", spec.Version)
	}
	return nil
}

func createStore(ctx context.Context, tx *sql.Tx, db, store string) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO stores (db, name) VALUES (?, ?)`, db, store); err != nil {
		return fmt.Errorf("create store %s: %w", store, err)
	}
	return nil
}

// reshape applies a new declaration of an existing store. The primary key
// cannot change; unique entries are rebuilt and must hold for the existing
// rows.
func reshape(ctx context.Context, tx *sql.Tx, db string, old, ts ir.TableSchema) error {
	if ts.PrimaryKey != old.PrimaryKey {
		return invalid("store %s: primary key cannot change from %s to %s", ts.Name, old.PrimaryKey, ts.PrimaryKey)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM unique_entries WHERE db = ? AND store = ?`, db, ts.Name); err != nil {
		return fmt.Errorf("reset unique entries of %s: %w", ts.Name, err)
	}
	if len(ts.UniqueIndexes) == 0 {
		return nil
	}

	rows, err := scanAll(ctx, tx, db, ts.Name)
	if err != nil {
		return err
	}
	for _, row := range rows {
		key, _ := row.Get(ts.PrimaryKey)
		_, param, err := normalizeKey(key)
		if err != nil {
			return err
		}
		if col, err := insertEntries(ctx, tx, db, ts, row, param); err != nil {
			if isConstraint(err) {
				return constraint(err, "store %s: existing rows violate unique index %s", ts.Name, col)
			}
			return err
		}
	}
	return nil
}

// DeleteDatabase implements engine.Backend. Deleting an absent database
// succeeds.
func (s *DB) DeleteDatabase(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM databases WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete database %s: %w", name, err)
	}
	return nil
}
