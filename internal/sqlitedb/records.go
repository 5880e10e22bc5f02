package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/queryir"
)

// normalizeKey checks a primary key and returns it with its SQL parameter.
// Integral floats become integers.
func normalizeKey(key ir.IRValue) (ir.IRValue, any, error) {
	switch k := key.(type) {
	case ir.IRInt:
		return k, int64(k), nil
	case ir.IRFloat:
		i := int64(k)
		if float64(i) != float64(k) {
			return nil, nil, invalid("primary key %v is not an integer", float64(k))
		}
		return ir.IRInt(i), i, nil
	case ir.IRString:
		return k, string(k), nil
	default:
		return nil, nil, invalid("unsupported primary key kind %s", ir.KindOf(key))
	}
}

// keyIdentity turns a scanned key column into a comparable identity.
func keyIdentity(v any) string {
	switch k := v.(type) {
	case []byte:
		return "s" + string(k)
	case string:
		return "s" + k
	default:
		return fmt.Sprintf("n%v", k)
	}
}

func decodeDoc(doc string) (*ir.Bag, error) {
	row := ir.NewBag()
	if err := json.Unmarshal([]byte(doc), row); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return row, nil
}

func nextKey(ctx context.Context, tx *sql.Tx, db, store string) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx, `SELECT next_key FROM stores WHERE db = ? AND name = ?`, db, store).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("read next key of %s: %w", store, err)
	}
	return next, nil
}

// writer applies the rows of one Add or Put inside a transaction.
type writer struct {
	tx     *sql.Tx
	db     string
	schema ir.TableSchema
	next   int64
}

// write stores row. With insert set, an existing key is a constraint
// violation; otherwise the row replaces it. A missing key is generated for
// auto-increment stores.
func (w *writer) write(ctx context.Context, row *ir.Bag, insert bool) (ir.IRValue, error) {
	ts := w.schema
	row = row.Clone()

	key, ok := row.Get(ts.PrimaryKey)
	if !ok || ir.IsNull(key) {
		if !insert || !ts.PrimaryKeyAuto {
			return nil, invalid("item has no value for primary key %s", ts.PrimaryKey)
		}
		key = ir.IRInt(w.next)
	}
	key, param, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	row.Set(ts.PrimaryKey, key)

	doc, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	if insert {
		_, err = w.tx.ExecContext(ctx,
			`INSERT INTO records (db, store, key, doc) VALUES (?, ?, ?, ?)`,
			w.db, ts.Name, param, string(doc))
		if isConstraint(err) {
			return nil, constraint(err, "key %v already exists in %s", param, ts.Name)
		}
	} else {
		_, err = w.tx.ExecContext(ctx,
			`DELETE FROM unique_entries WHERE db = ? AND store = ? AND key = ?`, w.db, ts.Name, param)
		if err == nil {
			_, err = w.tx.ExecContext(ctx, `
				INSERT INTO records (db, store, key, doc) VALUES (?, ?, ?, ?)
				ON CONFLICT (db, store, key) DO UPDATE SET doc = excluded.doc
			`, w.db, ts.Name, param, string(doc))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}

	if col, err := insertEntries(ctx, w.tx, w.db, ts, row, param); err != nil {
		if isConstraint(err) {
			v, _ := row.Get(col)
			return nil, constraint(err, "unique index %s already holds %s", col, canonical(v))
		}
		return nil, err
	}

	if n, isInt := key.(ir.IRInt); isInt && ts.PrimaryKeyAuto && int64(n) >= w.next {
		w.next = int64(n) + 1
	}
	return key, nil
}

// insertEntries records the unique-indexed values of row. On failure it
// returns the column that failed.
func insertEntries(ctx context.Context, tx *sql.Tx, db string, ts ir.TableSchema, row *ir.Bag, key any) (string, error) {
	for _, col := range ts.UniqueIndexes {
		v, ok := row.Get(col)
		if !ok || ir.IsNull(v) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unique_entries (db, store, col, value, key) VALUES (?, ?, ?, ?, ?)`,
			db, ts.Name, col, canonical(v), key); err != nil {
			return col, err
		}
	}
	return "", nil
}

func canonical(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(data)
}

func (s *DB) writeAll(ctx context.Context, name, store string, items []*ir.Bag, insert bool) ([]ir.IRValue, error) {
	keys := make([]ir.IRValue, 0, len(items))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ts, err := schemaOf(ctx, tx, name, store)
		if err != nil {
			return err
		}
		next, err := nextKey(ctx, tx, name, store)
		if err != nil {
			return err
		}

		w := &writer{tx: tx, db: name, schema: ts, next: next}
		for i, item := range items {
			key, err := w.write(ctx, item, insert)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			keys = append(keys, key)
		}

		if w.next != next {
			if _, err := tx.ExecContext(ctx, `UPDATE stores SET next_key = ? WHERE db = ? AND name = ?`,
				w.next, name, store); err != nil {
				return fmt.Errorf("advance next key of %s: %w", store, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Add implements engine.Backend. The batch runs in one transaction.
func (s *DB) Add(ctx context.Context, name, store string, items []*ir.Bag) ([]ir.IRValue, error) {
	return s.writeAll(ctx, name, store, items, true)
}

// Put implements engine.Backend. The batch runs in one transaction.
func (s *DB) Put(ctx context.Context, name, store string, items []*ir.Bag) error {
	_, err := s.writeAll(ctx, name, store, items, false)
	return err
}

// Delete implements engine.Backend.
func (s *DB) Delete(ctx context.Context, name, store string, keys []ir.IRValue) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := schemaOf(ctx, tx, name, store); err != nil {
			return err
		}
		for _, key := range keys {
			_, param, err := normalizeKey(key)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx,
				`DELETE FROM records WHERE db = ? AND store = ? AND key = ?`, name, store, param)
			if err != nil {
				return fmt.Errorf("delete record: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete record: %w", err)
			}
			n += affected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Clear implements engine.Backend.
func (s *DB) Clear(ctx context.Context, name, store string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := schemaOf(ctx, tx, name, store); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE db = ? AND store = ?`, name, store); err != nil {
			return fmt.Errorf("clear %s: %w", store, err)
		}
		return nil
	})
}

// Get implements engine.Backend.
func (s *DB) Get(ctx context.Context, name, store string, key ir.IRValue) (*ir.Bag, error) {
	if _, err := schemaOf(ctx, s.db, name, store); err != nil {
		return nil, err
	}
	_, param, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	var doc string
	err = s.db.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE db = ? AND store = ? AND key = ?`, name, store, param).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return decodeDoc(doc)
}

// All implements engine.Backend.
func (s *DB) All(ctx context.Context, name, store string) ([]*ir.Bag, error) {
	if _, err := schemaOf(ctx, s.db, name, store); err != nil {
		return nil, err
	}
	return scanAll(ctx, s.db, name, store)
}

func scanAll(ctx context.Context, q querier, db, store string) ([]*ir.Bag, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT doc FROM records
		WHERE db = ? AND store = ?
		ORDER BY key ASC
	`, db, store)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []*ir.Bag{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		row, err := decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Query implements engine.Backend. The filter runs in SQLite; duplicates
// across groups are dropped here and directives are applied by queryir.
func (s *DB) Query(ctx context.Context, name string, q queryir.Query) ([]*ir.Bag, error) {
	if _, err := schemaOf(ctx, s.db, name, q.Store); err != nil {
		return nil, err
	}
	query, params, err := s.compiler.Compile(name, q)
	if err != nil {
		return nil, invalid("%v", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Store, err)
	}
	defer rows.Close()

	out := []*ir.Bag{}
	seen := make(map[string]struct{})
	for rows.Next() {
		var (
			grp int
			key any
			doc string
		)
		if err := rows.Scan(&grp, &key, &doc); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if q.Unique {
			id := keyIdentity(key)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		row, err := decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return queryir.Apply(out, q.Directives), nil
}
