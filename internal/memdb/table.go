package memdb

import (
	"fmt"

	"github.com/zhangyunhao116/skipmap"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/ir"
)

// table is one object store: rows ordered by primary key, plus an entry map
// per unique index.
type table struct {
	schema  ir.TableSchema
	rows    *skipmap.StringMap[[]byte]
	unique  map[string]map[string]string // column -> canonical value -> sort key
	nextKey int64
	bytes   int64
}

func newTable(schema ir.TableSchema) *table {
	t := &table{
		schema:  schema,
		rows:    skipmap.NewString[[]byte](),
		unique:  make(map[string]map[string]string, len(schema.UniqueIndexes)),
		nextKey: 1,
	}
	for _, col := range schema.UniqueIndexes {
		t.unique[col] = make(map[string]string)
	}
	return t
}

// undo reverts one applied write.
type undo func()

func rollback(undos []undo) {
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
}

func constraint(format string, args ...any) error {
	return &boundary.Error{Code: boundary.ErrCodeConstraint, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &boundary.Error{Code: boundary.ErrCodeInvalidCall, Message: fmt.Sprintf(format, args...)}
}

// write stores row. With insert set, an existing key is a constraint
// violation; otherwise the row replaces it. A missing key is generated for
// auto-increment stores.
func (t *table) write(row *ir.Bag, insert bool) (ir.IRValue, undo, error) {
	pkCol := t.schema.PrimaryKey
	row = row.Clone()

	key, ok := row.Get(pkCol)
	if !ok || ir.IsNull(key) {
		if !insert || !t.schema.PrimaryKeyAuto {
			return nil, nil, invalid("item has no value for primary key %s", pkCol)
		}
		key = ir.IRInt(t.nextKey)
		row.Set(pkCol, key)
	}
	if f, isFloat := key.(ir.IRFloat); isFloat && float64(int64(f)) == float64(f) {
		key = ir.IRInt(int64(f))
		row.Set(pkCol, key)
	}
	sk, err := sortKey(key)
	if err != nil {
		return nil, nil, invalid("%v", err)
	}

	old, exists := t.rows.Load(sk)
	if exists && insert {
		return nil, nil, constraint("key %s already exists in %s", canonical(key), t.schema.Name)
	}

	var oldRow *ir.Bag
	if exists {
		if oldRow, err = decodeRow(old); err != nil {
			return nil, nil, err
		}
	}

	for col, entries := range t.unique {
		v, ok := row.Get(col)
		if !ok || ir.IsNull(v) {
			continue
		}
		if owner, taken := entries[canonical(v)]; taken && owner != sk {
			return nil, nil, constraint("unique index %s already holds %s", col, canonical(v))
		}
	}

	data, err := encodeRow(row)
	if err != nil {
		return nil, nil, err
	}

	prevNext, prevBytes := t.nextKey, t.bytes
	if exists {
		t.dropUnique(oldRow)
		t.bytes -= int64(len(old))
	}
	t.rows.Store(sk, data)
	t.bytes += int64(len(data))
	t.addUnique(row, sk)
	if n, isInt := key.(ir.IRInt); isInt && t.schema.PrimaryKeyAuto && int64(n) >= t.nextKey {
		t.nextKey = int64(n) + 1
	}

	return key, func() {
		t.dropUnique(row)
		if exists {
			t.rows.Store(sk, old)
			t.addUnique(oldRow, sk)
		} else {
			t.rows.Delete(sk)
		}
		t.nextKey, t.bytes = prevNext, prevBytes
	}, nil
}

// remove deletes the row under key. Reports whether it existed.
func (t *table) remove(key ir.IRValue) (bool, undo, error) {
	sk, err := sortKey(key)
	if err != nil {
		return false, nil, invalid("%v", err)
	}
	old, exists := t.rows.Load(sk)
	if !exists {
		return false, func() {}, nil
	}
	oldRow, err := decodeRow(old)
	if err != nil {
		return false, nil, err
	}

	t.rows.Delete(sk)
	t.dropUnique(oldRow)
	t.bytes -= int64(len(old))

	return true, func() {
		t.rows.Store(sk, old)
		t.addUnique(oldRow, sk)
		t.bytes += int64(len(old))
	}, nil
}

func (t *table) addUnique(row *ir.Bag, sk string) {
	for col, entries := range t.unique {
		if v, ok := row.Get(col); ok && !ir.IsNull(v) {
			entries[canonical(v)] = sk
		}
	}
}

func (t *table) dropUnique(row *ir.Bag) {
	for col, entries := range t.unique {
		if v, ok := row.Get(col); ok && !ir.IsNull(v) {
			delete(entries, canonical(v))
		}
	}
}

// get returns the row under key, or nil.
func (t *table) get(key ir.IRValue) (*ir.Bag, error) {
	sk, err := sortKey(key)
	if err != nil {
		return nil, invalid("%v", err)
	}
	data, ok := t.rows.Load(sk)
	if !ok {
		return nil, nil
	}
	return decodeRow(data)
}

// all returns every row in key order.
func (t *table) all() ([]*ir.Bag, error) {
	out := make([]*ir.Bag, 0, t.rows.Len())
	var err error
	t.rows.Range(func(_ string, data []byte) bool {
		var row *ir.Bag
		if row, err = decodeRow(data); err != nil {
			return false
		}
		out = append(out, row)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *table) clear() {
	t.rows = skipmap.NewString[[]byte]()
	for col := range t.unique {
		t.unique[col] = make(map[string]string)
	}
	t.bytes = 0
}

// reshape applies a new declaration of the same store during a version
// upgrade. The primary key cannot change; unique indexes are rebuilt and
// must hold for the existing rows.
func (t *table) reshape(schema ir.TableSchema) error {
	if schema.PrimaryKey != t.schema.PrimaryKey {
		return invalid("store %s: primary key cannot change from %s to %s",
			schema.Name, t.schema.PrimaryKey, schema.PrimaryKey)
	}
	rows, err := t.all()
	if err != nil {
		return err
	}
	unique := make(map[string]map[string]string, len(schema.UniqueIndexes))
	for _, col := range schema.UniqueIndexes {
		unique[col] = make(map[string]string)
	}
	for _, row := range rows {
		key, _ := row.Get(t.schema.PrimaryKey)
		sk, err := sortKey(key)
		if err != nil {
			return err
		}
		for col, entries := range unique {
			v, ok := row.Get(col)
			if !ok || ir.IsNull(v) {
				continue
			}
			if _, taken := entries[canonical(v)]; taken {
				return constraint("store %s: existing rows violate unique index %s", schema.Name, col)
			}
			entries[canonical(v)] = sk
		}
	}
	t.schema = schema
	t.unique = unique
	return nil
}
