package memdb

import (
	"fmt"

	"github.com/roach88/idxstore/internal/ir"
)

// sortKey encodes a primary key so that byte order is key order: integers
// before strings, integers numerically, strings by code point.
//
// Integral floats are keyed as integers, since JSON carries no distinction.
func sortKey(key ir.IRValue) (string, error) {
	switch k := key.(type) {
	case ir.IRInt:
		return fmt.Sprintf("n%016x", uint64(k)^(1<<63)), nil
	case ir.IRFloat:
		i := int64(k)
		if float64(i) != float64(k) {
			return "", fmt.Errorf("primary key %v is not an integer", float64(k))
		}
		return sortKey(ir.IRInt(i))
	case ir.IRString:
		return "s" + string(k), nil
	default:
		return "", fmt.Errorf("unsupported primary key kind %s", ir.KindOf(key))
	}
}

// canonical returns the identity used for unique index entries and query
// deduplication. Numbers compare by value across int and float.
func canonical(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(data)
}
