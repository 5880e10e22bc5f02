package memdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idxstore/internal/ir"
)

func TestRowCodec_PreservesOrderAndKinds(t *testing.T) {
	row := ir.NewBag()
	row.Set("Name", ir.IRString("Bob"))
	row.Set("Id", ir.IRInt(-42))
	row.Set("Score", ir.IRFloat(2.5))
	row.Set("Retired", ir.IRBool(false))
	row.Set("Nickname", ir.IRNull{})
	row.Set("Tags", ir.IRArray{ir.IRString("a"), ir.IRInt(1)})
	row.Set("Meta", ir.IRObject{"b": ir.IRInt(2), "a": ir.IRString("x")})

	data, err := encodeRow(row)
	require.NoError(t, err)

	back, err := decodeRow(data)
	require.NoError(t, err)
	assert.Equal(t, row.Keys(), back.Keys())
	for k, v := range row.All() {
		got, ok := back.Get(k)
		require.True(t, ok, k)
		assert.Equal(t, v, got, k)
	}
}

func TestSortKey_Order(t *testing.T) {
	keys := []ir.IRValue{ir.IRInt(-5), ir.IRInt(0), ir.IRInt(2), ir.IRInt(10), ir.IRString(""), ir.IRString("A"), ir.IRString("a")}

	prev := ""
	for i, k := range keys {
		sk, err := sortKey(k)
		require.NoError(t, err)
		if i > 0 {
			assert.Less(t, prev, sk, "key %v", k)
		}
		prev = sk
	}

	a, err := sortKey(ir.IRFloat(3))
	require.NoError(t, err)
	b, err := sortKey(ir.IRInt(3))
	require.NoError(t, err)
	assert.Equal(t, b, a)

	_, err = sortKey(ir.IRFloat(3.5))
	assert.Error(t, err)
	_, err = sortKey(ir.IRBool(true))
	assert.Error(t, err)
}
