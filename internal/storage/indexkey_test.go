package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareIndexKeys_Ordering(t *testing.T) {
	r := require.New(t)

	low := EncodeIndexKey([]Value{IntegerValue(1)}, 1)
	high := EncodeIndexKey([]Value{IntegerValue(2)}, 1)
	equal := EncodeIndexKey([]Value{IntegerValue(1)}, 1)

	c, err := CompareIndexKeys(low, high)
	r.NoError(err)
	r.Negative(c)

	c, err = CompareIndexKeys(high, low)
	r.NoError(err)
	r.Positive(c)

	c, err = CompareIndexKeys(low, equal)
	r.NoError(err)
	r.Zero(c)
}

func TestCompareIndexKeys_TieBreaksOnRowID(t *testing.T) {
	r := require.New(t)

	first := EncodeIndexKey([]Value{TextValueString("dup")}, 1)
	second := EncodeIndexKey([]Value{TextValueString("dup")}, 2)

	c, err := CompareIndexKeys(first, second)
	r.NoError(err)
	r.Negative(c)
}

func TestIndexKeyRowID(t *testing.T) {
	r := require.New(t)

	payload := EncodeIndexKey([]Value{IntegerValue(10), TextValueString("x")}, 55)
	layout, err := ParseRecordHeader(payload)
	r.NoError(err)

	rowID, err := IndexKeyRowID(layout)
	r.NoError(err)
	r.Equal(int64(55), rowID)
}
