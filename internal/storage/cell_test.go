package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testUsableSize = 4096 - 0 // no reserved region in these tests

func TestLeafTableCell_RoundTrip_Inline(t *testing.T) {
	r := require.New(t)

	payload := []byte("a small row that stays inline")
	encoded := BuildLeafTableCell(testUsableSize, 7, payload, 0)

	cell, err := ParseLeafTableCell(testUsableSize, encoded)
	r.NoError(err)
	r.Equal(int64(7), cell.RowID)
	r.Equal(len(payload), cell.PayloadSize)
	r.Equal(payload, cell.InlinePayload)
	r.Zero(cell.OverflowPage)
	r.Equal(len(encoded), cell.EncodedLen())
}

func TestLeafTableCell_RoundTrip_Overflow(t *testing.T) {
	r := require.New(t)

	payload := make([]byte, testUsableSize*2)
	for i := range payload {
		payload[i] = byte(i)
	}
	encoded := BuildLeafTableCell(testUsableSize, 99, payload, 42)

	cell, err := ParseLeafTableCell(testUsableSize, encoded)
	r.NoError(err)
	r.Equal(int64(99), cell.RowID)
	r.Equal(len(payload), cell.PayloadSize)
	r.Less(len(cell.InlinePayload), len(payload))
	r.Equal(uint32(42), cell.OverflowPage)
}

func TestInteriorTableCell_RoundTrip(t *testing.T) {
	r := require.New(t)

	encoded := BuildInteriorTableCell(5, 123)
	cell, err := ParseInteriorTableCell(encoded)
	r.NoError(err)
	r.Equal(uint32(5), cell.LeftChild)
	r.Equal(int64(123), cell.RowID)
	r.Equal(len(encoded), cell.EncodedLen())
}

func TestLeafIndexCell_RoundTrip(t *testing.T) {
	r := require.New(t)

	payload := EncodeIndexKey([]Value{TextValueString("key"), IntegerValue(1)}, 10)
	encoded := BuildLeafIndexCell(testUsableSize, payload, 0)

	cell, err := ParseLeafIndexCell(testUsableSize, encoded)
	r.NoError(err)
	r.Equal(payload, cell.InlinePayload)
	r.Zero(cell.OverflowPage)
}

func TestInteriorIndexCell_RoundTrip(t *testing.T) {
	r := require.New(t)

	payload := EncodeIndexKey([]Value{IntegerValue(5)}, 1)
	encoded := BuildInteriorIndexCell(testUsableSize, 3, payload, 0)

	cell, err := ParseInteriorIndexCell(testUsableSize, encoded)
	r.NoError(err)
	r.Equal(uint32(3), cell.LeftChild)
	r.Equal(payload, cell.InlinePayload)
}
