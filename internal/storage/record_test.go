package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_RoundTrip(t *testing.T) {
	r := require.New(t)

	values := []Value{
		NullValue(),
		IntegerValue(0),
		IntegerValue(1),
		IntegerValue(-1),
		IntegerValue(42),
		IntegerValue(1 << 40),
		RealValue(3.14159),
		TextValueString("hello, world"),
		BlobValue([]byte{0xde, 0xad, 0xbe, 0xef}),
	}

	payload := EncodeRecord(values)
	layout, err := ParseRecordHeader(payload)
	r.NoError(err)
	r.Equal(len(values), layout.NumColumns())

	for i, want := range values {
		got, err := layout.Value(i)
		r.NoError(err)
		r.Equal(want.Kind, got.Kind)
		switch want.Kind {
		case KindIntegral:
			r.Equal(want.Integer, got.Integer)
		case KindReal:
			r.Equal(want.Real, got.Real)
		case KindText, KindBlob:
			r.Equal(want.Bytes, got.Bytes)
		}
	}
}

func TestRecord_MinimalIntegerWidths(t *testing.T) {
	r := require.New(t)

	// A record of small integers should encode far smaller than one
	// naively storing every value as a fixed 8-byte integer.
	values := make([]Value, 100)
	for i := range values {
		values[i] = IntegerValue(int64(i % 5))
	}
	payload := EncodeRecord(values)
	r.Less(len(payload), 100*8)
}

func TestRecord_EmptyRow(t *testing.T) {
	r := require.New(t)

	payload := EncodeRecord(nil)
	layout, err := ParseRecordHeader(payload)
	r.NoError(err)
	r.Equal(0, layout.NumColumns())
}

func TestRecord128_RoundTrip(t *testing.T) {
	r := require.New(t)

	hi := IntegerValue(0x0102030405060708)
	lo := IntegerValue(0x1112131415161718)

	raw := Record128(hi, lo)
	gotHi, gotLo := Split128(raw)
	r.Equal(hi.Integer, gotHi.Integer)
	r.Equal(lo.Integer, gotLo.Integer)
}
