package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	r := require.New(t)

	for i := 0; i < 4096; i++ {
		bs := bytes.Buffer{}
		n, err := WriteVarint(&bs, uint64(i))
		r.NoError(err)
		r.Equal(n, VarintLen(uint64(i)))

		v, read, err := ReadVarint(bytes.NewReader(bs.Bytes()))
		r.NoError(err)
		r.Equal(n, read)
		r.Equal(uint64(i), v)
	}
}

func TestVarintRoundTrip_LargeValues(t *testing.T) {
	r := require.New(t)

	values := []uint64{
		0,
		1,
		127,
		128,
		1<<14 - 1,
		1 << 14,
		1<<56 - 1,
		1 << 56,
		^uint64(0),
	}

	for _, v := range values {
		bs := bytes.Buffer{}
		_, err := WriteVarint(&bs, v)
		r.NoError(err)

		got, _, err := ReadVarint(bytes.NewReader(bs.Bytes()))
		r.NoError(err)
		r.Equal(v, got)
	}
}

func TestVarintLen_MatchesWrittenLength(t *testing.T) {
	r := require.New(t)

	for shift := uint(0); shift < 64; shift++ {
		v := uint64(1) << shift
		bs := bytes.Buffer{}
		n, err := WriteVarint(&bs, v)
		r.NoError(err)
		r.Equal(n, VarintLen(v), "shift=%d", shift)
		r.LessOrEqual(n, MaxVarintLen)
	}
}
