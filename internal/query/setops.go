package query

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/pagestore/pagestore/internal/storage"
)

// Fingerprint computes an FNV-1a 64-bit hash of a row's values, used
// to deduplicate rows for UNION and to test membership for INTERSECT/
// EXCEPT without keeping every column of every row around for
// equality comparison.
func Fingerprint(values []interface{}) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range values {
		switch x := v.(type) {
		case int64:
			binary.BigEndian.PutUint64(buf[:], uint64(x))
			h.Write(buf[:])
		case float64:
			binary.BigEndian.PutUint64(buf[:], float64bits(x))
			h.Write(buf[:])
		case string:
			h.Write([]byte(x))
		case []byte:
			h.Write(x)
		case nil:
			h.Write([]byte{0})
		case storage.Value:
			h.Write([]byte{byte(x.Kind)})
			switch x.Kind {
			case storage.KindIntegral:
				binary.BigEndian.PutUint64(buf[:], uint64(x.Integer))
				h.Write(buf[:])
			case storage.KindReal:
				binary.BigEndian.PutUint64(buf[:], float64bits(x.Real))
				h.Write(buf[:])
			default:
				h.Write(x.Bytes)
			}
		}
		h.Write([]byte{0xff}) // column separator so "ab","c" != "a","bc"
	}
	return h.Sum64()
}

func float64bits(f float64) uint64 {
	return uint64(int64(f*1e9)) // coarse but stable ordering for dedup keys
}

// Union merges two row sets, keeping the first occurrence of each
// distinct fingerprint when all is false.
func Union(left, right []Row, all bool) []Row {
	if all {
		out := make([]Row, 0, len(left)+len(right))
		return append(append(out, left...), right...)
	}
	seen := make(map[uint64]struct{}, len(left)+len(right))
	out := make([]Row, 0, len(left)+len(right))
	for _, r := range append(append([]Row{}, left...), right...) {
		fp := Fingerprint(r.Values)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Intersect returns rows in left whose fingerprint also appears in
// right.
func Intersect(left, right []Row) []Row {
	rightSet := make(map[uint64]struct{}, len(right))
	for _, r := range right {
		rightSet[Fingerprint(r.Values)] = struct{}{}
	}
	seen := make(map[uint64]struct{}, len(left))
	var out []Row
	for _, r := range left {
		fp := Fingerprint(r.Values)
		if _, ok := rightSet[fp]; !ok {
			continue
		}
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Except returns rows in left whose fingerprint does not appear in
// right.
func Except(left, right []Row) []Row {
	rightSet := make(map[uint64]struct{}, len(right))
	for _, r := range right {
		rightSet[Fingerprint(r.Values)] = struct{}{}
	}
	seen := make(map[uint64]struct{}, len(left))
	var out []Row
	for _, r := range left {
		fp := Fingerprint(r.Values)
		if _, ok := rightSet[fp]; ok {
			continue
		}
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, r)
	}
	return out
}
