package storage

import "bytes"

// CompareIndexKeys orders two index payloads (each the output of
// EncodeRecord over the indexed columns followed by a trailing rowid
// column) by comparing values column by column in record order,
// falling through to the trailing rowid once every indexed column
// compares equal. This is the comparison an index b-tree uses in
// place of a table tree's plain rowid ordering (spec.md §3's
// "cell payloads are strictly increasing under record-order
// comparison" invariant).
func CompareIndexKeys(a, b []byte) (int, error) {
	la, err := ParseRecordHeader(a)
	if err != nil {
		return 0, err
	}
	lb, err := ParseRecordHeader(b)
	if err != nil {
		return 0, err
	}
	n := la.NumColumns()
	if lb.NumColumns() < n {
		n = lb.NumColumns()
	}
	for i := 0; i < n; i++ {
		va, err := la.Value(i)
		if err != nil {
			return 0, err
		}
		vb, err := lb.Value(i)
		if err != nil {
			return 0, err
		}
		if c := compareValues(va, vb); c != 0 {
			return c, nil
		}
	}
	return la.NumColumns() - lb.NumColumns(), nil
}

// compareValues orders two typed values: NULL sorts before every
// other class, otherwise values are compared within their own class.
// Mixed-class comparisons beyond NULL are not required by the
// indexes this store builds (every column of a composite key keeps a
// single declared type), so they fall back to kind order.
func compareValues(a, b Value) int {
	if a.Kind == KindNull && b.Kind == KindNull {
		return 0
	}
	if a.Kind == KindNull {
		return -1
	}
	if b.Kind == KindNull {
		return 1
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindIntegral:
		switch {
		case a.Integer < b.Integer:
			return -1
		case a.Integer > b.Integer:
			return 1
		default:
			return 0
		}
	case KindReal:
		switch {
		case a.Real < b.Real:
			return -1
		case a.Real > b.Real:
			return 1
		default:
			return 0
		}
	default: // KindText, KindBlob: BINARY collation, byte-wise compare
		return bytes.Compare(a.Bytes, b.Bytes)
	}
}

// EncodeIndexKey builds an index leaf/interior payload: the indexed
// column values followed by the owning rowid, so duplicate keys in a
// non-unique index still sort deterministically (spec.md §3).
func EncodeIndexKey(keyValues []Value, rowID int64) []byte {
	return EncodeRecord(append(append([]Value{}, keyValues...), IntegerValue(rowID)))
}

// IndexKeyRowID extracts the trailing rowid column from a decoded
// index payload.
func IndexKeyRowID(layout RecordLayout) (int64, error) {
	v, err := layout.Value(layout.NumColumns() - 1)
	if err != nil {
		return 0, err
	}
	return v.Integer, nil
}
