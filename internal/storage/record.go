package storage

import "bytes"

// ColumnOffset locates one column's body bytes within a decoded
// record payload, precomputed once per row so typed accessors run in
// O(1) rather than re-walking the header.
type ColumnOffset struct {
	SerialType uint64
	Kind       ValueKind
	Offset     int // from the start of the payload, header included
	Len        int
}

// RecordLayout is the result of walking a record header: one
// ColumnOffset per column, ready for random-access decoding.
type RecordLayout struct {
	Columns []ColumnOffset
	Body    []byte // the whole payload, header included
}

// ParseRecordHeader walks the header-size varint and the per-column
// serial-type varints, computing each column's byte offset into the
// record body without materializing any column value. Precomputing
// offsets up front (rather than decoding lazily per access) keeps
// repeated accessor calls from re-walking prior columns.
func ParseRecordHeader(payload []byte) (RecordLayout, error) {
	headerSize, n, err := ReadVarintAt(payload)
	if err != nil {
		return RecordLayout{}, err
	}
	if int(headerSize) > len(payload) {
		return RecordLayout{}, NewError(ErrCorruptPage, "record header longer than payload")
	}

	headerEnd := int(headerSize)
	pos := n
	var columns []ColumnOffset
	bodyOffset := headerEnd

	for pos < headerEnd {
		serialType, used, err := ReadVarintAt(payload[pos:])
		if err != nil {
			return RecordLayout{}, err
		}
		pos += used

		size, err := serialTypeSize(serialType)
		if err != nil {
			return RecordLayout{}, err
		}
		columns = append(columns, ColumnOffset{
			SerialType: serialType,
			Kind:       classifySerialType(serialType),
			Offset:     bodyOffset,
			Len:        size,
		})
		bodyOffset += size
	}
	if bodyOffset > len(payload) {
		return RecordLayout{}, NewError(ErrCorruptPage, "record body shorter than header implies")
	}

	return RecordLayout{Columns: columns, Body: payload}, nil
}

// Value materializes column i as a typed Value. Text/Blob values
// borrow the underlying payload slice; callers needing an owned copy
// must clone explicitly.
func (l RecordLayout) Value(i int) (Value, error) {
	c := l.Columns[i]
	switch c.Kind {
	case KindNull:
		return NullValue(), nil
	case KindReal:
		return RealValue(decodeFloat64Body(l.Body[c.Offset : c.Offset+c.Len])), nil
	case KindIntegral:
		switch c.SerialType {
		case serialZero:
			return IntegerValue(0), nil
		case serialOne:
			return IntegerValue(1), nil
		default:
			return IntegerValue(decodeIntegerBody(l.Body[c.Offset : c.Offset+c.Len])), nil
		}
	case KindText:
		return TextValue(l.Body[c.Offset : c.Offset+c.Len]), nil
	case KindBlob:
		return BlobValue(l.Body[c.Offset : c.Offset+c.Len]), nil
	}
	return NullValue(), NewError(ErrCorruptPage, "unrecognized column kind")
}

// NumColumns reports how many logical columns the record header
// described.
func (l RecordLayout) NumColumns() int { return len(l.Columns) }

// EncodeRecord serializes a row of Values into the header+body record
// format: a varint header-size, one varint serial type per column,
// then each column's raw body bytes in order.
func EncodeRecord(values []Value) []byte {
	var header bytes.Buffer
	var body bytes.Buffer

	for _, v := range values {
		switch v.Kind {
		case KindNull:
			WriteVarint(&header, serialNull)
		case KindIntegral:
			st := minimalIntegerSerialType(v.Integer)
			WriteVarint(&header, st)
			if st != serialZero && st != serialOne {
				size, _ := serialTypeSize(st)
				body.Write(encodeIntegerBody(v.Integer, size))
			}
		case KindReal:
			WriteVarint(&header, serialFloat64)
			body.Write(encodeFloat64Body(v.Real))
		case KindText:
			st := uint64(len(v.Bytes)*2 + 13)
			WriteVarint(&header, st)
			body.Write(v.Bytes)
		case KindBlob:
			st := uint64(len(v.Bytes)*2 + 12)
			WriteVarint(&header, st)
			body.Write(v.Bytes)
		}
	}

	// Header size varint must include its own encoded length, which
	// can push a header from one byte to two; try the size assuming a
	// one-byte self-length first and grow if that doesn't round-trip.
	headerBody := header.Bytes()
	headerSizeLen := VarintLen(uint64(len(headerBody) + 1))
	totalHeaderSize := uint64(len(headerBody) + headerSizeLen)
	if VarintLen(totalHeaderSize) != headerSizeLen {
		headerSizeLen = VarintLen(totalHeaderSize)
		totalHeaderSize = uint64(len(headerBody) + headerSizeLen)
	}

	out := bytes.Buffer{}
	WriteVarint(&out, totalHeaderSize)
	out.Write(headerBody)
	out.Write(body.Bytes())
	return out.Bytes()
}

// Record128 reassembles a 128-bit logical value (UUID or fixed-point
// decimal) stored as two adjacent physical Integral columns, high
// word first, per the logical/physical column-expansion convention.
func Record128(hi, lo Value) [16]byte {
	var out [16]byte
	h := uint64(hi.Integer)
	l := uint64(lo.Integer)
	for i := 0; i < 8; i++ {
		out[i] = byte(h >> (56 - 8*i))
		out[8+i] = byte(l >> (56 - 8*i))
	}
	return out
}

// Split128 decomposes a 128-bit logical value into the two Integral
// values its physical columns store.
func Split128(b [16]byte) (hi Value, lo Value) {
	var h, l uint64
	for i := 0; i < 8; i++ {
		h = (h << 8) | uint64(b[i])
	}
	for i := 0; i < 8; i++ {
		l = (l << 8) | uint64(b[8+i])
	}
	return IntegerValue(int64(h)), IntegerValue(int64(l))
}
