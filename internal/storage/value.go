package storage

import "math"

// ValueKind tags the five storage classes a Value can hold.
type ValueKind byte

const (
	KindNull ValueKind = iota
	KindIntegral
	KindReal
	KindText
	KindBlob
)

// Value is a tagged variant over the five storage classes a record
// column can hold. Text and Blob normally borrow the page's backing
// array; Materialize copies into an owned allocation only when the
// caller asks for one.
type Value struct {
	Kind    ValueKind
	Integer int64
	Real    float64
	Bytes   []byte // borrowed for Text/Blob unless explicitly cloned
}

func NullValue() Value                  { return Value{Kind: KindNull} }
func IntegerValue(v int64) Value        { return Value{Kind: KindIntegral, Integer: v} }
func RealValue(v float64) Value         { return Value{Kind: KindReal, Real: v} }
func TextValue(b []byte) Value          { return Value{Kind: KindText, Bytes: b} }
func TextValueString(s string) Value    { return Value{Kind: KindText, Bytes: []byte(s)} }
func BlobValue(b []byte) Value          { return Value{Kind: KindBlob, Bytes: b} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// String materializes a Text value as an owned string. Callers that
// only need to borrow the bytes should read v.Bytes directly.
func (v Value) String() string {
	if v.Kind != KindText && v.Kind != KindBlob {
		return ""
	}
	return string(v.Bytes)
}

// serial type codes, per the record header encoding (spec.md §3).
const (
	serialNull      = 0
	serialInt8      = 1
	serialInt16     = 2
	serialInt24     = 3
	serialInt32     = 4
	serialInt48     = 5
	serialInt64     = 6
	serialFloat64   = 7
	serialZero      = 8
	serialOne       = 9
	serialReserved1 = 10
	serialReserved2 = 11
)

// serialTypeSize returns the number of body bytes a serial type
// occupies, excluding BLOB/TEXT which are computed from the serial
// type itself.
func serialTypeSize(serialType uint64) (int, error) {
	switch serialType {
	case serialNull, serialZero, serialOne:
		return 0, nil
	case serialInt8:
		return 1, nil
	case serialInt16:
		return 2, nil
	case serialInt24:
		return 3, nil
	case serialInt32:
		return 4, nil
	case serialInt48:
		return 6, nil
	case serialInt64, serialFloat64:
		return 8, nil
	case serialReserved1, serialReserved2:
		return 0, &Error{Kind: ErrUnsupportedFeature, Message: "reserved serial type"}
	}
	if serialType >= 12 {
		if serialType%2 == 0 {
			return int((serialType - 12) / 2), nil
		}
		return int((serialType - 13) / 2), nil
	}
	return 0, &Error{Kind: ErrCorruptPage, Message: "invalid serial type"}
}

// isBlobSerial / isTextSerial classify serial types >= 12.
func isBlobSerial(serialType uint64) bool { return serialType >= 12 && serialType%2 == 0 }
func isTextSerial(serialType uint64) bool { return serialType >= 13 && serialType%2 == 1 }

// classifySerialType decodes a serial type into a Value shell (Bytes
// left nil for fixed-width classes; filled in by the record decoder).
func classifySerialType(serialType uint64) ValueKind {
	switch {
	case serialType == serialNull:
		return KindNull
	case serialType == serialFloat64:
		return KindReal
	case serialType == serialZero || serialType == serialOne:
		return KindIntegral
	case serialType >= serialInt8 && serialType <= serialInt64:
		return KindIntegral
	case isBlobSerial(serialType):
		return KindBlob
	case isTextSerial(serialType):
		return KindText
	}
	return KindNull
}

// minimalIntegerSerialType picks the smallest serial type that can
// represent v exactly, per the minimal-size rule in spec.md §8.
func minimalIntegerSerialType(v int64) uint64 {
	switch {
	case v == 0:
		return serialZero
	case v == 1:
		return serialOne
	case v >= -(1<<7) && v < 1<<7:
		return serialInt8
	case v >= -(1<<15) && v < 1<<15:
		return serialInt16
	case v >= -(1<<23) && v < 1<<23:
		return serialInt24
	case v >= -(1<<31) && v < 1<<31:
		return serialInt32
	case v >= -(1<<47) && v < 1<<47:
		return serialInt48
	default:
		return serialInt64
	}
}

// decodeIntegerBody reinterprets a big-endian two's-complement integer
// of the given byte width (sign-extending from its natural width).
func decodeIntegerBody(b []byte) int64 {
	var x int64
	if len(b) > 0 && b[0]&0x80 != 0 {
		x = -1 // sign-extend
	}
	for _, c := range b {
		x = (x << 8) | int64(uint8(c))
	}
	return x
}

func encodeIntegerBody(v int64, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func decodeFloat64Body(b []byte) float64 {
	var bits uint64
	for _, c := range b {
		bits = (bits << 8) | uint64(c)
	}
	return math.Float64frombits(bits)
}

func encodeFloat64Body(v float64) []byte {
	bits := math.Float64bits(v)
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(bits)
		bits >>= 8
	}
	return out
}
