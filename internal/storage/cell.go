package storage

import (
	"bytes"
	"encoding/binary"
)

// overflowThreshold computes the inline payload limit X and the
// fallback minimum inline portion m for a given usable page size and
// cell kind, per spec.md §3 "Payload overflow threshold".
func overflowThreshold(usable int, isTableLeaf bool) (maxInline int, minInline int) {
	m := ((usable-12)*32)/255 - 23
	if isTableLeaf {
		return usable - 35, m
	}
	x := ((usable-12)*64)/255 - 23
	return x, m
}

// inlinePayloadLen decides how much of payload stays inline given the
// usable page size and cell kind, returning the inline slice length.
// When the full payload fits within the inline limit it is returned
// unchanged (inline == len(payload)).
func inlinePayloadLen(usable int, isTableLeaf bool, payloadLen int) int {
	maxInline, minInline := overflowThreshold(usable, isTableLeaf)
	if payloadLen <= maxInline {
		return payloadLen
	}
	inline := minInline + (payloadLen-minInline)%(usable-4)
	if inline > maxInline {
		inline = minInline
	}
	return inline
}

// cellLen returns the total encoded length of the cell starting at
// data[0]. usable is the page's usable size, needed to reproduce the
// same inline/overflow split the encoder applied.
func cellLen(t PageType, data []byte, usable int) (int, error) {
	switch t {
	case PageTypeInteriorTable:
		if len(data) < 4 {
			return 0, NewError(ErrCorruptPage, "interior table cell truncated")
		}
		_, n, err := ReadVarintAt(data[4:])
		if err != nil {
			return 0, err
		}
		return 4 + n, nil
	case PageTypeLeafTable:
		payloadSize, n1, err := ReadVarintAt(data)
		if err != nil {
			return 0, err
		}
		_, n2, err := ReadVarintAt(data[n1:])
		if err != nil {
			return 0, err
		}
		headerLen := n1 + n2
		inline := inlinePayloadLen(usable, true, int(payloadSize))
		total := headerLen + inline
		if inline < int(payloadSize) {
			total += 4
		}
		return total, nil
	case PageTypeLeafIndex:
		payloadSize, n1, err := ReadVarintAt(data)
		if err != nil {
			return 0, err
		}
		inline := inlinePayloadLen(usable, false, int(payloadSize))
		total := n1 + inline
		if inline < int(payloadSize) {
			total += 4
		}
		return total, nil
	case PageTypeInteriorIndex:
		if len(data) < 4 {
			return 0, NewError(ErrCorruptPage, "interior index cell truncated")
		}
		payloadSize, n1, err := ReadVarintAt(data[4:])
		if err != nil {
			return 0, err
		}
		inline := inlinePayloadLen(usable, false, int(payloadSize))
		total := 4 + n1 + inline
		if inline < int(payloadSize) {
			total += 4
		}
		return total, nil
	}
	return 0, NewError(ErrCorruptPage, "unknown page type")
}

// ReadVarintAt decodes a varint from the start of data and reports how
// many bytes it consumed, without requiring an io.ByteReader.
func ReadVarintAt(data []byte) (uint64, int, error) {
	r := &byteSliceReader{data: data}
	v, n, err := ReadVarint(r)
	return v, n, err
}

type byteSliceReader struct {
	data []byte
	pos  int
}

func (r *byteSliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errShortBuffer
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

var errShortBuffer = NewError(ErrCorruptPage, "buffer too short for varint")

// LeafTableCell is the decoded shape of a table b-tree leaf cell.
type LeafTableCell struct {
	RowID          int64
	PayloadSize    int
	InlinePayload  []byte
	OverflowPage   uint32 // 0 if none
}

// BuildLeafTableCell encodes a leaf-table cell, spilling to an
// overflow page when payload exceeds the inline threshold. When it
// does, overflowPage is written as the cell's first-overflow-page
// pointer; the caller writes the tail bytes to that page. Only the
// cell bytes are returned.
func BuildLeafTableCell(usable int, rowID int64, payload []byte, overflowPage uint32) []byte {
	inline := inlinePayloadLen(usable, true, len(payload))

	buf := bytes.Buffer{}
	WriteVarint(&buf, uint64(len(payload)))
	WriteVarint(&buf, uint64(rowID))
	buf.Write(payload[:inline])
	if inline < len(payload) {
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], overflowPage)
		buf.Write(p[:])
	}
	return buf.Bytes()
}

// ParseLeafTableCell decodes a leaf-table cell from data (which may
// extend beyond the cell; only the cell's own bytes are consumed).
func ParseLeafTableCell(usable int, data []byte) (LeafTableCell, error) {
	payloadSize, n1, err := ReadVarintAt(data)
	if err != nil {
		return LeafTableCell{}, err
	}
	rowID, n2, err := ReadVarintAt(data[n1:])
	if err != nil {
		return LeafTableCell{}, err
	}
	headerLen := n1 + n2
	inline := inlinePayloadLen(usable, true, int(payloadSize))

	if headerLen+inline > len(data) {
		return LeafTableCell{}, NewError(ErrCorruptPage, "leaf table cell truncated")
	}
	cell := LeafTableCell{
		RowID:         int64(rowID),
		PayloadSize:   int(payloadSize),
		InlinePayload: data[headerLen : headerLen+inline],
	}
	if inline < int(payloadSize) {
		ovfOff := headerLen + inline
		if ovfOff+4 > len(data) {
			return LeafTableCell{}, NewError(ErrCorruptPage, "missing overflow pointer")
		}
		cell.OverflowPage = binary.BigEndian.Uint32(data[ovfOff : ovfOff+4])
	}
	return cell, nil
}

// EncodedLen returns the exact number of bytes a leaf-table cell
// occupies in the page.
func (c LeafTableCell) EncodedLen() int {
	n := VarintLen(uint64(c.PayloadSize)) + VarintLen(uint64(c.RowID)) + len(c.InlinePayload)
	if c.OverflowPage != 0 {
		n += 4
	}
	return n
}

// InteriorTableCell is a divider cell in a table interior page.
type InteriorTableCell struct {
	LeftChild uint32
	RowID     int64
}

func BuildInteriorTableCell(leftChild uint32, rowID int64) []byte {
	buf := bytes.Buffer{}
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], leftChild)
	buf.Write(p[:])
	WriteVarint(&buf, uint64(rowID))
	return buf.Bytes()
}

func ParseInteriorTableCell(data []byte) (InteriorTableCell, error) {
	if len(data) < 4 {
		return InteriorTableCell{}, NewError(ErrCorruptPage, "interior table cell truncated")
	}
	leftChild := binary.BigEndian.Uint32(data[0:4])
	rowID, _, err := ReadVarintAt(data[4:])
	if err != nil {
		return InteriorTableCell{}, err
	}
	return InteriorTableCell{LeftChild: leftChild, RowID: int64(rowID)}, nil
}

func (c InteriorTableCell) EncodedLen() int {
	return 4 + VarintLen(uint64(c.RowID))
}

// LeafIndexCell and InteriorIndexCell hold a full record key
// (concatenated indexed columns + trailing rowid for disambiguation)
// as their payload.
type LeafIndexCell struct {
	PayloadSize   int
	InlinePayload []byte
	OverflowPage  uint32
}

func BuildLeafIndexCell(usable int, payload []byte, overflowPage uint32) []byte {
	inline := inlinePayloadLen(usable, false, len(payload))
	buf := bytes.Buffer{}
	WriteVarint(&buf, uint64(len(payload)))
	buf.Write(payload[:inline])
	if inline < len(payload) {
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], overflowPage)
		buf.Write(p[:])
	}
	return buf.Bytes()
}

func ParseLeafIndexCell(usable int, data []byte) (LeafIndexCell, error) {
	payloadSize, n1, err := ReadVarintAt(data)
	if err != nil {
		return LeafIndexCell{}, err
	}
	inline := inlinePayloadLen(usable, false, int(payloadSize))
	if n1+inline > len(data) {
		return LeafIndexCell{}, NewError(ErrCorruptPage, "leaf index cell truncated")
	}
	cell := LeafIndexCell{
		PayloadSize:   int(payloadSize),
		InlinePayload: data[n1 : n1+inline],
	}
	if inline < int(payloadSize) {
		ovfOff := n1 + inline
		if ovfOff+4 > len(data) {
			return LeafIndexCell{}, NewError(ErrCorruptPage, "missing overflow pointer")
		}
		cell.OverflowPage = binary.BigEndian.Uint32(data[ovfOff : ovfOff+4])
	}
	return cell, nil
}

func (c LeafIndexCell) EncodedLen() int {
	n := VarintLen(uint64(c.PayloadSize)) + len(c.InlinePayload)
	if c.OverflowPage != 0 {
		n += 4
	}
	return n
}

type InteriorIndexCell struct {
	LeftChild     uint32
	PayloadSize   int
	InlinePayload []byte
	OverflowPage  uint32
}

func BuildInteriorIndexCell(usable int, leftChild uint32, payload []byte, overflowPage uint32) []byte {
	inline := inlinePayloadLen(usable, false, len(payload))
	buf := bytes.Buffer{}
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], leftChild)
	buf.Write(p[:])
	WriteVarint(&buf, uint64(len(payload)))
	buf.Write(payload[:inline])
	if inline < len(payload) {
		var o [4]byte
		binary.BigEndian.PutUint32(o[:], overflowPage)
		buf.Write(o[:])
	}
	return buf.Bytes()
}

func ParseInteriorIndexCell(usable int, data []byte) (InteriorIndexCell, error) {
	if len(data) < 4 {
		return InteriorIndexCell{}, NewError(ErrCorruptPage, "interior index cell truncated")
	}
	leftChild := binary.BigEndian.Uint32(data[0:4])
	payloadSize, n1, err := ReadVarintAt(data[4:])
	if err != nil {
		return InteriorIndexCell{}, err
	}
	inline := inlinePayloadLen(usable, false, int(payloadSize))
	if 4+n1+inline > len(data) {
		return InteriorIndexCell{}, NewError(ErrCorruptPage, "interior index cell truncated")
	}
	cell := InteriorIndexCell{
		LeftChild:     leftChild,
		PayloadSize:   int(payloadSize),
		InlinePayload: data[4+n1 : 4+n1+inline],
	}
	if inline < int(payloadSize) {
		ovfOff := 4 + n1 + inline
		if ovfOff+4 > len(data) {
			return InteriorIndexCell{}, NewError(ErrCorruptPage, "missing overflow pointer")
		}
		cell.OverflowPage = binary.BigEndian.Uint32(data[ovfOff : ovfOff+4])
	}
	return cell, nil
}

func (c InteriorIndexCell) EncodedLen() int {
	n := 4 + VarintLen(uint64(c.PayloadSize)) + len(c.InlinePayload)
	if c.OverflowPage != 0 {
		n += 4
	}
	return n
}

// OverflowPageDataSize is the number of payload bytes an overflow page
// can hold after its 4-byte next-page pointer.
func OverflowPageDataSize(usable int) int {
	return usable - 4
}
