package query

import (
	"github.com/pagestore/pagestore/internal/schema"
	"github.com/pagestore/pagestore/internal/storage"
)

// Reader is a streaming, zero-allocation-per-row view over a table's
// rows: each Next call repositions the same RecordLayout rather than
// materializing a new row object, and typed accessors read straight
// out of the underlying page bytes.
type Reader struct {
	src    storage.PageSource
	table  *schema.Table
	cursor *storage.Cursor

	rowID  int64
	layout storage.RecordLayout
}

func NewReader(src storage.PageSource, table *schema.Table) *Reader {
	return &Reader{
		src:    src,
		table:  table,
		cursor: storage.NewCursor(src, table.RootPage, true),
	}
}

// Rewind positions the reader at the first row, loading it immediately
// so Current-style accessors are valid without an extra Next call.
func (r *Reader) Rewind() (bool, error) {
	ok, err := r.cursor.Rewind()
	if err != nil || !ok {
		return false, err
	}
	return r.load()
}

// Next advances to the next row, returning false once exhausted.
// Callers must call Rewind once before the first Next.
func (r *Reader) Next() (bool, error) {
	ok, err := r.cursor.Next()
	if err != nil || !ok {
		return false, err
	}
	return r.load()
}

func (r *Reader) load() (bool, error) {
	cellBytes, err := r.cursor.Current()
	if err != nil {
		return false, err
	}
	cell, err := storage.ParseLeafTableCell(r.src.PageSize(), cellBytes)
	if err != nil {
		return false, err
	}
	payload := cell.InlinePayload
	if cell.OverflowPage != 0 {
		tail, err := storage.ReadOverflow(r.src, cell.OverflowPage, cell.PayloadSize-len(cell.InlinePayload))
		if err != nil {
			return false, err
		}
		payload = append(append([]byte(nil), payload...), tail...)
	}
	layout, err := storage.ParseRecordHeader(payload)
	if err != nil {
		return false, err
	}
	r.layout = layout
	r.rowID = cell.RowID
	return true, nil
}

func (r *Reader) RowID() int64 { return r.rowID }

// Layout exposes the current row's parsed record layout so callers
// (the filter interpreter, the root package's projection logic) can
// read columns without re-walking the record header themselves.
func (r *Reader) Layout() storage.RecordLayout { return r.layout }

// IsNull reports whether physical column i is NULL without
// materializing its value.
func (r *Reader) IsNull(i int) bool {
	return r.layout.Columns[i].Kind == storage.KindNull
}

func (r *Reader) GetI64(i int) (int64, error) {
	v, err := r.layout.Value(i)
	if err != nil {
		return 0, err
	}
	return v.Integer, nil
}

func (r *Reader) GetF64(i int) (float64, error) {
	v, err := r.layout.Value(i)
	if err != nil {
		return 0, err
	}
	return v.Real, nil
}

// GetUTF8Span returns a borrowed view of a TEXT column's bytes.
func (r *Reader) GetUTF8Span(i int) ([]byte, error) {
	v, err := r.layout.Value(i)
	if err != nil {
		return nil, err
	}
	return v.Bytes, nil
}

// GetBlobSpan returns a borrowed view of a BLOB column's bytes.
func (r *Reader) GetBlobSpan(i int) ([]byte, error) {
	return r.GetUTF8Span(i)
}

// GetUUID reassembles a 128-bit UUID logical column from its two
// physical Integral columns.
func (r *Reader) GetUUID(logicalCol int) ([16]byte, error) {
	ordinals := r.table.MergedPhysicalOrdinals(logicalCol)
	if len(ordinals) != 2 {
		return [16]byte{}, storage.NewError(storage.ErrCorruptPage, "column is not a 128-bit logical type")
	}
	hi, err := r.layout.Value(ordinals[0])
	if err != nil {
		return [16]byte{}, err
	}
	lo, err := r.layout.Value(ordinals[1])
	if err != nil {
		return [16]byte{}, err
	}
	return storage.Record128(hi, lo), nil
}

// GetDecimal reassembles a fixed-point decimal logical column from
// its two adjacent Integral physical columns (scale, then scaled
// value), the same pairing GetUUID reads for 128-bit columns.
func (r *Reader) GetDecimal(logicalCol int) (schema.Decimal, error) {
	ordinals := r.table.MergedPhysicalOrdinals(logicalCol)
	if len(ordinals) != 2 {
		return schema.Decimal{}, storage.NewError(storage.ErrCorruptPage, "column is not a decimal logical type")
	}
	hi, err := r.layout.Value(ordinals[0])
	if err != nil {
		return schema.Decimal{}, err
	}
	lo, err := r.layout.Value(ordinals[1])
	if err != nil {
		return schema.Decimal{}, err
	}
	return schema.Decimal{Scaled: lo.Integer, Scale: int8(hi.Integer)}, nil
}
