package storage

import "encoding/binary"

// PageType identifies the four b-tree page shapes.
type PageType byte

const (
	PageTypeInteriorIndex PageType = 0x02
	PageTypeInteriorTable PageType = 0x05
	PageTypeLeafIndex     PageType = 0x0A
	PageTypeLeafTable     PageType = 0x0D
)

func (t PageType) IsLeaf() bool {
	return t == PageTypeLeafIndex || t == PageTypeLeafTable
}

func (t PageType) IsTable() bool {
	return t == PageTypeInteriorTable || t == PageTypeLeafTable
}

func (t PageType) HeaderLen() int {
	if t.IsLeaf() {
		return 8
	}
	return 12
}

// PageHeader is the 8 or 12 byte b-tree page header.
type PageHeader struct {
	Type                PageType
	FirstFreeblock      uint16
	NumCells            uint16
	CellContentStart    uint16 // 0 encodes 65536
	FragmentedFreeBytes byte
	RightChild          uint32 // interior pages only
}

// MemPage is an in-memory view over one page's raw bytes: the file
// header (page 1 only), the b-tree page header, the cell pointer
// array, and the cell content area.
type MemPage struct {
	PageHeader
	PageNumber int
	Data       []byte // full page, PageSize bytes
	UsableSize int     // PageSize - reserved bytes
	Dirty      bool
}

// HeaderOffset is where the b-tree page header begins: 100 on page 1
// (after the file header), 0 elsewhere.
func HeaderOffset(pageNumber int) int {
	if pageNumber == 1 {
		return FileHeaderSize
	}
	return 0
}

func (p *MemPage) headerOffset() int { return HeaderOffset(p.PageNumber) }

func (p *MemPage) pointerArrayOffset() int {
	return p.headerOffset() + p.Type.HeaderLen()
}

// usableSizeOrLen falls back to the full page length for pages
// constructed before UsableSize is known (only relevant to tests that
// build a MemPage directly rather than through ParsePage/NewPage).
func (p *MemPage) usableSizeOrLen() int {
	if p.UsableSize != 0 {
		return p.UsableSize
	}
	return len(p.Data)
}

// NewPage allocates a fresh, empty page of the given type.
func NewPage(pageNumber int, pageType PageType, pageSize int, usableSize int) *MemPage {
	p := &MemPage{
		PageHeader: PageHeader{
			Type:             pageType,
			CellContentStart: uint16(usableSize),
		},
		PageNumber: pageNumber,
		Data:       make([]byte, pageSize),
		UsableSize: usableSize,
	}
	if usableSize >= 65536 {
		p.CellContentStart = 0
	}
	p.writeHeader()
	return p
}

// ParsePage decodes the b-tree page header from raw page bytes. The
// slice is retained (not copied) — callers that need an owned copy
// must clone first.
func ParsePage(pageNumber int, data []byte, usableSize int) (*MemPage, error) {
	off := HeaderOffset(pageNumber)
	if off+8 > len(data) {
		return nil, NewError(ErrCorruptPage, "page too small for header")
	}

	t := PageType(data[off])
	switch t {
	case PageTypeInteriorIndex, PageTypeInteriorTable, PageTypeLeafIndex, PageTypeLeafTable:
	default:
		return nil, NewError(ErrCorruptPage, "invalid page type flag")
	}

	h := PageHeader{
		Type:                t,
		FirstFreeblock:      binary.BigEndian.Uint16(data[off+1 : off+3]),
		NumCells:            binary.BigEndian.Uint16(data[off+3 : off+5]),
		CellContentStart:    binary.BigEndian.Uint16(data[off+5 : off+7]),
		FragmentedFreeBytes: data[off+7],
	}
	if !t.IsLeaf() {
		if off+12 > len(data) {
			return nil, NewError(ErrCorruptPage, "interior page too small for header")
		}
		h.RightChild = binary.BigEndian.Uint32(data[off+8 : off+12])
	}

	return &MemPage{
		PageHeader: h,
		PageNumber: pageNumber,
		Data:       data,
		UsableSize: usableSize,
	}, nil
}

func (p *MemPage) cellContentStart() int {
	if p.CellContentStart == 0 {
		return 65536
	}
	return int(p.CellContentStart)
}

func (p *MemPage) writeHeader() {
	off := p.headerOffset()
	buf := p.Data[off:]
	buf[0] = byte(p.Type)
	binary.BigEndian.PutUint16(buf[1:3], p.FirstFreeblock)
	binary.BigEndian.PutUint16(buf[3:5], p.NumCells)
	binary.BigEndian.PutUint16(buf[5:7], p.CellContentStart)
	buf[7] = p.FragmentedFreeBytes
	if !p.Type.IsLeaf() {
		binary.BigEndian.PutUint32(buf[8:12], p.RightChild)
	}
	p.Dirty = true
}

// CellPointer returns the byte offset (within the page) of cell i.
func (p *MemPage) CellPointer(i int) uint16 {
	off := p.pointerArrayOffset() + i*2
	return binary.BigEndian.Uint16(p.Data[off : off+2])
}

func (p *MemPage) setCellPointer(i int, offset uint16) {
	off := p.pointerArrayOffset() + i*2
	binary.BigEndian.PutUint16(p.Data[off:off+2], offset)
}

// CellBytes returns the raw bytes of cell i, sized by parsing its
// shape-specific length.
func (p *MemPage) CellBytes(i int) ([]byte, error) {
	offset := int(p.CellPointer(i))
	n, err := cellLen(p.Type, p.Data[offset:], p.usableSizeOrLen())
	if err != nil {
		return nil, err
	}
	return p.Data[offset : offset+n], nil
}

// SetInteriorLeftChild overwrites the left-child pointer of an
// already-placed interior cell in place. Safe because the pointer is
// a fixed 4-byte field at the start of every interior cell shape, so
// rewriting it never changes the cell's length.
func (p *MemPage) SetInteriorLeftChild(i int, leftChild uint32) {
	offset := int(p.CellPointer(i))
	binary.BigEndian.PutUint32(p.Data[offset:offset+4], leftChild)
	p.Dirty = true
}

// freeContiguousSpace returns the gap between the end of the current
// pointer array and the start of the cell content area; room for a new
// pointer is not subtracted (Fits does that).
func (p *MemPage) freeContiguousSpace() int {
	pointerEnd := p.pointerArrayOffset() + int(p.NumCells)*2
	return p.cellContentStart() - pointerEnd
}

// Fits reports whether a cell of cellLen bytes can be added without a
// split, accounting for the new pointer entry.
func (p *MemPage) Fits(cellLen int) bool {
	return p.freeContiguousSpace()-2 >= cellLen
}

// FitsAfterDefragment accounts for fragmented bytes and the freeblock
// chain total, matching the usable-space invariant in spec.md §3.
func (p *MemPage) FitsAfterDefragment(cellLen int) bool {
	total := p.freeContiguousSpace() + int(p.FragmentedFreeBytes) + p.freeblockTotal()
	return total-2 >= cellLen
}

func (p *MemPage) freeblockTotal() int {
	total := 0
	off := p.FirstFreeblock
	seen := map[uint16]bool{}
	for off != 0 {
		if seen[off] || int(off)+4 > len(p.Data) {
			break
		}
		seen[off] = true
		size := binary.BigEndian.Uint16(p.Data[off+2 : off+4])
		total += int(size)
		off = binary.BigEndian.Uint16(p.Data[off : off+2])
	}
	return total
}

// InsertCellAt inserts cellBytes as a new cell at logical position i
// (0-based), shifting subsequent pointers up by one slot. Caller must
// have already verified Fits/FitsAfterDefragment (defragmenting first
// if necessary).
func (p *MemPage) InsertCellAt(i int, cellBytes []byte) {
	n := int(p.NumCells)
	arrOff := p.pointerArrayOffset()

	// Shift pointer array right by one slot to make room at i.
	for j := n; j > i; j-- {
		src := p.Data[arrOff+(j-1)*2 : arrOff+(j-1)*2+2]
		dst := p.Data[arrOff+j*2 : arrOff+j*2+2]
		copy(dst, src)
	}

	newContentStart := p.cellContentStart() - len(cellBytes)
	copy(p.Data[newContentStart:], cellBytes)

	ptr := uint16(newContentStart)
	if newContentStart == 65536 {
		ptr = 0
	}
	binary.BigEndian.PutUint16(p.Data[arrOff+i*2:arrOff+i*2+2], ptr)

	p.CellContentStart = ptr
	p.NumCells++
	p.writeHeader()
}

// RemoveCellAt removes the pointer entry for cell i, shifting
// subsequent pointers down, and accounts for the freed bytes as
// fragmentation (the simple policy named in spec.md §4.3: "does not
// rebalance sibling leaves... widens fragmented-free-bytes").
func (p *MemPage) RemoveCellAt(i int) error {
	offset := int(p.CellPointer(i))
	n, err := cellLen(p.Type, p.Data[offset:], p.usableSizeOrLen())
	if err != nil {
		return err
	}

	arrOff := p.pointerArrayOffset()
	numCells := int(p.NumCells)
	for j := i; j < numCells-1; j++ {
		src := p.Data[arrOff+(j+1)*2 : arrOff+(j+1)*2+2]
		dst := p.Data[arrOff+j*2 : arrOff+j*2+2]
		copy(dst, src)
	}
	p.NumCells--

	if offset == p.cellContentStart() {
		// The removed cell sat at the lowest offset: the content area
		// start can simply advance past it, no fragmentation.
		newStart := offset + n
		ptr := uint16(newStart)
		if newStart == 65536 {
			ptr = 0
		}
		p.CellContentStart = ptr
	} else {
		// Mid-content-area hole: record as fragmentation. A byte budget
		// small enough to not warrant a freeblock entry is tracked as
		// fragmented-free-bytes directly; larger holes are threaded
		// onto the freeblock chain.
		if n < 4 {
			p.FragmentedFreeBytes += byte(n)
		} else {
			binary.BigEndian.PutUint16(p.Data[offset:offset+2], p.FirstFreeblock)
			binary.BigEndian.PutUint16(p.Data[offset+2:offset+4], uint16(n))
			p.FirstFreeblock = uint16(offset)
		}
	}

	p.writeHeader()
	return nil
}

// Defragment reconstructs the cell content area so that
// fragmented-free-bytes is 0 and the freeblock chain is empty,
// without reordering cell pointers, per spec.md §4.3 and the
// "Page defragmentation" testable property in spec.md §8.
func (p *MemPage) Defragment() error {
	n := int(p.NumCells)
	type cellRef struct {
		idx int
		buf []byte
	}
	cells := make([]cellRef, n)
	for i := 0; i < n; i++ {
		b, err := p.CellBytes(i)
		if err != nil {
			return err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		cells[i] = cellRef{idx: i, buf: cp}
	}

	usable := p.UsableSize
	if usable == 0 {
		usable = len(p.Data)
	}
	cursor := usable
	arrOff := p.pointerArrayOffset()
	for i := 0; i < n; i++ {
		c := cells[i]
		cursor -= len(c.buf)
		copy(p.Data[cursor:], c.buf)
		ptr := uint16(cursor)
		if cursor == 65536 {
			ptr = 0
		}
		binary.BigEndian.PutUint16(p.Data[arrOff+i*2:arrOff+i*2+2], ptr)
	}

	// Zero the now-unused gap between the pointer array and the
	// reclaimed content area to avoid leaking stale bytes.
	gapStart := arrOff + n*2
	for j := gapStart; j < cursor; j++ {
		p.Data[j] = 0
	}

	ptr := uint16(cursor)
	if cursor == 65536 {
		ptr = 0
	}
	p.CellContentStart = ptr
	p.FragmentedFreeBytes = 0
	p.FirstFreeblock = 0
	p.writeHeader()
	return nil
}

// Clone makes an independent copy of the page.
func (p *MemPage) Clone(newPageNumber int) *MemPage {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	clone := &MemPage{
		PageHeader: p.PageHeader,
		PageNumber: newPageNumber,
		Data:       data,
		UsableSize: p.UsableSize,
		Dirty:      true,
	}
	// Cell payloads copied verbatim above are still valid; only the
	// header's own page-1 special-casing needs re-pinning if the new
	// page number differs in page-1-ness from the source (it never
	// does in practice: page 1 never gets cloned away from page 1).
	clone.writeHeader()
	return clone
}
