package storage

import "encoding/binary"

// Cursor is a forward-only, seek-capable b-tree walker. It caches the
// last leaf it visited so repeated Next calls within the same leaf
// avoid re-descending from the root, and it exposes IsStale so a long
// lived cursor can detect (without auto-invalidating) that the
// underlying data has moved on since it was opened.
type Cursor struct {
	src      PageSource
	rootPage int
	isTable  bool

	stack []frame // ancestor interior pages, root first

	cachedLeafPage int
	cachedLeaf     *MemPage
	cellIndex      int
	exhausted      bool

	openedAtVersion uint64
}

type frame struct {
	pageNumber int
	cellIndex  int // next child index to descend into
}

func NewCursor(src PageSource, rootPage int, isTable bool) *Cursor {
	return &Cursor{
		src:             src,
		rootPage:        rootPage,
		isTable:         isTable,
		openedAtVersion: src.DataVersion(),
	}
}

// IsStale reports whether the source's data has changed since this
// cursor was opened. It never auto-invalidates the cursor; callers
// decide whether to re-seek.
func (c *Cursor) IsStale() bool {
	return c.src.DataVersion() != c.openedAtVersion
}

func (c *Cursor) loadPage(n int) (*MemPage, error) {
	if c.cachedLeaf != nil && c.cachedLeafPage == n {
		return c.cachedLeaf, nil
	}
	data, err := c.src.GetPage(n)
	if err != nil {
		return nil, err
	}
	p, err := ParsePage(n, data, c.src.PageSize())
	if err != nil {
		return nil, err
	}
	if p.Type.IsLeaf() {
		c.cachedLeaf = p
		c.cachedLeafPage = n
	}
	return p, nil
}

// Rewind positions the cursor on the first entry, descending leftmost
// to the first leaf; it reports false when the tree is empty.
func (c *Cursor) Rewind() (bool, error) {
	c.stack = c.stack[:0]
	c.cellIndex = 0
	c.exhausted = false
	return c.descendLeftmost(c.rootPage)
}

func (c *Cursor) descendLeftmost(pageNumber int) (bool, error) {
	for {
		p, err := c.loadPage(pageNumber)
		if err != nil {
			return false, err
		}
		if p.Type.IsLeaf() {
			if p.NumCells == 0 {
				return c.advancePastEmptyLeaf()
			}
			c.cellIndex = 0
			return true, nil
		}
		c.stack = append(c.stack, frame{pageNumber: pageNumber, cellIndex: 0})
		cellBytes, err := p.CellBytes(0)
		if err != nil {
			return false, err
		}
		pageNumber = leftChildOf(p.Type, cellBytes)
	}
}

// leftChildOf reads the left-child page pointer, which is always the
// first 4 bytes of an interior cell regardless of table/index shape.
func leftChildOf(t PageType, cellBytes []byte) int {
	return int(binary.BigEndian.Uint32(cellBytes[0:4]))
}

// advancePastEmptyLeaf handles the degenerate case of an empty leaf
// reached during descent (only possible transiently mid-mutation) by
// walking back up to the next sibling.
func (c *Cursor) advancePastEmptyLeaf() (bool, error) {
	return c.Next()
}

// Current returns the current leaf cell's raw bytes.
func (c *Cursor) Current() ([]byte, error) {
	if c.cachedLeaf == nil {
		return nil, NewError(ErrCorruptPage, "cursor not positioned")
	}
	return c.cachedLeaf.CellBytes(c.cellIndex)
}

// Next advances to the next leaf cell in key order, returning false
// once the tree is exhausted.
func (c *Cursor) Next() (bool, error) {
	if c.exhausted {
		return false, nil
	}
	if c.cachedLeaf != nil {
		if c.cellIndex+1 < int(c.cachedLeaf.NumCells) {
			c.cellIndex++
			return true, nil
		}
	}

	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		parent, err := c.loadPage(top.pageNumber)
		if err != nil {
			return false, err
		}

		top.cellIndex++
		if top.cellIndex < int(parent.NumCells) {
			cellBytes, err := parent.CellBytes(top.cellIndex)
			if err != nil {
				return false, err
			}
			child := leftChildOf(parent.Type, cellBytes)
			c.stack = c.stack[:len(c.stack)-1]
			c.stack = append(c.stack, frame{pageNumber: top.pageNumber, cellIndex: top.cellIndex})
			return c.descendLeftmost(child)
		}

		if top.cellIndex == int(parent.NumCells) {
			child := int(parent.RightChild)
			top.cellIndex++
			return c.descendLeftmost(child)
		}

		c.stack = c.stack[:len(c.stack)-1]
	}

	c.exhausted = true
	c.cachedLeaf = nil
	return false, nil
}

// SeekTableRowID positions the cursor at the leaf cell whose rowid is
// >= key (an inexact seek suitable for range scans and insert-point
// lookup), returning whether an exact match was found.
func (c *Cursor) SeekTableRowID(key int64) (exact bool, err error) {
	if !c.isTable {
		return false, NewError(ErrUnsupportedFeature, "rowid seek requires a table cursor")
	}
	c.stack = c.stack[:0]
	pageNumber := c.rootPage

	for {
		p, err := c.loadPage(pageNumber)
		if err != nil {
			return false, err
		}
		if p.Type.IsLeaf() {
			idx, found, err := binarySearchLeafTable(p, key)
			if err != nil {
				return false, err
			}
			c.cellIndex = idx
			c.exhausted = false
			return found, nil
		}

		idx, err := interiorSearchTable(p, key)
		if err != nil {
			return false, err
		}
		c.stack = append(c.stack, frame{pageNumber: pageNumber, cellIndex: idx})
		if idx >= int(p.NumCells) {
			pageNumber = int(p.RightChild)
			continue
		}
		cellBytes, err := p.CellBytes(idx)
		if err != nil {
			return false, err
		}
		cell, err := ParseInteriorTableCell(cellBytes)
		if err != nil {
			return false, err
		}
		pageNumber = int(cell.LeftChild)
	}
}

// SeekIndexKey positions the cursor at the leaf cell whose payload is
// >= keyPayload under record-order comparison, returning whether an
// exact match was found. keyPayload is compared as produced by
// EncodeIndexKey (indexed columns plus trailing rowid), matching what
// every leaf cell in the tree holds.
func (c *Cursor) SeekIndexKey(keyPayload []byte) (exact bool, err error) {
	if c.isTable {
		return false, NewError(ErrUnsupportedFeature, "index seek requires an index cursor")
	}
	c.stack = c.stack[:0]
	pageNumber := c.rootPage

	for {
		p, err := c.loadPage(pageNumber)
		if err != nil {
			return false, err
		}
		if p.Type.IsLeaf() {
			idx, found, err := binarySearchLeafIndex(p, keyPayload)
			if err != nil {
				return false, err
			}
			c.cellIndex = idx
			c.exhausted = false
			return found, nil
		}

		idx, err := interiorSearchIndex(p, keyPayload)
		if err != nil {
			return false, err
		}
		c.stack = append(c.stack, frame{pageNumber: pageNumber, cellIndex: idx})
		if idx >= int(p.NumCells) {
			pageNumber = int(p.RightChild)
			continue
		}
		cellBytes, err := p.CellBytes(idx)
		if err != nil {
			return false, err
		}
		cell, err := ParseInteriorIndexCell(p.usableSizeOrLen(), cellBytes)
		if err != nil {
			return false, err
		}
		pageNumber = int(cell.LeftChild)
	}
}

func leafIndexPayload(p *MemPage, i int) ([]byte, error) {
	cb, err := p.CellBytes(i)
	if err != nil {
		return nil, err
	}
	cell, err := ParseLeafIndexCell(p.usableSizeOrLen(), cb)
	if err != nil {
		return nil, err
	}
	if cell.OverflowPage == 0 {
		return cell.InlinePayload, nil
	}
	return cell.InlinePayload, nil // overflow chains handled by callers that need the full key
}

func binarySearchLeafIndex(p *MemPage, keyPayload []byte) (int, bool, error) {
	lo, hi := 0, int(p.NumCells)
	for lo < hi {
		mid := (lo + hi) / 2
		payload, err := leafIndexPayload(p, mid)
		if err != nil {
			return 0, false, err
		}
		c, err := CompareIndexKeys(payload, keyPayload)
		if err != nil {
			return 0, false, err
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < int(p.NumCells) {
		payload, err := leafIndexPayload(p, lo)
		if err != nil {
			return 0, false, err
		}
		c, err := CompareIndexKeys(payload, keyPayload)
		if err != nil {
			return 0, false, err
		}
		return lo, c == 0, nil
	}
	return lo, false, nil
}

func interiorSearchIndex(p *MemPage, keyPayload []byte) (int, error) {
	lo, hi := 0, int(p.NumCells)
	for lo < hi {
		mid := (lo + hi) / 2
		cb, err := p.CellBytes(mid)
		if err != nil {
			return 0, err
		}
		cell, err := ParseInteriorIndexCell(p.usableSizeOrLen(), cb)
		if err != nil {
			return 0, err
		}
		c, err := CompareIndexKeys(cell.InlinePayload, keyPayload)
		if err != nil {
			return 0, err
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

func binarySearchLeafTable(p *MemPage, key int64) (int, bool, error) {
	lo, hi := 0, int(p.NumCells)
	for lo < hi {
		mid := (lo + hi) / 2
		cellBytes, err := p.CellBytes(mid)
		if err != nil {
			return 0, false, err
		}
		cell, err := ParseLeafTableCell(p.usableSizeOrLen(), cellBytes)
		if err != nil {
			return 0, false, err
		}
		if cell.RowID < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < int(p.NumCells) {
		cellBytes, err := p.CellBytes(lo)
		if err != nil {
			return 0, false, err
		}
		cell, err := ParseLeafTableCell(p.usableSizeOrLen(), cellBytes)
		if err != nil {
			return 0, false, err
		}
		return lo, cell.RowID == key, nil
	}
	return lo, false, nil
}

func interiorSearchTable(p *MemPage, key int64) (int, error) {
	lo, hi := 0, int(p.NumCells)
	for lo < hi {
		mid := (lo + hi) / 2
		cellBytes, err := p.CellBytes(mid)
		if err != nil {
			return 0, err
		}
		cell, err := ParseInteriorTableCell(cellBytes)
		if err != nil {
			return 0, err
		}
		if cell.RowID < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}
