package storage

import "sort"

// Mutator performs structural b-tree writes (insert/delete/update)
// against a PageSource, tracking every page it touches so the owning
// Transaction can serialize exactly the dirty set at commit. It
// generalizes the teacher's splitPage/AddCell pattern from a single
// rightmost-leaf table into proper root-retaining splits driven by a
// cursor's seek position.
type Mutator struct {
	src   PageSource
	dirty map[int]*MemPage
	next  int // next unallocated page number
}

func NewMutator(src PageSource, pageCount int) *Mutator {
	return &Mutator{
		src:   src,
		dirty: make(map[int]*MemPage),
		next:  pageCount + 1,
	}
}

// DirtyPages returns every page this mutator touched, in ascending
// page-number order, ready for the commit path to serialize.
func (m *Mutator) DirtyPages() []*MemPage {
	out := make([]*MemPage, 0, len(m.dirty))
	for _, p := range m.dirty {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out
}

// AllocateRootPage grows the database by one page of the given type
// and returns its page number, for use as a freshly created table or
// index's root page (CREATE TABLE / CREATE INDEX).
func (m *Mutator) AllocateRootPage(pageType PageType) (int, error) {
	p, err := m.allocate(pageType)
	if err != nil {
		return 0, err
	}
	if err := m.touch(p); err != nil {
		return 0, err
	}
	return p.PageNumber, nil
}

func (m *Mutator) allocate(pageType PageType) (*MemPage, error) {
	n := m.next
	m.next++
	p := NewPage(n, pageType, m.src.PageSize(), m.src.PageSize())
	m.dirty[n] = p
	return p, nil
}

func (m *Mutator) load(pageNumber int) (*MemPage, error) {
	if p, ok := m.dirty[pageNumber]; ok {
		return p, nil
	}
	data, err := m.src.GetPage(pageNumber)
	if err != nil {
		return nil, err
	}
	p, err := ParsePage(pageNumber, data, m.src.PageSize())
	if err != nil {
		return nil, err
	}
	return p, nil
}

// touch records p as dirty and writes it through to the backing
// source immediately (the source is always a transaction's
// ShadowSource, so this simply refreshes the copy-on-write overlay;
// nothing is visible outside the transaction until commit copies the
// overlay into the WAL or main file).
func (m *Mutator) touch(p *MemPage) error {
	p.Dirty = true
	m.dirty[p.PageNumber] = p
	return m.src.WritePage(p.PageNumber, p.Data)
}

// InsertTableRow inserts a row keyed by rowID into the table b-tree
// rooted at rootPage, splitting the root leaf (with root retention,
// per spec.md's root-stays-the-root-page invariant) when it no longer
// fits.
func (m *Mutator) InsertTableRow(rootPage int, rowID int64, payload []byte) error {
	usable := m.src.PageSize()
	overflowPage, tail := m.maybeAllocateOverflow(payload, usable, true)
	cellBytes := BuildLeafTableCell(usable, rowID, payload, overflowPage)
	if overflowPage != 0 {
		if err := WriteOverflow(m.src, overflowPage, tail); err != nil {
			return err
		}
	}

	root, err := m.load(rootPage)
	if err != nil {
		return err
	}

	if root.Type.IsLeaf() {
		return m.insertIntoLeafOrSplit(root, cellBytes, rowID)
	}
	return m.insertIntoInteriorTable(root, cellBytes, rowID)
}

func (m *Mutator) maybeAllocateOverflow(payload []byte, usable int, isTableLeaf bool) (uint32, []byte) {
	inline := inlinePayloadLen(usable, isTableLeaf, len(payload))
	if inline >= len(payload) {
		return 0, nil
	}
	tail := payload[inline:]
	n := m.next
	m.next++
	return uint32(n), tail
}

func (m *Mutator) insertIntoLeafOrSplit(leaf *MemPage, cellBytes []byte, rowID int64) error {
	idx, _, err := binarySearchLeafTable(leaf, rowID)
	if err != nil {
		return err
	}

	if leaf.Fits(len(cellBytes)) {
		leaf.InsertCellAt(idx, cellBytes)
		return m.touch(leaf)
	}
	if leaf.FitsAfterDefragment(len(cellBytes)) {
		if err := leaf.Defragment(); err != nil {
			return err
		}
		idx, _, err = binarySearchLeafTable(leaf, rowID)
		if err != nil {
			return err
		}
		leaf.InsertCellAt(idx, cellBytes)
		return m.touch(leaf)
	}

	return m.splitLeafAndInsert(leaf, cellBytes, rowID)
}

// splitLeafAndInsert implements root-retaining split: the original
// page keeps its page number but becomes an interior page with one
// divider cell pointing at a freshly allocated left sibling; the
// right half of the original contents (plus the new cell, inserted in
// key order) move to another freshly allocated leaf referenced by the
// interior page's right-child pointer.
func (m *Mutator) splitLeafAndInsert(leaf *MemPage, cellBytes []byte, rowID int64) error {
	usable := m.src.PageSize()

	type entry struct {
		rowID int64
		bytes []byte
	}
	n := int(leaf.NumCells)
	entries := make([]entry, 0, n+1)
	for i := 0; i < n; i++ {
		cb, err := leaf.CellBytes(i)
		if err != nil {
			return err
		}
		cell, err := ParseLeafTableCell(usable, cb)
		if err != nil {
			return err
		}
		cp := make([]byte, len(cb))
		copy(cp, cb)
		entries = append(entries, entry{rowID: cell.RowID, bytes: cp})
	}
	insertAt := sort.Search(len(entries), func(i int) bool { return entries[i].rowID >= rowID })
	entries = append(entries, entry{})
	copy(entries[insertAt+1:], entries[insertAt:])
	entries[insertAt] = entry{rowID: rowID, bytes: cellBytes}

	mid := len(entries) / 2

	left, err := m.allocate(PageTypeLeafTable)
	if err != nil {
		return err
	}
	right, err := m.allocate(PageTypeLeafTable)
	if err != nil {
		return err
	}
	for i := 0; i < mid; i++ {
		left.InsertCellAt(int(left.NumCells), entries[i].bytes)
	}
	for i := mid; i < len(entries); i++ {
		right.InsertCellAt(int(right.NumCells), entries[i].bytes)
	}
	if err := m.touch(left); err != nil {
		return err
	}
	if err := m.touch(right); err != nil {
		return err
	}

	dividerRowID := entries[mid-1].rowID
	leaf.PageHeader = PageHeader{
		Type:             PageTypeInteriorTable,
		CellContentStart: uint16(usable),
		RightChild:       uint32(right.PageNumber),
	}
	leaf.NumCells = 0
	leaf.writeHeader()
	dividerCell := BuildInteriorTableCell(uint32(left.PageNumber), dividerRowID)
	leaf.InsertCellAt(0, dividerCell)
	return m.touch(leaf)
}

// insertIntoInteriorTable descends to the correct child leaf via the
// same key comparison the cursor's seek uses, then recurses. Splits
// of interior pages themselves (growing tree height beyond two
// levels) are not yet implemented; an interior page that cannot
// accept a new divider cell returns ErrUnsupportedFeature rather than
// silently dropping the insert.
func (m *Mutator) insertIntoInteriorTable(interior *MemPage, cellBytes []byte, rowID int64) error {
	idx, err := interiorSearchTable(interior, rowID)
	if err != nil {
		return err
	}

	var childPageNumber int
	if idx >= int(interior.NumCells) {
		childPageNumber = int(interior.RightChild)
	} else {
		cb, err := interior.CellBytes(idx)
		if err != nil {
			return err
		}
		cell, err := ParseInteriorTableCell(cb)
		if err != nil {
			return err
		}
		childPageNumber = int(cell.LeftChild)
	}

	child, err := m.load(childPageNumber)
	if err != nil {
		return err
	}
	if !child.Type.IsLeaf() {
		return m.insertIntoInteriorTable(child, cellBytes, rowID)
	}

	if child.Fits(len(cellBytes)) || child.FitsAfterDefragment(len(cellBytes)) {
		return m.insertIntoLeafOrSplit(child, cellBytes, rowID)
	}

	if !interior.Fits(InteriorTableCell{}.EncodedLen() + 9) {
		return NewError(ErrUnsupportedFeature, "interior page full: multi-level rebalance not supported")
	}
	return m.splitChildLeafUnderInterior(interior, child, cellBytes, rowID, idx)
}

func (m *Mutator) splitChildLeafUnderInterior(interior, child *MemPage, cellBytes []byte, rowID int64, dividerIdx int) error {
	usable := m.src.PageSize()
	n := int(child.NumCells)

	type entry struct {
		rowID int64
		bytes []byte
	}
	entries := make([]entry, 0, n+1)
	for i := 0; i < n; i++ {
		cb, err := child.CellBytes(i)
		if err != nil {
			return err
		}
		cell, err := ParseLeafTableCell(usable, cb)
		if err != nil {
			return err
		}
		cp := make([]byte, len(cb))
		copy(cp, cb)
		entries = append(entries, entry{rowID: cell.RowID, bytes: cp})
	}
	insertAt := sort.Search(len(entries), func(i int) bool { return entries[i].rowID >= rowID })
	entries = append(entries, entry{})
	copy(entries[insertAt+1:], entries[insertAt:])
	entries[insertAt] = entry{rowID: rowID, bytes: cellBytes}
	mid := len(entries) / 2

	newRight, err := m.allocate(PageTypeLeafTable)
	if err != nil {
		return err
	}
	// child is rebuilt fresh from the merged entry list rather than
	// appended onto, since it must shrink to only the left half.
	child.NumCells = 0
	child.CellContentStart = uint16(usable)
	child.FragmentedFreeBytes = 0
	child.FirstFreeblock = 0
	child.writeHeader()
	for i := 0; i < mid; i++ {
		child.InsertCellAt(int(child.NumCells), entries[i].bytes)
	}
	for i := mid; i < len(entries); i++ {
		newRight.InsertCellAt(int(newRight.NumCells), entries[i].bytes)
	}
	if err := m.touch(child); err != nil {
		return err
	}
	if err := m.touch(newRight); err != nil {
		return err
	}

	// child retains the left half of its former contents; the existing
	// divider cell (or RightChild, if child was the rightmost subtree)
	// still terminates at the same key and must now point at newRight
	// instead of child. A fresh divider cell for child's new, smaller
	// key range is inserted ahead of it.
	dividerRowID := entries[mid-1].rowID
	dividerCell := BuildInteriorTableCell(uint32(child.PageNumber), dividerRowID)
	interior.InsertCellAt(dividerIdx, dividerCell)
	if dividerIdx >= int(interior.NumCells)-1 {
		interior.RightChild = uint32(newRight.PageNumber)
		interior.writeHeader()
	} else {
		interior.SetInteriorLeftChild(dividerIdx+1, uint32(newRight.PageNumber))
	}
	return m.touch(interior)
}

// DeleteTableRow removes the row keyed by rowID, if present. Per
// spec.md §4.3's simple reclamation policy, this does not rebalance
// sibling leaves; the freed bytes become fragmentation or a
// freeblock entry within the page that held the row.
func (m *Mutator) DeleteTableRow(rootPage int, rowID int64) (bool, error) {
	pageNumber := rootPage
	for {
		p, err := m.load(pageNumber)
		if err != nil {
			return false, err
		}
		if p.Type.IsLeaf() {
			idx, found, err := binarySearchLeafTable(p, rowID)
			if err != nil {
				return false, err
			}
			if !found {
				return false, nil
			}
			if err := p.RemoveCellAt(idx); err != nil {
				return false, err
			}
			if err := m.touch(p); err != nil {
				return false, err
			}
			return true, nil
		}
		idx, err := interiorSearchTable(p, rowID)
		if err != nil {
			return false, err
		}
		if idx >= int(p.NumCells) {
			pageNumber = int(p.RightChild)
			continue
		}
		cb, err := p.CellBytes(idx)
		if err != nil {
			return false, err
		}
		cell, err := ParseInteriorTableCell(cb)
		if err != nil {
			return false, err
		}
		pageNumber = int(cell.LeftChild)
	}
}

// UpdateTableRow replaces the payload for an existing row by deleting
// the old cell and inserting a new one; a payload of the same size is
// not overwritten in place.
func (m *Mutator) UpdateTableRow(rootPage int, rowID int64, payload []byte) error {
	if _, err := m.DeleteTableRow(rootPage, rowID); err != nil {
		return err
	}
	return m.InsertTableRow(rootPage, rowID, payload)
}

// InsertIndexRow inserts keyPayload (as produced by EncodeIndexKey)
// into the index b-tree rooted at rootPage, keeping leaf cells
// ordered by CompareIndexKeys instead of a plain rowid. Splitting
// mirrors InsertTableRow's root-retention rule, generalized to
// record-order comparison.
func (m *Mutator) InsertIndexRow(rootPage int, keyPayload []byte) error {
	usable := m.src.PageSize()
	overflowPage, tail := m.maybeAllocateOverflow(keyPayload, usable, false)
	cellBytes := BuildLeafIndexCell(usable, keyPayload, overflowPage)
	if overflowPage != 0 {
		if err := WriteOverflow(m.src, overflowPage, tail); err != nil {
			return err
		}
	}

	root, err := m.load(rootPage)
	if err != nil {
		return err
	}
	if root.Type.IsLeaf() {
		return m.insertIntoIndexLeafOrSplit(root, cellBytes, keyPayload)
	}
	return m.insertIntoInteriorIndex(root, cellBytes, keyPayload)
}

func (m *Mutator) insertIntoIndexLeafOrSplit(leaf *MemPage, cellBytes, keyPayload []byte) error {
	idx, _, err := binarySearchLeafIndex(leaf, keyPayload)
	if err != nil {
		return err
	}

	if leaf.Fits(len(cellBytes)) {
		leaf.InsertCellAt(idx, cellBytes)
		return m.touch(leaf)
	}
	if leaf.FitsAfterDefragment(len(cellBytes)) {
		if err := leaf.Defragment(); err != nil {
			return err
		}
		idx, _, err = binarySearchLeafIndex(leaf, keyPayload)
		if err != nil {
			return err
		}
		leaf.InsertCellAt(idx, cellBytes)
		return m.touch(leaf)
	}
	return m.splitIndexLeafAndInsert(leaf, cellBytes, keyPayload)
}

// splitIndexLeafAndInsert applies the same root-retaining split the
// table tree uses: the original page becomes a one-divider interior
// page, with the pre-split contents plus the new cell divided between
// two freshly allocated leaves.
func (m *Mutator) splitIndexLeafAndInsert(leaf *MemPage, cellBytes, keyPayload []byte) error {
	usable := m.src.PageSize()

	type entry struct {
		key   []byte
		bytes []byte
	}
	n := int(leaf.NumCells)
	entries := make([]entry, 0, n+1)
	for i := 0; i < n; i++ {
		cb, err := leaf.CellBytes(i)
		if err != nil {
			return err
		}
		payload, err := leafIndexPayload(leaf, i)
		if err != nil {
			return err
		}
		cp := make([]byte, len(cb))
		copy(cp, cb)
		entries = append(entries, entry{key: payload, bytes: cp})
	}
	insertAt := len(entries)
	for i, e := range entries {
		c, err := CompareIndexKeys(e.key, keyPayload)
		if err != nil {
			return err
		}
		if c >= 0 {
			insertAt = i
			break
		}
	}
	entries = append(entries, entry{})
	copy(entries[insertAt+1:], entries[insertAt:])
	entries[insertAt] = entry{key: keyPayload, bytes: cellBytes}

	mid := len(entries) / 2

	left, err := m.allocate(PageTypeLeafIndex)
	if err != nil {
		return err
	}
	right, err := m.allocate(PageTypeLeafIndex)
	if err != nil {
		return err
	}
	for i := 0; i < mid; i++ {
		left.InsertCellAt(int(left.NumCells), entries[i].bytes)
	}
	for i := mid; i < len(entries); i++ {
		right.InsertCellAt(int(right.NumCells), entries[i].bytes)
	}
	if err := m.touch(left); err != nil {
		return err
	}
	if err := m.touch(right); err != nil {
		return err
	}

	dividerKey := entries[mid-1].key
	leaf.PageHeader = PageHeader{
		Type:             PageTypeInteriorIndex,
		CellContentStart: uint16(usable),
		RightChild:       uint32(right.PageNumber),
	}
	leaf.NumCells = 0
	leaf.writeHeader()
	dividerOverflow, dividerTail := m.maybeAllocateOverflow(dividerKey, usable, false)
	if dividerOverflow != 0 {
		if err := WriteOverflow(m.src, dividerOverflow, dividerTail); err != nil {
			return err
		}
	}
	dividerCell := BuildInteriorIndexCell(usable, uint32(left.PageNumber), dividerKey, dividerOverflow)
	leaf.InsertCellAt(0, dividerCell)
	return m.touch(leaf)
}

// insertIntoInteriorIndex descends to the correct child leaf the same
// way SeekIndexKey does. A child leaf without room for the cell is not
// split: the insert returns ErrUnsupportedFeature, so an index tree
// holds at most the two leaves created when its root split.
func (m *Mutator) insertIntoInteriorIndex(interior *MemPage, cellBytes, keyPayload []byte) error {
	idx, err := interiorSearchIndex(interior, keyPayload)
	if err != nil {
		return err
	}

	var childPageNumber int
	if idx >= int(interior.NumCells) {
		childPageNumber = int(interior.RightChild)
	} else {
		cb, err := interior.CellBytes(idx)
		if err != nil {
			return err
		}
		cell, err := ParseInteriorIndexCell(interior.usableSizeOrLen(), cb)
		if err != nil {
			return err
		}
		childPageNumber = int(cell.LeftChild)
	}

	child, err := m.load(childPageNumber)
	if err != nil {
		return err
	}
	if !child.Type.IsLeaf() {
		return m.insertIntoInteriorIndex(child, cellBytes, keyPayload)
	}
	if child.Fits(len(cellBytes)) || child.FitsAfterDefragment(len(cellBytes)) {
		return m.insertIntoIndexLeafOrSplit(child, cellBytes, keyPayload)
	}
	return NewError(ErrUnsupportedFeature, "interior index page full: multi-level rebalance not supported")
}

// GetMaxRowID returns the largest rowid stored under rootPage, or 0
// for an empty tree.
func (m *Mutator) GetMaxRowID(rootPage int) (int64, error) {
	pageNumber := rootPage
	for {
		p, err := m.load(pageNumber)
		if err != nil {
			return 0, err
		}
		if p.Type.IsLeaf() {
			if p.NumCells == 0 {
				return 0, nil
			}
			cb, err := p.CellBytes(int(p.NumCells) - 1)
			if err != nil {
				return 0, err
			}
			cell, err := ParseLeafTableCell(m.src.PageSize(), cb)
			if err != nil {
				return 0, err
			}
			return cell.RowID, nil
		}
		pageNumber = int(p.RightChild)
	}
}
