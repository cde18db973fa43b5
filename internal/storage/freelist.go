package storage

import "encoding/binary"

// Freelist manages pages no longer referenced by any b-tree, threaded
// as trunk pages each holding a short array of leaf-page numbers, per
// spec.md §3's freelist layout. A trunk page's first 4 bytes point to
// the next trunk (0 if last); the next 4 bytes give the leaf count;
// the remaining usable bytes hold up to (U-8)/4 leaf page numbers.
type Freelist struct {
	src PageSource
}

func NewFreelist(src PageSource) *Freelist {
	return &Freelist{src: src}
}

func trunkCapacity(usable int) int {
	return (usable - 8) / 4
}

// Push returns pageNumber to the freelist, threading a new trunk page
// when the current trunk is full or none exists yet.
func (f *Freelist) Push(header *FileHeader, pageNumber int) error {
	usable := f.src.PageSize()

	if header.FreelistTrunk == 0 {
		return f.newTrunk(header, pageNumber)
	}

	trunk, err := f.src.GetPage(int(header.FreelistTrunk))
	if err != nil {
		return err
	}
	leafCount := binary.BigEndian.Uint32(trunk[4:8])
	if int(leafCount) >= trunkCapacity(usable) {
		return f.newTrunk(header, pageNumber)
	}

	buf := make([]byte, usable)
	copy(buf, trunk)
	binary.BigEndian.PutUint32(buf[4:8], leafCount+1)
	off := 8 + int(leafCount)*4
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(pageNumber))
	if err := f.src.WritePage(int(header.FreelistTrunk), buf); err != nil {
		return err
	}
	header.FreelistCount++
	return nil
}

func (f *Freelist) newTrunk(header *FileHeader, pageNumber int) error {
	usable := f.src.PageSize()
	buf := make([]byte, usable)
	binary.BigEndian.PutUint32(buf[0:4], header.FreelistTrunk)
	binary.BigEndian.PutUint32(buf[4:8], 0)
	if err := f.src.WritePage(pageNumber, buf); err != nil {
		return err
	}
	header.FreelistTrunk = uint32(pageNumber)
	header.FreelistCount++
	return nil
}

// Pop removes and returns a page number from the freelist, or 0 if
// empty.
func (f *Freelist) Pop(header *FileHeader) (int, error) {
	if header.FreelistTrunk == 0 {
		return 0, nil
	}

	trunkNum := int(header.FreelistTrunk)
	trunk, err := f.src.GetPage(trunkNum)
	if err != nil {
		return 0, err
	}
	leafCount := binary.BigEndian.Uint32(trunk[4:8])

	if leafCount == 0 {
		next := binary.BigEndian.Uint32(trunk[0:4])
		header.FreelistTrunk = next
		header.FreelistCount--
		return trunkNum, nil
	}

	buf := make([]byte, len(trunk))
	copy(buf, trunk)
	off := 8 + int(leafCount-1)*4
	leaf := binary.BigEndian.Uint32(buf[off : off+4])
	binary.BigEndian.PutUint32(buf[4:8], leafCount-1)
	if err := f.src.WritePage(trunkNum, buf); err != nil {
		return 0, err
	}
	header.FreelistCount--
	return int(leaf), nil
}
