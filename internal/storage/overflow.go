package storage

import "encoding/binary"

// ReadOverflow follows the singly-linked overflow chain starting at
// firstPage, appending each page's payload bytes (after its 4-byte
// next-page pointer) until remaining reaches zero. The read path is
// not subject to the one-page write cap: a record written by an
// earlier, more permissive version of this store (or ingested from
// elsewhere) may still chain across many pages, and scans must still
// be able to read it back.
func ReadOverflow(src PageSource, firstPage uint32, remaining int) ([]byte, error) {
	out := make([]byte, 0, remaining)
	usable := src.PageSize()
	page := firstPage
	seen := map[uint32]bool{}

	for remaining > 0 {
		if page == 0 {
			return nil, NewError(ErrCorruptPage, "overflow chain ended early")
		}
		if seen[page] {
			return nil, NewError(ErrCorruptPage, "overflow chain cycle")
		}
		seen[page] = true

		data, err := src.GetPage(int(page))
		if err != nil {
			return nil, err
		}
		next := binary.BigEndian.Uint32(data[0:4])
		chunk := usable - 4
		if chunk > remaining {
			chunk = remaining
		}
		out = append(out, data[4:4+chunk]...)
		remaining -= chunk
		page = next
	}
	return out, nil
}

// WriteOverflow writes tail into overflow pages starting at page
// firstPage (caller-allocated via the freelist or a fresh page
// number), capped at a single page per spec.md §4.3's write budget:
// any tail that would require a second overflow page is rejected with
// ErrOverflowLimit rather than silently chaining.
func WriteOverflow(src PageSource, firstPage uint32, tail []byte) error {
	usable := src.PageSize()
	capacity := usable - 4
	if len(tail) > capacity {
		return NewError(ErrOverflowLimit, "record exceeds the single overflow page budget")
	}

	buf := make([]byte, usable)
	binary.BigEndian.PutUint32(buf[0:4], 0) // no further chaining
	copy(buf[4:], tail)
	return src.WritePage(int(firstPage), buf)
}
