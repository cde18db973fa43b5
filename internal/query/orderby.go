package query

import "container/heap"

// Row is one materialized result row: one value per output column (as
// returned by a Reader or an aggregate's Result) plus the rowid it
// came from, produced by the executor once a row has passed its filter
// and projection.
type Row struct {
	RowID  int64
	Values []interface{}
}

// SortKey extracts the ORDER BY key columns from a Row; Less compares
// two keys honoring each column's ascending/descending direction.
type SortKey struct {
	Parts []interface{}
	Desc  []bool
}

// boundedHeap is a max-heap (by "worst so far") capped at limit
// entries, used to implement ORDER BY ... LIMIT n without sorting the
// full result set: only the k best rows are ever retained in memory.
type boundedHeap struct {
	rows  []Row
	keys  []SortKey
	limit int
}

func (h *boundedHeap) Len() int { return len(h.rows) }
func (h *boundedHeap) Less(i, j int) bool {
	// Max-heap on "worse than": the root is the worst row currently
	// kept, so a new better row can evict it in O(log k).
	return lessKey(h.keys[j], h.keys[i])
}
func (h *boundedHeap) Swap(i, j int) {
	h.rows[i], h.rows[j] = h.rows[j], h.rows[i]
	h.keys[i], h.keys[j] = h.keys[j], h.keys[i]
}
func (h *boundedHeap) Push(x interface{}) {
	e := x.(rowWithKey)
	h.rows = append(h.rows, e.row)
	h.keys = append(h.keys, e.key)
}
func (h *boundedHeap) Pop() interface{} {
	n := len(h.rows)
	r, k := h.rows[n-1], h.keys[n-1]
	h.rows = h.rows[:n-1]
	h.keys = h.keys[:n-1]
	return rowWithKey{r, k}
}

type rowWithKey struct {
	row Row
	key SortKey
}

func lessKey(a, b SortKey) bool {
	for i := range a.Parts {
		c := compareAny(a.Parts[i], b.Parts[i])
		if c == 0 {
			continue
		}
		if i < len(a.Desc) && a.Desc[i] {
			return c > 0
		}
		return c < 0
	}
	return false
}

func compareAny(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	return 0
}

// TopK streams rows through a k-bounded heap and returns them sorted,
// avoiding an O(n log n) sort of the entire input when limit is much
// smaller than the row count.
func TopK(rows []Row, keys []SortKey, limit int) []Row {
	c := NewTopKCollector(limit)
	for i, r := range rows {
		c.Add(r, keys[i])
	}
	return c.Result()
}

// TopKCollector is TopK's incremental counterpart: a caller streaming
// rows one at a time (e.g. straight off a cursor) feeds each one to
// Add instead of building a full []Row/[]SortKey pair up front, so
// ORDER BY ... LIMIT k keeps only O(k) rows in memory regardless of
// how many rows the scan produces. A non-positive limit means "no
// bound", which degrades to keeping every row — an unbounded ORDER BY
// has to see the whole matching set before it can know the final
// order, so there is no k to bound memory by.
type TopKCollector struct {
	h       *boundedHeap
	limit   int
	all     []Row
	allKeys []SortKey
}

func NewTopKCollector(limit int) *TopKCollector {
	return &TopKCollector{h: &boundedHeap{}, limit: limit}
}

func (c *TopKCollector) Add(row Row, key SortKey) {
	if c.limit <= 0 {
		c.all = append(c.all, row)
		c.allKeys = append(c.allKeys, key)
		return
	}
	if c.h.Len() < c.limit {
		heap.Push(c.h, rowWithKey{row, key})
		return
	}
	if lessKey(key, c.h.keys[0]) {
		heap.Pop(c.h)
		heap.Push(c.h, rowWithKey{row, key})
	}
}

// Result drains the collector into rows ordered by key, honoring each
// column's ascending/descending direction.
func (c *TopKCollector) Result() []Row {
	if c.limit <= 0 {
		h := &boundedHeap{limit: len(c.all)}
		heap.Init(h)
		for i, row := range c.all {
			heap.Push(h, rowWithKey{row, c.allKeys[i]})
		}
		out := make([]Row, h.Len())
		for i := len(out) - 1; i >= 0; i-- {
			out[i] = heap.Pop(h).(rowWithKey).row
		}
		return out
	}
	out := make([]Row, c.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(c.h).(rowWithKey).row
	}
	return out
}
