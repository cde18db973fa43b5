package storage

import (
	"io"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PageSource is the pluggable page I/O abstraction every b-tree
// operation is written against. Implementations range from a plain
// file to layered caching and copy-on-write overlays; callers never
// need to know which one is underneath.
type PageSource interface {
	PageSize() int
	PageCount() int

	// ReadPage copies page n into a caller-owned buffer.
	ReadPage(n int) ([]byte, error)

	// GetPage returns page n, possibly backed by the source's own
	// internal buffer (callers must not retain it past their next
	// source call unless the source is memory-backed, see
	// GetPageMemory).
	GetPage(n int) ([]byte, error)

	// GetPageMemory reports whether GetPage's result for n is safe to
	// retain indefinitely without copying (true only for sources whose
	// backing store is itself an in-process byte slice).
	GetPageMemory(n int) bool

	WritePage(n int, data []byte) error

	// Invalidate drops any cached copy of page n, forcing the next
	// read to go to the underlying store.
	Invalidate(n int)

	// DataVersion is a monotonic counter bumped every time committed
	// data visible through this source changes. Cursors compare it
	// against the value captured at open time to report staleness.
	DataVersion() uint64
}

// FileSource is a PageSource backed by an *os.File, grounded on the
// teacher's DbFile.
type FileSource struct {
	mu       sync.RWMutex
	file     *os.File
	pageSize int
	pages    int
	version  uint64
}

func OpenFileSource(path string, pageSize int) (*FileSource, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, WrapError(ErrIO, "open database file", err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, WrapError(ErrIO, "stat database file", err)
	}

	fs := &FileSource{file: f, pageSize: pageSize}
	if info.Size() > 0 {
		header := make([]byte, FileHeaderSize)
		if _, err := f.ReadAt(header, 0); err != nil {
			return nil, WrapError(ErrIO, "read file header", err)
		}
		h, err := ParseFileHeader(header)
		if err != nil {
			return nil, err
		}
		fs.pageSize = int(h.pageSizeOnDisk())
		fs.pages = int(h.PageCount)
	}
	return fs, nil
}

func (s *FileSource) PageSize() int { return s.pageSize }
func (s *FileSource) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages
}

func (s *FileSource) pageOffset(n int) int64 {
	return int64(n-1) * int64(s.pageSize)
}

func (s *FileSource) ReadPage(n int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make([]byte, s.pageSize)
	_, err := s.file.ReadAt(data, s.pageOffset(n))
	if err != nil && err != io.EOF {
		return nil, WrapError(ErrIO, "read page", err)
	}
	return data, nil
}

// GetPage on a file source is identical to ReadPage: there is no
// internal buffer to alias, so every call materializes a fresh copy.
func (s *FileSource) GetPage(n int) ([]byte, error) { return s.ReadPage(n) }

func (s *FileSource) GetPageMemory(n int) bool { return false }

func (s *FileSource) WritePage(n int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.WriteAt(data, s.pageOffset(n)); err != nil {
		return WrapError(ErrIO, "write page", err)
	}
	if n > s.pages {
		s.pages = n
	}
	s.version++
	return nil
}

func (s *FileSource) Invalidate(n int) {}

func (s *FileSource) DataVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *FileSource) Sync() error {
	return s.file.Sync()
}

func (s *FileSource) Close() error {
	return s.file.Close()
}

// MemorySource is a PageSource backed entirely by a growable byte
// slice, grounded on the teacher's MemoryFile. GetPage aliases the
// backing slice directly since callers of an in-memory database never
// outlive the process holding it.
type MemorySource struct {
	mu       sync.RWMutex
	pageSize int
	data     []byte
	version  uint64
}

func NewMemorySource(pageSize int) *MemorySource {
	return &MemorySource{pageSize: pageSize}
}

func (m *MemorySource) PageSize() int { return m.pageSize }
func (m *MemorySource) PageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data) / m.pageSize
}

func (m *MemorySource) ReadPage(n int) ([]byte, error) {
	b, err := m.GetPage(n)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (m *MemorySource) GetPage(n int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	offset := (n - 1) * m.pageSize
	if offset+m.pageSize > len(m.data) {
		return nil, NewError(ErrCorruptPage, "page does not exist")
	}
	return m.data[offset : offset+m.pageSize], nil
}

func (m *MemorySource) GetPageMemory(n int) bool { return true }

func (m *MemorySource) WritePage(n int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := (n - 1) * m.pageSize
	for offset+m.pageSize > len(m.data) {
		m.data = append(m.data, make([]byte, m.pageSize)...)
	}
	copy(m.data[offset:offset+m.pageSize], data)
	m.version++
	return nil
}

func (m *MemorySource) Invalidate(n int) {}

func (m *MemorySource) DataVersion() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// CachedSource layers an LRU page cache in front of another
// PageSource, coalescing concurrent cold-page reads for the same page
// number through a singleflight group so a cache stampede does not
// turn into N redundant disk reads.
type CachedSource struct {
	inner    PageSource
	capacity int

	mu    sync.Mutex
	cache map[int]*cacheEntry
	order *list
	group singleflight.Group
}

type cacheEntry struct {
	data []byte
	prev *cacheEntry
	next *cacheEntry
	key  int
}

// list is a tiny doubly-linked list used as the LRU ordering index.
// Implemented directly rather than pulling in container/list to keep
// cacheEntry itself part of the list nodes (avoids a second
// allocation per cached page).
type list struct {
	head *cacheEntry
	tail *cacheEntry
}

func (l *list) pushFront(e *cacheEntry) {
	e.prev, e.next = nil, l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

func (l *list) remove(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (l *list) moveToFront(e *cacheEntry) {
	if l.head == e {
		return
	}
	l.remove(e)
	l.pushFront(e)
}

func NewCachedSource(inner PageSource, capacity int) *CachedSource {
	return &CachedSource{
		inner:    inner,
		capacity: capacity,
		cache:    make(map[int]*cacheEntry),
		order:    &list{},
	}
}

func (c *CachedSource) PageSize() int  { return c.inner.PageSize() }
func (c *CachedSource) PageCount() int { return c.inner.PageCount() }

func (c *CachedSource) GetPage(n int) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.cache[n]; ok {
		c.order.moveToFront(e)
		c.mu.Unlock()
		return e.data, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(mapKey(n), func() (interface{}, error) {
		data, err := c.inner.ReadPage(n)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.rememberLocked(n, data)
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *CachedSource) ReadPage(n int) ([]byte, error) {
	data, err := c.GetPage(n)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (c *CachedSource) GetPageMemory(n int) bool { return true }

func (c *CachedSource) rememberLocked(n int, data []byte) {
	if e, ok := c.cache[n]; ok {
		e.data = data
		c.order.moveToFront(e)
		return
	}
	e := &cacheEntry{key: n, data: data}
	c.cache[n] = e
	c.order.pushFront(e)
	if len(c.cache) > c.capacity {
		lru := c.order.tail
		if lru != nil {
			c.order.remove(lru)
			delete(c.cache, lru.key)
		}
	}
}

func (c *CachedSource) WritePage(n int, data []byte) error {
	if err := c.inner.WritePage(n, data); err != nil {
		return err
	}
	c.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.rememberLocked(n, cp)
	c.mu.Unlock()
	return nil
}

func (c *CachedSource) Invalidate(n int) {
	c.mu.Lock()
	if e, ok := c.cache[n]; ok {
		c.order.remove(e)
		delete(c.cache, n)
	}
	c.mu.Unlock()
	c.inner.Invalidate(n)
}

func (c *CachedSource) DataVersion() uint64 { return c.inner.DataVersion() }

func mapKey(n int) string {
	// Short, allocation-light key space; page numbers never collide.
	buf := make([]byte, 0, 8)
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		tmp[i] = '-'
	}
	buf = append(buf, tmp[i:]...)
	return string(buf)
}

// ShadowSource is the copy-on-write overlay a Transaction writes
// through: reads fall through to base except for pages already
// shadowed, writes always land in the shadow map, and Commit/Discard
// either flushes or drops the overlay.
type ShadowSource struct {
	base    PageSource
	shadow  map[int][]byte
	version uint64
}

func NewShadowSource(base PageSource) *ShadowSource {
	return &ShadowSource{base: base, shadow: make(map[int][]byte)}
}

func (s *ShadowSource) PageSize() int { return s.base.PageSize() }
func (s *ShadowSource) PageCount() int {
	count := s.base.PageCount()
	for n := range s.shadow {
		if n > count {
			count = n
		}
	}
	return count
}

func (s *ShadowSource) GetPage(n int) ([]byte, error) {
	if data, ok := s.shadow[n]; ok {
		return data, nil
	}
	return s.base.GetPage(n)
}

func (s *ShadowSource) ReadPage(n int) ([]byte, error) {
	data, err := s.GetPage(n)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *ShadowSource) GetPageMemory(n int) bool { return true }

func (s *ShadowSource) WritePage(n int, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.shadow[n] = cp
	s.version++
	return nil
}

func (s *ShadowSource) Invalidate(n int) { delete(s.shadow, n) }

func (s *ShadowSource) DataVersion() uint64 { return s.base.DataVersion() + s.version }

// DirtyPages returns the page numbers currently overlaid, in
// ascending order, for the commit path to flush.
func (s *ShadowSource) DirtyPages() []int {
	out := make([]int, 0, len(s.shadow))
	for n := range s.shadow {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (s *ShadowSource) PageData(n int) []byte { return s.shadow[n] }

// Discard drops the overlay without touching base, for Rollback.
func (s *ShadowSource) Discard() {
	s.shadow = make(map[int][]byte)
}

// ProxySource forwards every call to an swappable underlying source,
// letting a Database hand out a stable PageSource value to long-lived
// Readers while the concrete source changes across checkpoints.
type ProxySource struct {
	mu     sync.RWMutex
	target PageSource
}

func NewProxySource(target PageSource) *ProxySource {
	return &ProxySource{target: target}
}

func (p *ProxySource) Swap(target PageSource) {
	p.mu.Lock()
	p.target = target
	p.mu.Unlock()
}

func (p *ProxySource) current() PageSource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

func (p *ProxySource) PageSize() int                { return p.current().PageSize() }
func (p *ProxySource) PageCount() int                { return p.current().PageCount() }
func (p *ProxySource) ReadPage(n int) ([]byte, error) { return p.current().ReadPage(n) }
func (p *ProxySource) GetPage(n int) ([]byte, error)  { return p.current().GetPage(n) }
func (p *ProxySource) GetPageMemory(n int) bool       { return p.current().GetPageMemory(n) }
func (p *ProxySource) WritePage(n int, data []byte) error {
	return p.current().WritePage(n, data)
}
func (p *ProxySource) Invalidate(n int)      { p.current().Invalidate(n) }
func (p *ProxySource) DataVersion() uint64   { return p.current().DataVersion() }

var (
	_ PageSource = (*FileSource)(nil)
	_ PageSource = (*MemorySource)(nil)
	_ PageSource = (*CachedSource)(nil)
	_ PageSource = (*ShadowSource)(nil)
	_ PageSource = (*ProxySource)(nil)
)
