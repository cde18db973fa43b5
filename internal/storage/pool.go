package storage

import "sync"

// BufferPool is a Database-scoped pool of page-sized byte buffers.
// Scoping it to the Database rather than a package global keeps two
// Databases open in the same process (as the test suite routinely
// does) from contending over, or leaking size information into, one
// another's pool.
type BufferPool struct {
	pageSize int
	pool     sync.Pool
}

func NewBufferPool(pageSize int) *BufferPool {
	bp := &BufferPool{pageSize: pageSize}
	bp.pool.New = func() interface{} {
		return make([]byte, bp.pageSize)
	}
	return bp
}

func (p *BufferPool) Get() []byte {
	buf := p.pool.Get().([]byte)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

func (p *BufferPool) Put(buf []byte) {
	if len(buf) != p.pageSize {
		return
	}
	p.pool.Put(buf)
}
