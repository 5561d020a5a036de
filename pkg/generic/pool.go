package generic

import "sync"

// Pool is a typed wrapper around sync.Pool.
type Pool[T any] struct {
	pool sync.Pool
}

func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	p.pool.Put(value)
}

// Buffer is a reusable byte slice. It is pooled by pointer so that Put does
// not allocate.
type Buffer struct {
	B []byte
}

// BufferPool hands out buffers and refuses to retain any that grew past max.
type BufferPool struct {
	pool *Pool[*Buffer]
	max  int
}

func NewBufferPool(initial, max int) *BufferPool {
	return &BufferPool{
		pool: NewPool(func() *Buffer { return &Buffer{B: make([]byte, 0, initial)} }),
		max:  max,
	}
}

// Get returns a buffer of length n.
func (p *BufferPool) Get(n int) *Buffer {
	buf := p.pool.Get()
	if cap(buf.B) < n {
		buf.B = make([]byte, n)
	}
	buf.B = buf.B[:n]
	return buf
}

func (p *BufferPool) Put(buf *Buffer) {
	if buf == nil || cap(buf.B) > p.max {
		return
	}
	buf.B = buf.B[:0]
	p.pool.Put(buf)
}
