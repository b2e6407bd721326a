package ringbuf

import "sync/atomic"

// BytePool is a fixed-capacity freelist of reusable byte slices, sized for
// SysEx bodies: the ring itself only ever holds small fixed structs, but a
// SysEx payload is variable-length and must not be allocated on the real-time
// path (spec.md §4.5). Get/Put are lock-free via a Treiber-stack style CAS
// loop over a preallocated slab.
type BytePool struct {
	slabSize int
	free     atomic.Pointer[poolNode]
}

type poolNode struct {
	buf  []byte
	next *poolNode
}

// NewBytePool preallocates count buffers of slabSize bytes each.
func NewBytePool(count, slabSize int) *BytePool {
	p := &BytePool{slabSize: slabSize}
	for i := 0; i < count; i++ {
		p.put(&poolNode{buf: make([]byte, 0, slabSize)})
	}
	return p
}

// Get returns a zero-length buffer with capacity slabSize, or a freshly
// allocated one if the pool is momentarily exhausted (overflow past the
// preallocated count is expected to be rare, not absent, under load).
func (p *BytePool) Get() []byte {
	for {
		n := p.free.Load()
		if n == nil {
			return make([]byte, 0, p.slabSize)
		}
		if p.free.CompareAndSwap(n, n.next) {
			return n.buf[:0]
		}
	}
}

// Put returns buf to the pool for reuse. Callers must not touch buf after
// calling Put.
func (p *BytePool) Put(buf []byte) {
	if cap(buf) < p.slabSize {
		return // undersized buffer from an overflow allocation; let GC take it
	}
	p.put(&poolNode{buf: buf})
}

func (p *BytePool) put(n *poolNode) {
	for {
		head := p.free.Load()
		n.next = head
		if p.free.CompareAndSwap(head, n) {
			return
		}
	}
}
