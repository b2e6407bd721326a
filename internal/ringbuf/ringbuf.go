// Package ringbuf implements the lock-free single-producer/single-consumer
// handoff between the OS MIDI ingress thread and the host broadcaster
// (spec.md §4.5). Capacity is fixed at construction and must be a power of
// two; Push/Pop never block and never allocate.
package ringbuf

import "sync/atomic"

// DefaultCapacity is the ring's default message capacity.
const DefaultCapacity = 1024

// Ring is a bounded SPSC queue of wire.MidiMessage-shaped slots. Exactly
// one goroutine may call Push; exactly one (a different) goroutine may
// call Pop. Any other usage pattern is undefined.
type Ring[T any] struct {
	mask  uint64
	slots []T

	// writeIdx is published by the producer with a release store and
	// observed by the consumer with an acquire load; readIdx the reverse.
	// Using atomic.Uint64 gives Go's memory model the happens-before edge
	// spec.md §4.5 calls for without a mutex.
	writeIdx atomic.Uint64
	readIdx  atomic.Uint64

	overflow atomic.Uint64
}

// New returns a Ring with the given capacity, rounded up to the next
// power of two (minimum 2).
func New[T any](capacity int) *Ring[T] {
	capacity = nextPowerOfTwo(capacity)
	return &Ring[T]{
		mask:  uint64(capacity - 1),
		slots: make([]T, capacity),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Push appends v to the ring. It returns false (without blocking) if the
// ring is full; the caller is expected to bump an overflow counter via
// Overflows, which Push also does internally so callers needn't duplicate
// the bookkeeping.
func (r *Ring[T]) Push(v T) bool {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	if w-rd >= uint64(len(r.slots)) {
		r.overflow.Add(1)
		return false
	}
	r.slots[w&r.mask] = v
	r.writeIdx.Store(w + 1) // release: publishes the slot write above
	return true
}

// Pop removes and returns the oldest value. ok is false if the ring was
// empty.
func (r *Ring[T]) Pop() (v T, ok bool) {
	rd := r.readIdx.Load()
	w := r.writeIdx.Load() // acquire: synchronizes with Push's release store
	if rd == w {
		return v, false
	}
	v = r.slots[rd&r.mask]
	var zero T
	r.slots[rd&r.mask] = zero // drop the reference so GC can reclaim it
	r.readIdx.Store(rd + 1)
	return v, true
}

// Len reports the number of values currently queued. Approximate under
// concurrent use by design; intended for status reporting only.
func (r *Ring[T]) Len() int {
	return int(r.writeIdx.Load() - r.readIdx.Load())
}

// Overflows reports the cumulative count of Push calls that found the
// ring full.
func (r *Ring[T]) Overflows() uint64 {
	return r.overflow.Load()
}

// Pushed reports the cumulative count of successful Push calls, for
// computing an overflow rate alongside Overflows.
func (r *Ring[T]) Pushed() uint64 {
	return r.writeIdx.Load()
}
