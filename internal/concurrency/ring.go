// File: internal/concurrency/ring.go
// Package concurrency implements the lock-free descriptor ring that stands
// in for a device transmit ring.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DescRing is a bounded circular buffer with atomic head/tail, padded to
// prevent false sharing. One goroutine posts (the transmit path, under its
// lock) and one goroutine reaps (the device); that is the only supported
// mode.

package concurrency

import (
	"sync/atomic"

	"github.com/momentics/hioload-pktq/api"
)

var _ api.Ring[int] = (*DescRing[int])(nil)

// DescRing is a single-producer, single-consumer ring.
type DescRing[T any] struct {
	data []T
	mask uint64
	head atomic.Uint64 // next slot the consumer reaps
	_    [56]byte
	tail atomic.Uint64 // next slot the producer posts
	_    [56]byte
}

// NewDescRing allocates a ring of at least size slots, rounded up to a
// power of two.
func NewDescRing[T any](size int) *DescRing[T] {
	n := 1
	for n < size {
		n <<= 1
	}
	return &DescRing[T]{
		data: make([]T, n),
		mask: uint64(n - 1),
	}
}

// Enqueue posts item; returns false if the ring is full.
func (r *DescRing[T]) Enqueue(item T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.data)) {
		return false
	}
	r.data[tail&r.mask] = item
	r.tail.Store(tail + 1)
	return true
}

// Dequeue reaps the oldest posted item; ok is false if the ring is empty.
func (r *DescRing[T]) Dequeue() (T, bool) {
	var zero T
	head := r.head.Load()
	if head >= r.tail.Load() {
		return zero, false
	}
	i := head & r.mask
	item := r.data[i]
	r.data[i] = zero
	r.head.Store(head + 1)
	return item, true
}

// Len returns the number of posted, unreaped items.
func (r *DescRing[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the number of slots.
func (r *DescRing[T]) Cap() int {
	return len(r.data)
}

// Free returns the number of slots available to the producer.
func (r *DescRing[T]) Free() int {
	return len(r.data) - r.Len()
}
