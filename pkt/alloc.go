// File: pkt/alloc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral packet buffer allocators. The page-backed allocator is
// selected per platform in alloc_linux.go, alloc_windows.go and alloc_other.go.

package pkt

import "github.com/momentics/hioload-pktq/api"

// HeapAllocator allocates buffers on the Go heap.
type HeapAllocator struct{}

// Alloc returns a zeroed heap buffer.
func (HeapAllocator) Alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Free is a no-op; the GC reclaims heap buffers.
func (HeapAllocator) Free([]byte) {}

// NewPageAllocator returns an allocator that maps every buffer from the OS
// directly, outside the Go heap. Falls back to HeapAllocator where the
// platform has no support.
func NewPageAllocator() api.Allocator {
	return newPageAllocator()
}
