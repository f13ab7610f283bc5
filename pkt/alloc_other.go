//go:build !linux && !windows
// +build !linux,!windows

// File: pkt/alloc_other.go
// Author: momentics <momentics@gmail.com>
//
// Heap fallback for platforms without a page allocator.

package pkt

import "github.com/momentics/hioload-pktq/api"

func newPageAllocator() api.Allocator {
	return HeapAllocator{}
}
