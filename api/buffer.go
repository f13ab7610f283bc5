// Package api
// Author: momentics
//
// Packet-lifetime and buffer memory contracts.
//
// The queue and the pool never interpret packet contents; they move handles.
// Everything that touches the bytes goes through PacketOps.

package api

// PacketOps is the packet-lifetime collaborator consumed by the queue and the
// pool. H is the handle type vended by the packet store.
type PacketOps[H comparable] interface {
	// Len returns the total data length of the packet.
	Len(h H) int

	// At returns the packet data starting at offset off.
	At(h H, off int) []byte

	// Dup copies the packet into a newly allocated handle.
	Dup(h H) (H, error)

	// Release returns the packet storage to the underlying allocator.
	// After Release, the handle must not be used.
	Release(h H) error
}

// Allocator abstracts the memory backing packet buffers.
type Allocator interface {
	// Alloc returns a buffer of exactly size bytes.
	Alloc(size int) ([]byte, error)

	// Free returns a buffer obtained from Alloc.
	Free(buf []byte)
}

// BufferPoolStats aggregates buffer allocation/reuse stats.
type BufferPoolStats struct {
	Gets          uint64
	GetFailures   uint64
	Frees         uint64
	AvailNotifies uint64
	EmptyNotifies uint64
	Allocated     uint64
	Released      uint64
}
