// File: pkt/arena.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Arena is the single owner of packet storage. Queues and pools hold handles
// into it and move packets between each other with Move, so a packet can never
// sit in two containers at once. Not thread-safe: callers serialize access
// together with the queue and pool operations that use the arena.

package pkt

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/api"
)

type slot struct {
	buf   []byte // full allocation; data is buf[:n]
	n     int
	gen   uint32
	owner Owner
	next  Handle // lane link
	tag   uint32
	pool  uint32 // id of the pool the buffer belongs to, 0 for none
}

// Arena is a fixed-capacity table of packet slots.
type Arena struct {
	slots []slot
	free  []uint32
	alloc api.Allocator
	live  int
}

var _ api.PacketOps[Handle] = (*Arena)(nil)

// NewArena creates an arena with room for capacity packets whose buffers are
// taken from alloc. A nil alloc selects HeapAllocator.
func NewArena(capacity int, alloc api.Allocator) *Arena {
	if capacity < 1 {
		capacity = 1
	}
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	a := &Arena{
		slots: make([]slot, capacity),
		free:  make([]uint32, capacity),
		alloc: alloc,
	}
	// pop from the end, hand out low indices first
	for i := range a.free {
		a.free[i] = uint32(capacity - 1 - i)
	}
	return a
}

// Cap returns the slot capacity of the arena.
func (a *Arena) Cap() int { return len(a.slots) }

// Live returns the number of allocated packets.
func (a *Arena) Live() int { return a.live }

// Alloc allocates a packet with a size-byte buffer. The new handle is in
// flight and owned by the caller.
func (a *Arena) Alloc(size int) (Handle, error) {
	if size < 0 {
		return Nil, errors.Wrapf(api.ErrInvalidArgument, "pkt: alloc size %d", size)
	}
	if len(a.free) == 0 {
		return Nil, errors.Wrapf(api.ErrOutOfMemory, "pkt: arena full (%d slots)", len(a.slots))
	}
	buf, err := a.alloc.Alloc(size)
	if err != nil {
		return Nil, errors.Wrapf(api.ErrOutOfMemory, "pkt: alloc %d bytes: %v", size, err)
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.buf = buf
	s.n = size
	s.owner = OwnerInFlight
	s.next = Nil
	s.tag = 0
	s.pool = 0
	a.live++
	return Handle{idx: idx, gen: s.gen}, nil
}

// Release frees the packet buffer and retires the handle. Only in-flight
// packets can be released.
func (a *Arena) Release(h Handle) error {
	s, err := a.owned(h, OwnerInFlight)
	if err != nil {
		return err
	}
	a.alloc.Free(s.buf)
	s.buf = nil
	s.n = 0
	s.owner = OwnerFree
	s.next = Nil
	s.pool = 0
	// bump so that h is stale from now on
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, h.idx)
	a.live--
	return nil
}

// Move transfers ownership of h from one container to another. It is the
// only way a packet changes hands.
func (a *Arena) Move(h Handle, from, to Owner) error {
	s, err := a.owned(h, from)
	if err != nil {
		return err
	}
	s.owner = to
	return nil
}

// Valid reports whether h refers to a live packet.
func (a *Arena) Valid(h Handle) bool {
	return a.slot(h) != nil
}

// Owner returns the current owner of h, OwnerFree for stale handles.
func (a *Arena) Owner(h Handle) Owner {
	if s := a.slot(h); s != nil {
		return s.owner
	}
	return OwnerFree
}

// Len returns the data length of the packet.
func (a *Arena) Len(h Handle) int {
	if s := a.slot(h); s != nil {
		return s.n
	}
	return 0
}

// BufLen returns the allocated buffer size of the packet.
func (a *Arena) BufLen(h Handle) int {
	if s := a.slot(h); s != nil {
		return len(s.buf)
	}
	return 0
}

// SetLen sets the data length, bounded by the buffer size.
func (a *Arena) SetLen(h Handle, n int) error {
	s := a.slot(h)
	if s == nil {
		return errors.Wrapf(api.ErrStaleHandle, "pkt: setlen %v", h)
	}
	if n < 0 || n > len(s.buf) {
		return errors.Wrapf(api.ErrInvalidArgument, "pkt: setlen %d > buffer %d", n, len(s.buf))
	}
	s.n = n
	return nil
}

// Bytes returns the packet data.
func (a *Arena) Bytes(h Handle) []byte {
	return a.At(h, 0)
}

// At returns the packet data starting at off.
func (a *Arena) At(h Handle, off int) []byte {
	s := a.slot(h)
	if s == nil || off < 0 || off > s.n {
		return nil
	}
	return s.buf[off:s.n]
}

// Dup copies the packet data into a new in-flight packet.
func (a *Arena) Dup(h Handle) (Handle, error) {
	s := a.slot(h)
	if s == nil {
		return Nil, errors.Wrapf(api.ErrStaleHandle, "pkt: dup %v", h)
	}
	d, err := a.Alloc(len(s.buf))
	if err != nil {
		return Nil, err
	}
	dst := &a.slots[d.idx]
	copy(dst.buf, s.buf[:s.n])
	dst.n = s.n
	dst.tag = s.tag
	return d, nil
}

// Tag returns the opaque per-packet tag.
func (a *Arena) Tag(h Handle) uint32 {
	if s := a.slot(h); s != nil {
		return s.tag
	}
	return 0
}

// SetTag sets the opaque per-packet tag used by flush filters.
func (a *Arena) SetTag(h Handle, tag uint32) {
	if s := a.slot(h); s != nil {
		s.tag = tag
	}
}

// PoolID returns the id of the pool h belongs to, 0 when it belongs to none.
// Membership outlives checkout: a buffer taken from a pool with Get still
// belongs to it.
func (a *Arena) PoolID(h Handle) uint32 {
	if s := a.slot(h); s != nil {
		return s.pool
	}
	return 0
}

// SetPoolID records pool membership of h.
func (a *Arena) SetPoolID(h Handle, id uint32) {
	if s := a.slot(h); s != nil {
		s.pool = id
	}
}

// Next returns the lane link of h.
func (a *Arena) Next(h Handle) Handle {
	if s := a.slot(h); s != nil {
		return s.next
	}
	return Nil
}

// SetNext sets the lane link of h.
func (a *Arena) SetNext(h, next Handle) {
	if s := a.slot(h); s != nil {
		s.next = next
	}
}

func (a *Arena) slot(h Handle) *slot {
	if h.IsNil() || int(h.idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.idx]
	if s.gen != h.gen || s.owner == OwnerFree {
		return nil
	}
	return s
}

func (a *Arena) owned(h Handle, want Owner) (*slot, error) {
	s := a.slot(h)
	if s == nil {
		return nil, errors.Wrapf(api.ErrStaleHandle, "pkt: %v", h)
	}
	if s.owner != want {
		return nil, errors.Wrapf(api.ErrWrongOwner, "pkt: %v is %v, want %v", h, s.owner, want)
	}
	return s, nil
}
