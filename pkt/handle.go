// File: pkt/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Generation-checked packet handles and ownership states.

package pkt

import "fmt"

// Handle references one packet slot of an Arena. The generation makes a
// handle that outlived its packet detectable: once the slot is released and
// reused, the old handle no longer matches.
//
// The zero Handle is Nil; generations start at 1.
type Handle struct {
	idx uint32
	gen uint32
}

// Nil is the null packet handle returned by empty dequeues and pool gets.
var Nil Handle

// IsNil reports whether h is the null handle.
func (h Handle) IsNil() bool { return h.gen == 0 }

// Index returns the arena slot index of h.
func (h Handle) Index() int { return int(h.idx) }

func (h Handle) String() string {
	if h.IsNil() {
		return "pkt(nil)"
	}
	return fmt.Sprintf("pkt(%d.%d)", h.idx, h.gen)
}

// Owner names the single container that owns a packet at any instant.
type Owner uint8

const (
	// OwnerFree marks an unallocated slot.
	OwnerFree Owner = iota
	// OwnerInFlight is a packet held by a producer or consumer.
	OwnerInFlight
	// OwnerPooled is a packet sitting in a pool free ring.
	OwnerPooled
	// OwnerQueued is a packet linked into a precedence lane.
	OwnerQueued
)

func (o Owner) String() string {
	switch o {
	case OwnerFree:
		return "free"
	case OwnerInFlight:
		return "inflight"
	case OwnerPooled:
		return "pooled"
	case OwnerQueued:
		return "queued"
	default:
		return "unknown"
	}
}
