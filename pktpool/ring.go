// File: pktpool/ring.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity handle ring backing the pool free list. Occupancy is kept
// explicitly, so every slot is usable and full/empty need no spare slot.
// Not thread-safe; the pool is serialized by its caller.

package pktpool

import "github.com/momentics/hioload-pktq/pkt"

type handleRing struct {
	data [LenMax]pkt.Handle
	r    int // next slot to read
	n    int
}

// push appends h; returns false if full.
func (r *handleRing) push(h pkt.Handle) bool {
	if r.n == len(r.data) {
		return false
	}
	w := r.r + r.n
	if w >= len(r.data) {
		w -= len(r.data)
	}
	r.data[w] = h
	r.n++
	return true
}

// pop removes the oldest handle; ok==false if empty.
func (r *handleRing) pop() (h pkt.Handle, ok bool) {
	if r.n == 0 {
		return pkt.Nil, false
	}
	h = r.data[r.r]
	r.data[r.r] = pkt.Nil
	r.r++
	if r.r == len(r.data) {
		r.r = 0
	}
	r.n--
	return h, true
}

func (r *handleRing) len() int { return r.n }
