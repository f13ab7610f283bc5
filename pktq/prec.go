// File: pktq/prec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cross-lane operations: bitmap-restricted priority scans.

package pktq

import (
	"math/bits"

	"github.com/momentics/hioload-pktq/pkt"
)

// PrecBitmap selects a set of precedence lanes, bit i for lane i.
type PrecBitmap uint16

// AllPrec selects every lane.
const AllPrec PrecBitmap = 0xffff

// PrecBit returns the bitmap selecting only lane prec.
func PrecBit(prec int) PrecBitmap { return 1 << uint(prec) }

// Has reports whether lane prec is selected.
func (b PrecBitmap) Has(prec int) bool { return b&PrecBit(prec) != 0 }

// Count returns the number of selected lanes.
func (b PrecBitmap) Count() int { return bits.OnesCount16(uint16(b)) }

// DequeueMulti removes the head of the highest-precedence non-empty lane
// selected by bitmap. Lower lanes are served only when every selected higher
// lane is empty.
func (q *Queue) DequeueMulti(bitmap PrecBitmap) (pkt.Handle, int, bool) {
	prec := q.scanHigh(bitmap)
	if prec < 0 {
		return pkt.Nil, -1, false
	}
	h, _ := q.DequeueHead(prec)
	return h, prec, true
}

// PeekMulti returns what DequeueMulti would remove, without removing it.
func (q *Queue) PeekMulti(bitmap PrecBitmap) (pkt.Handle, int, bool) {
	prec := q.scanHigh(bitmap)
	if prec < 0 {
		return pkt.Nil, -1, false
	}
	return q.lanes[prec].head, prec, true
}

// Dequeue removes the head of the highest non-empty lane.
func (q *Queue) Dequeue() (pkt.Handle, int, bool) {
	return q.DequeueMulti(AllPrec)
}

// DequeueLowestTail removes the tail of the lowest non-empty lane: the most
// recent packet of the least important traffic.
func (q *Queue) DequeueLowestTail() (pkt.Handle, int, bool) {
	prec := q.LowestPrec()
	if prec < 0 {
		return pkt.Nil, -1, false
	}
	h, _ := q.DequeueTail(prec)
	return h, prec, true
}

// MLen returns the number of packets in the lanes selected by bitmap.
func (q *Queue) MLen(bitmap PrecBitmap) int {
	n := 0
	for prec := 0; prec < q.numPrec; prec++ {
		if bitmap.Has(prec) {
			n += q.lanes[prec].n
		}
	}
	return n
}

// HighestPrec returns the highest non-empty lane, or -1.
func (q *Queue) HighestPrec() int {
	return q.scanHigh(AllPrec)
}

// LowestPrec returns the lowest non-empty lane, or -1.
func (q *Queue) LowestPrec() int {
	if q.n == 0 {
		return -1
	}
	for prec := 0; prec < q.numPrec; prec++ {
		if q.lanes[prec].n > 0 {
			return prec
		}
	}
	return -1
}

// scanHigh walks lanes from the hiPrec hint downwards, lowering the hint past
// lanes found empty on the way.
func (q *Queue) scanHigh(bitmap PrecBitmap) int {
	if q.n == 0 {
		q.hiPrec = 0
		return -1
	}
	for q.hiPrec > 0 && q.lanes[q.hiPrec].n == 0 {
		q.hiPrec--
	}
	for prec := q.hiPrec; prec >= 0; prec-- {
		if bitmap.Has(prec) && q.lanes[prec].n > 0 {
			return prec
		}
	}
	return -1
}
