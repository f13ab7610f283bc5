// File: pktq/queue.go
// Package pktq implements a bounded multi-precedence packet queue.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Queue holds up to MaxPrec precedence lanes. Each lane is a FIFO linked
// through the packet arena, bounded by its own max; the queue additionally
// enforces an aggregate max. No operation blocks and nothing is evicted
// implicitly: a full lane is reported with ErrFull and the caller decides
// whether to drop or sacrifice.
//
// The queue performs no locking. Callers sharing a Queue across goroutines
// must serialize every operation, together with the arena it uses.

package pktq

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/pkt"
)

const (
	// MaxPrec is the maximum number of precedence lanes.
	MaxPrec = 16
	// DefaultLaneMax is the conventional per-lane capacity.
	DefaultLaneMax = 128
	// LenMax bounds every lane and the aggregate length.
	LenMax = 65535
)

// Direction selects the walk order of a flush.
type Direction int

const (
	HeadToTail Direction = iota
	TailToHead
)

// Filter selects packets during a flush. A nil Filter selects all.
type Filter func(h pkt.Handle) bool

// ReleaseFunc receives every packet removed by a flush, in flight.
type ReleaseFunc func(h pkt.Handle)

type lane struct {
	head, tail pkt.Handle
	n, max     int
}

// Queue is a multi-precedence packet queue.
type Queue struct {
	arena   *pkt.Arena
	lanes   [MaxPrec]lane
	numPrec int
	// hiPrec is a scan hint: it is never below the highest non-empty lane.
	hiPrec int
	n, max int
	log    *Log
}

// New creates a queue over arena with numPrec lanes of maxLen packets each.
func New(arena *pkt.Arena, numPrec, maxLen int) (*Queue, error) {
	if arena == nil {
		return nil, errors.Wrap(api.ErrInvalidArgument, "pktq: nil arena")
	}
	q := &Queue{arena: arena}
	if err := q.Init(numPrec, maxLen); err != nil {
		return nil, err
	}
	return q, nil
}

// Init sets the lane count and the default capacity of every lane and of the
// whole queue. The queue must be empty.
func (q *Queue) Init(numPrec, maxLen int) error {
	if numPrec < 1 || numPrec > MaxPrec {
		return errors.Wrapf(api.ErrInvalidArgument, "pktq: num_prec %d not in [1, %d]", numPrec, MaxPrec)
	}
	if maxLen < 0 || maxLen > LenMax {
		return errors.Wrapf(api.ErrInvalidArgument, "pktq: max_len %d not in [0, %d]", maxLen, LenMax)
	}
	if q.n != 0 {
		return ErrNotEmpty
	}
	q.lanes = [MaxPrec]lane{}
	for prec := 0; prec < numPrec; prec++ {
		q.lanes[prec].max = maxLen
	}
	q.numPrec = numPrec
	q.hiPrec = 0
	q.max = maxLen
	return nil
}

// SetLaneMax changes the capacity of one lane. Packets already queued beyond
// the new max stay; further enqueues are refused until the lane drains.
func (q *Queue) SetLaneMax(prec, max int) error {
	if err := q.checkPrec(prec); err != nil {
		return err
	}
	if max < 0 || max > LenMax {
		return errors.Wrapf(api.ErrInvalidArgument, "pktq: lane max %d", max)
	}
	q.lanes[prec].max = max
	return nil
}

// SetMax changes the aggregate capacity.
func (q *Queue) SetMax(max int) error {
	if max < 0 || max > LenMax {
		return errors.Wrapf(api.ErrInvalidArgument, "pktq: max %d", max)
	}
	q.max = max
	return nil
}

// EnqueueTail appends h to lane prec. h must be in flight; on success it is
// owned by the queue.
func (q *Queue) EnqueueTail(prec int, h pkt.Handle) error {
	return q.enqueue(prec, h, false, true)
}

// EnqueueHead prepends h to lane prec.
func (q *Queue) EnqueueHead(prec int, h pkt.Handle) error {
	return q.enqueue(prec, h, true, true)
}

// Requeue puts a packet just dequeued from lane prec back at its head, e.g.
// when the device refused it. Unlike EnqueueHead it is not counted in the
// usage log: the packet was already requested and stored once.
func (q *Queue) Requeue(prec int, h pkt.Handle) error {
	return q.enqueue(prec, h, true, false)
}

func (q *Queue) enqueue(prec int, h pkt.Handle, atHead, counted bool) error {
	if err := q.checkPrec(prec); err != nil {
		return err
	}
	if !q.arena.Valid(h) {
		return errors.Wrapf(api.ErrStaleHandle, "pktq: enqueue %v", h)
	}
	if owner := q.arena.Owner(h); owner != pkt.OwnerInFlight {
		return errors.Wrapf(api.ErrWrongOwner, "pktq: enqueue %v: %v", h, owner)
	}
	if counted {
		q.count(prec, Requested)
	}
	l := &q.lanes[prec]
	if l.n >= l.max || q.n >= q.max {
		if counted {
			q.count(prec, FullDropped)
		}
		return ErrFull
	}
	if err := q.arena.Move(h, pkt.OwnerInFlight, pkt.OwnerQueued); err != nil {
		return errors.Wrap(err, "pktq: enqueue")
	}

	if atHead {
		q.arena.SetNext(h, l.head)
		if l.head.IsNil() {
			l.tail = h
		}
		l.head = h
	} else {
		q.arena.SetNext(h, pkt.Nil)
		if l.head.IsNil() {
			l.head = h
		} else {
			q.arena.SetNext(l.tail, h)
		}
		l.tail = h
	}
	l.n++
	q.n++
	if prec > q.hiPrec {
		q.hiPrec = prec
	}
	if counted && q.log != nil {
		q.log.stored(prec, l.n)
	}
	return nil
}

// DequeueHead removes the oldest packet of lane prec.
func (q *Queue) DequeueHead(prec int) (pkt.Handle, bool) {
	if q.checkPrec(prec) != nil {
		return pkt.Nil, false
	}
	p := q.lanes[prec].head
	if p.IsNil() {
		return pkt.Nil, false
	}
	q.unlink(prec, pkt.Nil, p)
	return p, true
}

// DequeueTail removes the newest packet of lane prec.
func (q *Queue) DequeueTail(prec int) (pkt.Handle, bool) {
	if q.checkPrec(prec) != nil {
		return pkt.Nil, false
	}
	l := &q.lanes[prec]
	if l.head.IsNil() {
		return pkt.Nil, false
	}
	prev := pkt.Nil
	for p := l.head; p != l.tail; p = q.arena.Next(p) {
		prev = p
	}
	p := l.tail
	q.unlink(prec, prev, p)
	return p, true
}

// DequeueBefore removes the packet immediately preceding next in lane prec.
// It reports false when next is the head or is not in the lane.
func (q *Queue) DequeueBefore(prec int, next pkt.Handle) (pkt.Handle, bool) {
	if q.checkPrec(prec) != nil || next.IsNil() {
		return pkt.Nil, false
	}
	prevprev, prev := pkt.Nil, pkt.Nil
	for p := q.lanes[prec].head; !p.IsNil(); p = q.arena.Next(p) {
		if p == next {
			if prev.IsNil() {
				return pkt.Nil, false
			}
			q.unlink(prec, prevprev, prev)
			return prev, true
		}
		prevprev, prev = prev, p
	}
	return pkt.Nil, false
}

// DequeueAfter removes the packet immediately following prev in lane prec.
func (q *Queue) DequeueAfter(prec int, prev pkt.Handle) (pkt.Handle, bool) {
	if !q.inLane(prec, prev) {
		return pkt.Nil, false
	}
	p := q.arena.Next(prev)
	if p.IsNil() {
		return pkt.Nil, false
	}
	q.unlink(prec, prev, p)
	return p, true
}

// Delete removes h from lane prec wherever it is. Other lanes are untouched.
func (q *Queue) Delete(h pkt.Handle, prec int) bool {
	if q.checkPrec(prec) != nil || h.IsNil() {
		return false
	}
	prev := pkt.Nil
	for p := q.lanes[prec].head; !p.IsNil(); p = q.arena.Next(p) {
		if p == h {
			q.unlink(prec, prev, p)
			return true
		}
		prev = p
	}
	return false
}

// PFlush removes every packet of lane prec selected by filter and hands it to
// release. It returns the number of packets removed.
func (q *Queue) PFlush(prec int, dir Direction, filter Filter, release ReleaseFunc) int {
	if release == nil {
		panic("pktq: flush without release func")
	}
	if q.checkPrec(prec) != nil {
		return 0
	}
	removed := 0
	if dir == TailToHead {
		var chain []pkt.Handle
		for p := q.lanes[prec].head; !p.IsNil(); p = q.arena.Next(p) {
			chain = append(chain, p)
		}
		// everything before i is still linked, so chain[i-1] is the predecessor
		for i := len(chain) - 1; i >= 0; i-- {
			p := chain[i]
			if filter != nil && !filter(p) {
				continue
			}
			prev := pkt.Nil
			if i > 0 {
				prev = chain[i-1]
			}
			q.unlink(prec, prev, p)
			release(p)
			removed++
		}
		return removed
	}

	prev := pkt.Nil
	for p := q.lanes[prec].head; !p.IsNil(); {
		next := q.arena.Next(p)
		if filter == nil || filter(p) {
			q.unlink(prec, prev, p)
			release(p)
			removed++
		} else {
			prev = p
		}
		p = next
	}
	return removed
}

// Flush runs PFlush over every lane, highest precedence first.
func (q *Queue) Flush(dir Direction, filter Filter, release ReleaseFunc) int {
	removed := 0
	for prec := range q.Precs() {
		removed += q.PFlush(prec, dir, filter, release)
	}
	return removed
}

// Precs iterates lane indices in canonical order, numPrec-1 down to 0.
func (q *Queue) Precs() iter.Seq[int] {
	return func(yield func(int) bool) {
		for prec := q.numPrec - 1; prec >= 0; prec-- {
			if !yield(prec) {
				return
			}
		}
	}
}

// Len returns the number of queued packets.
func (q *Queue) Len() int { return q.n }

// Max returns the aggregate capacity.
func (q *Queue) Max() int { return q.max }

// Avail returns how many more packets the aggregate capacity admits.
func (q *Queue) Avail() int {
	if q.n >= q.max {
		return 0
	}
	return q.max - q.n
}

// Full reports whether the aggregate capacity is reached.
func (q *Queue) Full() bool { return q.n >= q.max }

// Empty reports whether no packet is queued.
func (q *Queue) Empty() bool { return q.n == 0 }

// NumPrec returns the number of active lanes.
func (q *Queue) NumPrec() int { return q.numPrec }

// LaneLen returns the length of lane prec.
func (q *Queue) LaneLen(prec int) int {
	if q.checkPrec(prec) != nil {
		return 0
	}
	return q.lanes[prec].n
}

// LaneMax returns the capacity of lane prec.
func (q *Queue) LaneMax(prec int) int {
	if q.checkPrec(prec) != nil {
		return 0
	}
	return q.lanes[prec].max
}

// LaneAvail returns the free room of lane prec.
func (q *Queue) LaneAvail(prec int) int {
	if q.checkPrec(prec) != nil {
		return 0
	}
	l := q.lanes[prec]
	if l.n >= l.max {
		return 0
	}
	return l.max - l.n
}

// LaneFull reports whether lane prec is at capacity.
func (q *Queue) LaneFull(prec int) bool {
	if q.checkPrec(prec) != nil {
		return true
	}
	l := q.lanes[prec]
	return l.n >= l.max
}

// LaneEmpty reports whether lane prec holds no packet.
func (q *Queue) LaneEmpty(prec int) bool {
	return q.LaneLen(prec) == 0
}

// Peek returns the head of lane prec without removing it.
func (q *Queue) Peek(prec int) (pkt.Handle, bool) {
	if q.checkPrec(prec) != nil {
		return pkt.Nil, false
	}
	h := q.lanes[prec].head
	return h, !h.IsNil()
}

// PeekTail returns the tail of lane prec without removing it.
func (q *Queue) PeekTail(prec int) (pkt.Handle, bool) {
	if q.checkPrec(prec) != nil {
		return pkt.Nil, false
	}
	h := q.lanes[prec].tail
	return h, !h.IsNil()
}

func (q *Queue) checkPrec(prec int) error {
	if prec < 0 || prec >= q.numPrec {
		return errors.Wrapf(api.ErrInvalidArgument, "pktq: prec %d not in [0, %d)", prec, q.numPrec)
	}
	return nil
}

// inLane reports whether h is linked in lane prec.
func (q *Queue) inLane(prec int, h pkt.Handle) bool {
	if q.checkPrec(prec) != nil || h.IsNil() || q.arena.Owner(h) != pkt.OwnerQueued {
		return false
	}
	for p := q.lanes[prec].head; !p.IsNil(); p = q.arena.Next(p) {
		if p == h {
			return true
		}
	}
	return false
}

// unlink removes p, whose predecessor in lane prec is prev (Nil for the
// head), and hands it back in flight.
func (q *Queue) unlink(prec int, prev, p pkt.Handle) {
	l := &q.lanes[prec]
	next := q.arena.Next(p)
	if prev.IsNil() {
		l.head = next
	} else {
		q.arena.SetNext(prev, next)
	}
	if l.tail == p {
		l.tail = prev
	}
	q.arena.SetNext(p, pkt.Nil)
	l.n--
	q.n--
	if err := q.arena.Move(p, pkt.OwnerQueued, pkt.OwnerInFlight); err != nil {
		// a linked packet is always queued; anything else is arena corruption
		panic(err)
	}
}
