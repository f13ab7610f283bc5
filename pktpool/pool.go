// File: pktpool/pool.go
// Package pktpool implements a fixed-capacity pool of preallocated packet
// buffers with edge-triggered availability notification.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Pool owns up to LenMax packets of one buffer size, allocated from a
// pkt.Arena. Get and Free move packets between the pool free ring and the
// caller in O(1). Two callback classes report supply transitions:
//
//   - empty: a Get found nothing; fired once per exhaustion
//   - avail: the next buffer came back after an exhaustion; fired once
//
// The pool performs no locking. Callers sharing a Pool across goroutines must
// serialize every operation, together with the arena it uses.

package pktpool

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/internal/log"
	"github.com/momentics/hioload-pktq/pkt"
)

// LenMax is the maximum number of buffers a pool can own.
const LenMax = 40

// lastID numbers pools so a buffer records which pool it belongs to.
var lastID atomic.Uint32

// Pool is a preallocated packet buffer pool.
type Pool struct {
	id      uint32
	arena   *pkt.Arena
	ring    handleRing
	members map[pkt.Handle]struct{}

	inited bool
	size   int // buffers owned: available + checked out
	maxlen int
	plen   int
	istx   bool

	// empty is latched by a failed Get and cleared when a buffer returns.
	empty bool
	// trim releases returning buffers while size exceeds maxlen.
	trim       bool
	emptyCBOff bool

	avail   availRegistry
	emptyCB emptyRegistry
	stats   api.BufferPoolStats
}

// New creates an uninitialized pool drawing packets from arena.
func New(arena *pkt.Arena) *Pool {
	return &Pool{arena: arena, id: lastID.Add(1)}
}

// Init allocates targetLen buffers of bufLen bytes and sets the admission
// ceiling to targetLen. targetLen is clamped to LenMax. When any allocation
// fails every buffer allocated so far is released and the pool stays
// uninitialized.
func (p *Pool) Init(targetLen, bufLen int, isTx bool) error {
	if p.inited {
		return errors.Wrap(api.ErrAlreadyExists, "pktpool: already initialized")
	}
	if p.arena == nil || targetLen < 0 || bufLen <= 0 {
		return errors.Wrapf(api.ErrInvalidArgument, "pktpool: init len %d buflen %d", targetLen, bufLen)
	}
	if targetLen > LenMax {
		log.Warningf("pktpool: init len %d clamped to %d", targetLen, LenMax)
		targetLen = LenMax
	}

	got := make([]pkt.Handle, 0, targetLen)
	for len(got) < targetLen {
		h, err := p.arena.Alloc(bufLen)
		if err != nil {
			for _, h := range got {
				_ = p.arena.Release(h)
			}
			log.Errorf("pktpool: init failed after %d/%d buffers: %v", len(got), targetLen, err)
			return errors.Wrapf(err, "pktpool: init %d buffers", targetLen)
		}
		got = append(got, h)
	}

	p.members = make(map[pkt.Handle]struct{}, LenMax)
	p.plen = bufLen
	p.istx = isTx
	p.maxlen = targetLen
	for _, h := range got {
		p.admit(h)
	}
	p.stats.Allocated += uint64(len(got))
	p.inited = true
	return nil
}

// Deinit releases every buffer held by the pool. Buffers checked out at
// this point are no longer accepted back; their holders release them to the
// arena themselves.
func (p *Pool) Deinit() error {
	if !p.inited {
		return errors.Wrap(api.ErrNotInitialized, "pktpool: deinit")
	}
	for {
		h, ok := p.ring.pop()
		if !ok {
			break
		}
		p.release(h)
	}
	if p.size > 0 {
		log.Warningf("pktpool: deinit with %d buffers still checked out", p.size)
		// their holders own them outright from now on
		for h := range p.members {
			p.arena.SetPoolID(h, 0)
		}
	}
	*p = Pool{arena: p.arena, id: p.id}
	return nil
}

// Fill allocates buffers until the pool owns maxlen of them, or a quarter of
// maxlen (at least one) when minimal is set. It returns the number added; a
// short count under memory pressure is not an error.
func (p *Pool) Fill(minimal bool) (int, error) {
	if !p.inited {
		return 0, errors.Wrap(api.ErrNotInitialized, "pktpool: fill")
	}
	target := p.maxlen
	if minimal {
		target = p.maxlen / 4
		if target == 0 && p.maxlen > 0 {
			target = 1
		}
	}
	added := 0
	for p.size < target {
		h, err := p.arena.Alloc(p.plen)
		if err != nil {
			if log.V(1) {
				log.Infof("pktpool: fill stopped at %d/%d: %v", p.size, target, err)
			}
			break
		}
		p.admit(h)
		added++
	}
	p.stats.Allocated += uint64(added)
	if added > 0 {
		p.replenished()
	}
	return added, nil
}

// Get checks a buffer out of the pool. It reports false when none is
// available. The first failing Get after the pool had buffers fires the empty
// callbacks, then retries once in case a callback returned buffers.
func (p *Pool) Get() (pkt.Handle, bool) {
	if !p.inited {
		return pkt.Nil, false
	}
	if h, ok := p.take(); ok {
		return h, true
	}
	if !p.empty {
		p.empty = true
		if !p.emptyCBOff && p.emptyCB.n > 0 {
			p.stats.EmptyNotifies++
			p.emptyCB.notify(p)
			if h, ok := p.take(); ok {
				return h, true
			}
		}
	}
	p.stats.GetFailures++
	return pkt.Nil, false
}

// Free returns a buffer obtained from Get. If the pool was exhausted, the
// availability callbacks fire.
func (p *Pool) Free(h pkt.Handle) error {
	if !p.inited {
		return errors.Wrapf(api.ErrBufferPoolClosed, "pktpool: free %v", h)
	}
	if _, ok := p.members[h]; !ok {
		return errors.Wrapf(api.ErrWrongOwner, "pktpool: %v does not belong to this pool", h)
	}
	if p.arena.Owner(h) != pkt.OwnerInFlight {
		return errors.Wrapf(api.ErrWrongOwner, "pktpool: free %v: %v", h, p.arena.Owner(h))
	}
	p.stats.Frees++

	if p.trim && p.size > p.maxlen {
		delete(p.members, h)
		p.size--
		_ = p.arena.Release(h)
		p.stats.Released++
		if p.size <= p.maxlen {
			p.trim = false
		}
		return nil
	}

	if err := p.arena.Move(h, pkt.OwnerInFlight, pkt.OwnerPooled); err != nil {
		return errors.Wrap(err, "pktpool: free")
	}
	p.ring.push(h)
	p.replenished()
	return nil
}

// Add admits an externally allocated in-flight buffer, e.g. after raising
// maxlen. The buffer must be at least BufLen bytes.
func (p *Pool) Add(h pkt.Handle) error {
	if !p.inited {
		return errors.Wrap(api.ErrNotInitialized, "pktpool: add")
	}
	if _, ok := p.members[h]; ok {
		return errors.Wrapf(api.ErrAlreadyExists, "pktpool: add %v", h)
	}
	if p.arena.Owner(h) != pkt.OwnerInFlight {
		return errors.Wrapf(api.ErrWrongOwner, "pktpool: add %v: %v", h, p.arena.Owner(h))
	}
	if id := p.arena.PoolID(h); id != 0 {
		return errors.Wrapf(api.ErrWrongOwner, "pktpool: add %v: belongs to pool %d", h, id)
	}
	if p.arena.BufLen(h) < p.plen {
		return errors.Wrapf(api.ErrInvalidArgument, "pktpool: add %v: buffer %d < %d", h, p.arena.BufLen(h), p.plen)
	}
	if p.size >= p.maxlen {
		return errors.Wrapf(api.ErrResourceExhausted, "pktpool: add: pool at maxlen %d", p.maxlen)
	}
	p.admit(h)
	p.replenished()
	return nil
}

// AvailRegister adds a shared availability callback.
func (p *Pool) AvailRegister(cb Callback) error {
	return p.avail.register(cb)
}

// EmptyRegister adds an empty callback.
func (p *Pool) EmptyRegister(cb Callback) error {
	return p.emptyCB.register(cb)
}

// AvailNotifyNormal leaves exclusive mode and, if buffers are available,
// runs a fan-out pass over the shared callbacks now.
func (p *Pool) AvailNotifyNormal() {
	p.avail.setShared()
	if p.ring.len() > 0 {
		p.notifyAvail()
	}
}

// AvailNotifyExclusive makes cb the only receiver of availability
// notifications until AvailNotifyNormal and, if buffers are available,
// notifies it now.
func (p *Pool) AvailNotifyExclusive(cb Callback) error {
	if cb == nil {
		return errors.Wrap(api.ErrInvalidArgument, "pktpool: nil exclusive callback")
	}
	p.avail.setExclusive(cb)
	if p.ring.len() > 0 {
		p.notifyAvail()
	}
	return nil
}

// SetMaxLen changes the admission ceiling. Buffers already owned are kept;
// only future growth by Fill and Add is constrained.
func (p *Pool) SetMaxLen(n int) error {
	if err := p.checkMaxLen(n); err != nil {
		return err
	}
	p.maxlen = n
	p.trim = false
	return nil
}

// SetMaxLenStrict changes the admission ceiling and releases available
// buffers until the pool owns at most n. Buffers still checked out are
// released when they come back.
func (p *Pool) SetMaxLenStrict(n int) error {
	if err := p.checkMaxLen(n); err != nil {
		return err
	}
	p.maxlen = n
	for p.size > p.maxlen {
		h, ok := p.ring.pop()
		if !ok {
			break
		}
		p.release(h)
	}
	p.trim = p.size > p.maxlen
	if p.trim {
		log.Infof("pktpool: maxlen %d, %d checked-out buffers to trim", n, p.size-n)
	}
	return nil
}

// EmptyCBDisable suppresses (or restores) empty notifications.
func (p *Pool) EmptyCBDisable(disable bool) { p.emptyCBOff = disable }

// EmptyCBDisabled reports whether empty notifications are suppressed.
func (p *Pool) EmptyCBDisabled() bool { return p.emptyCBOff }

// Avail returns the number of buffers ready to be checked out.
func (p *Pool) Avail() int { return p.ring.len() }

// Len returns the number of buffers the pool owns, checked out or not.
func (p *Pool) Len() int { return p.size }

// Outstanding returns the number of buffers currently checked out.
func (p *Pool) Outstanding() int { return p.size - p.ring.len() }

// MaxLen returns the admission ceiling.
func (p *Pool) MaxLen() int { return p.maxlen }

// BufLen returns the size of every buffer of the pool.
func (p *Pool) BufLen() int { return p.plen }

// IsTx reports the direction hint given at Init.
func (p *Pool) IsTx() bool { return p.istx }

// Inited reports whether the pool is initialized.
func (p *Pool) Inited() bool { return p.inited }

// Empty reports whether the pool is in the exhausted state: a Get has failed
// and no buffer has come back since.
func (p *Pool) Empty() bool { return p.empty }

// Stats returns the pool counters.
func (p *Pool) Stats() api.BufferPoolStats { return p.stats }

func (p *Pool) String() string {
	return fmt.Sprintf("pktpool{inited:%v len:%d avail:%d maxlen:%d plen:%d tx:%v empty:%v}",
		p.inited, p.size, p.ring.len(), p.maxlen, p.plen, p.istx, p.empty)
}

func (p *Pool) checkMaxLen(n int) error {
	if !p.inited {
		return errors.Wrap(api.ErrNotInitialized, "pktpool: setmaxlen")
	}
	if n < 0 || n > LenMax {
		return errors.Wrapf(api.ErrInvalidArgument, "pktpool: maxlen %d not in [0, %d]", n, LenMax)
	}
	return nil
}

// admit takes ownership of an in-flight packet into the free ring.
func (p *Pool) admit(h pkt.Handle) {
	if err := p.arena.Move(h, pkt.OwnerInFlight, pkt.OwnerPooled); err != nil {
		panic(err)
	}
	p.ring.push(h)
	p.members[h] = struct{}{}
	p.arena.SetPoolID(h, p.id)
	p.size++
}

// release frees a pooled packet back to the arena.
func (p *Pool) release(h pkt.Handle) {
	if err := p.arena.Move(h, pkt.OwnerPooled, pkt.OwnerInFlight); err != nil {
		panic(err)
	}
	p.arena.SetPoolID(h, 0)
	_ = p.arena.Release(h)
	delete(p.members, h)
	p.size--
	p.stats.Released++
}

func (p *Pool) take() (pkt.Handle, bool) {
	h, ok := p.ring.pop()
	if !ok {
		return pkt.Nil, false
	}
	if err := p.arena.Move(h, pkt.OwnerPooled, pkt.OwnerInFlight); err != nil {
		panic(err)
	}
	p.stats.Gets++
	return h, true
}

// replenished fires the availability callbacks on the exhausted→available
// edge.
func (p *Pool) replenished() {
	if p.empty && p.ring.len() > 0 {
		p.empty = false
		p.notifyAvail()
	}
}

func (p *Pool) notifyAvail() {
	if p.avail.notify(p) > 0 {
		p.stats.AvailNotifies++
	}
}
