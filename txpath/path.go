// File: txpath/path.go
// Package txpath composes a packet pool, a precedence queue and a device
// ring into the transmit path of a driver.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Packets flow pool → queue → device → pool:
//
//	Send      pool.Get, copy payload, enqueue at the packet's precedence
//	Service   move queued packets to the device, highest precedence first
//	Complete  the device is done with a packet; its buffer returns to the pool
//
// A packet the device refuses to take goes back to the head of its lane.
// Packets the device reports as undelivered (Retry) wait in a bounded
// backlog that Service drains before touching the queue again.
//
// Path serializes every call with one mutex; the pool and queue it owns must
// not be used directly while it is running, except under Locker.

package txpath

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/internal/log"
	"github.com/momentics/hioload-pktq/pkt"
	"github.com/momentics/hioload-pktq/pktpool"
	"github.com/momentics/hioload-pktq/pktq"
)

// DefaultBacklog is the retry backlog bound used when Options leaves it zero.
const DefaultBacklog = 64

// Options tunes a Path.
type Options struct {
	// Policy decides admission on a full lane; nil means DropNew.
	Policy Policy
	// Bitmap selects the lanes Service drains; zero means every lane.
	Bitmap pktq.PrecBitmap
	// Backlog bounds the number of packets waiting to be retried.
	Backlog int
}

// Limits are the capacities Reconfigure applies.
type Limits struct {
	LaneMax  int
	QueueMax int
	PoolLen  int
	Bitmap   pktq.PrecBitmap
}

// Stats counts path-level events. Per-lane detail lives in the queue log.
type Stats struct {
	Sent       uint64
	NoBuffer   uint64
	Dropped    uint64
	Sacrificed uint64
	Posted     uint64
	Busy       uint64
	Retried    uint64
	Completed  uint64
	Resumes    uint64
	Throttled  bool
}

type pending struct {
	h    pkt.Handle
	prec int
}

// Path is a transmit path.
type Path struct {
	mu sync.Mutex

	arena  *pkt.Arena
	pool   *pktpool.Pool
	q      *pktq.Queue
	dev    api.Ring[pkt.Handle]
	policy Policy
	bitmap pktq.PrecBitmap

	backlog    *queue.Queue
	backlogMax int

	throttled bool
	resumed   chan struct{}
	stats     Stats
}

// New builds a path over an initialized pool and queue sharing arena, and
// registers for the pool's availability notifications.
func New(arena *pkt.Arena, pool *pktpool.Pool, q *pktq.Queue, dev api.Ring[pkt.Handle], opts Options) (*Path, error) {
	if arena == nil || pool == nil || q == nil || dev == nil {
		return nil, errors.Wrap(api.ErrInvalidArgument, "txpath: missing component")
	}
	if !pool.Inited() {
		return nil, errors.Wrap(api.ErrNotInitialized, "txpath: pool")
	}
	p := &Path{
		arena:      arena,
		pool:       pool,
		q:          q,
		dev:        dev,
		policy:     opts.Policy,
		bitmap:     opts.Bitmap,
		backlog:    queue.New(),
		backlogMax: opts.Backlog,
		resumed:    make(chan struct{}, 1),
	}
	if p.policy == nil {
		p.policy = DropNew{}
	}
	if p.bitmap == 0 {
		p.bitmap = pktq.AllPrec
	}
	if p.backlogMax <= 0 {
		p.backlogMax = DefaultBacklog
	}
	if err := pool.AvailRegister(p.resume); err != nil {
		return nil, errors.Wrap(err, "txpath: register avail callback")
	}
	return p, nil
}

// Send copies payload into a pool buffer and queues it at lane prec.
func (p *Path) Send(prec int, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prec < 0 || prec >= p.q.NumPrec() {
		return errors.Wrapf(api.ErrInvalidArgument, "txpath: prec %d", prec)
	}
	if len(payload) > p.pool.BufLen() {
		return errors.Wrapf(api.ErrInvalidArgument, "txpath: payload %d > buffer %d", len(payload), p.pool.BufLen())
	}
	h, ok := p.pool.Get()
	if !ok {
		if !p.throttled && bool(log.V(1)) {
			log.Infof("txpath: pool empty, throttling")
		}
		p.throttled = true
		p.stats.NoBuffer++
		return ErrNoBuffer
	}
	if err := p.arena.SetLen(h, len(payload)); err != nil {
		p.free(h)
		return err
	}
	copy(p.arena.Bytes(h), payload)
	p.arena.SetTag(h, uint32(prec))

	if err := p.admit(prec, h); err != nil {
		return err
	}
	p.stats.Sent++
	return nil
}

// admit enqueues h, asking the policy for room while the queue refuses it.
func (p *Path) admit(prec int, h pkt.Handle) error {
	for tries := p.q.Len() + 1; tries > 0; tries-- {
		err := p.q.EnqueueTail(prec, h)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pktq.ErrFull) {
			p.free(h)
			return err
		}
		victim, vprec, ok := p.policy.OnFull(p.q, prec)
		if !ok {
			break
		}
		p.free(victim)
		p.stats.Sacrificed++
		l := p.q.Log()
		l.Inc(vprec, pktq.Sacrificed)
		if vprec == prec {
			l.Inc(prec, pktq.SelfSaved)
		} else {
			l.Inc(prec, pktq.Saved)
		}
	}
	p.drop(prec, h)
	return ErrDropped
}

// Service posts up to budget packets to the device, backlog first, and
// returns how many were posted. A packet the device refuses goes back to
// the head of its lane.
func (p *Path) Service(budget int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	posted := 0
	for posted < budget && p.backlog.Length() > 0 {
		e := p.backlog.Peek().(pending)
		if !p.dev.Enqueue(e.h) {
			p.stats.Busy++
			p.q.Log().Inc(e.prec, pktq.Busy)
			p.stats.Posted += uint64(posted)
			return posted
		}
		p.backlog.Remove()
		p.q.Log().Inc(e.prec, pktq.Retry)
		p.stats.Retried++
		posted++
	}
	for posted < budget {
		h, prec, ok := p.q.DequeueMulti(p.bitmap)
		if !ok {
			break
		}
		if p.dev.Enqueue(h) {
			posted++
			continue
		}
		p.stats.Busy++
		p.q.Log().Inc(prec, pktq.Busy)
		if err := p.q.Requeue(prec, h); err != nil {
			// the lane shrank under a reconfigure
			log.Warningf("txpath: device busy, dropping %v at prec %d: %v", h, prec, err)
			p.drop(prec, h)
		}
		break
	}
	p.stats.Posted += uint64(posted)
	return posted
}

// Retry takes back a posted packet the device could not deliver and keeps
// it for the next Service pass. With the backlog full the packet is dropped
// and ErrDropped returned.
func (p *Path) Retry(h pkt.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.arena.Owner(h) != pkt.OwnerInFlight {
		return errors.Wrapf(api.ErrWrongOwner, "txpath: retry %v", h)
	}
	prec := int(p.arena.Tag(h))
	if p.backlog.Length() >= p.backlogMax {
		p.drop(prec, h)
		return ErrDropped
	}
	p.backlog.Add(pending{h: h, prec: prec})
	p.q.Log().Inc(prec, pktq.PSRetry)
	return nil
}

// Complete returns a packet the device has finished with to the pool.
func (p *Path) Complete(h pkt.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prec := int(p.arena.Tag(h))
	if err := p.pool.Free(h); err != nil {
		return errors.Wrap(err, "txpath: complete")
	}
	p.stats.Completed++
	p.q.Log().Inc(prec, pktq.Acked)
	return nil
}

// Drain returns every queued and retry-pending packet to the pool and reports
// how many there were.
func (p *Path) Drain() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.q.Flush(pktq.HeadToTail, nil, p.free)
	for p.backlog.Length() > 0 {
		p.free(p.backlog.Remove().(pending).h)
		n++
	}
	return n
}

// Reconfigure applies new capacities. Lanes and the queue keep packets above
// a lowered max; the pool shrinks strictly and grows by refilling.
func (p *Path) Reconfigure(l Limits) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for prec := range p.q.Precs() {
		if err := p.q.SetLaneMax(prec, l.LaneMax); err != nil {
			return err
		}
	}
	if err := p.q.SetMax(l.QueueMax); err != nil {
		return err
	}
	if l.PoolLen < p.pool.MaxLen() {
		if err := p.pool.SetMaxLenStrict(l.PoolLen); err != nil {
			return err
		}
	} else {
		if err := p.pool.SetMaxLen(l.PoolLen); err != nil {
			return err
		}
		if _, err := p.pool.Fill(false); err != nil {
			return err
		}
	}
	if l.Bitmap != 0 {
		p.bitmap = l.Bitmap
	}
	log.Infof("txpath: reconfigured lane_max=%d queue_max=%d pool_len=%d bitmap=%#x",
		l.LaneMax, l.QueueMax, l.PoolLen, uint16(p.bitmap))
	return nil
}

// Resumed delivers a value each time the path leaves the throttled state.
// A producer blocked on ErrNoBuffer waits on it before sending again.
func (p *Path) Resumed() <-chan struct{} { return p.resumed }

// Throttled reports whether the last Send found the pool empty and no
// buffer has come back since.
func (p *Path) Throttled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.throttled
}

// BacklogLen returns the number of packets waiting to be retried.
func (p *Path) BacklogLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog.Length()
}

// Stats returns the path counters.
func (p *Path) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Throttled = p.throttled
	return s
}

// Locker returns the mutex guarding the path, its pool and its queue.
func (p *Path) Locker() sync.Locker { return &p.mu }

// Queue returns the precedence queue. Use it under Locker only.
func (p *Path) Queue() *pktq.Queue { return p.q }

// Pool returns the buffer pool. Use it under Locker only.
func (p *Path) Pool() *pktpool.Pool { return p.pool }

// resume runs as the pool's availability callback, inside a Free made by
// Complete, Drain or Send with the path lock already held.
func (p *Path) resume(*pktpool.Pool) {
	if !p.throttled {
		return
	}
	p.throttled = false
	p.stats.Resumes++
	select {
	case p.resumed <- struct{}{}:
	default:
	}
}

func (p *Path) drop(prec int, h pkt.Handle) {
	p.free(h)
	p.stats.Dropped++
	p.q.Log().Inc(prec, pktq.Dropped)
}

func (p *Path) free(h pkt.Handle) {
	if err := p.pool.Free(h); err != nil {
		log.Errorf("txpath: free %v: %v", h, err)
	}
}
