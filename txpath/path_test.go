package txpath_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/fake"
	"github.com/momentics/hioload-pktq/pkt"
	"github.com/momentics/hioload-pktq/pktpool"
	"github.com/momentics/hioload-pktq/pktq"
	"github.com/momentics/hioload-pktq/txpath"
)

type rig struct {
	arena *pkt.Arena
	pool  *pktpool.Pool
	q     *pktq.Queue
	dev   *fake.Device
	path  *txpath.Path
}

func newRig(t *testing.T, poolLen, laneMax, devCap int, opts txpath.Options) *rig {
	t.Helper()
	r := &rig{arena: pkt.NewArena(64, nil), dev: fake.NewDevice(devCap)}
	r.pool = pktpool.New(r.arena)
	require.NoError(t, r.pool.Init(poolLen, 64, true))
	var err error
	r.q, err = pktq.New(r.arena, 4, laneMax)
	require.NoError(t, err)
	require.NoError(t, r.q.SetMax(4*laneMax))
	r.q.EnableLog()
	r.path, err = txpath.New(r.arena, r.pool, r.q, r.dev, opts)
	require.NoError(t, err)
	return r
}

// complete reaps everything the device holds and completes it.
func (r *rig) complete(t *testing.T) int {
	t.Helper()
	n := 0
	for {
		h, ok := r.dev.Dequeue()
		if !ok {
			return n
		}
		require.NoError(t, r.path.Complete(h))
		n++
	}
}

func (r *rig) lane(prec int) pktq.LaneStats {
	return r.q.Log().Lane(prec)
}

func TestSendServiceComplete(t *testing.T) {
	r := newRig(t, 8, 4, 8, txpath.Options{})
	require.NoError(t, r.path.Send(0, []byte("low")))
	require.NoError(t, r.path.Send(2, []byte("high")))
	require.NoError(t, r.path.Send(1, []byte("mid")))
	assert.Equal(t, 5, r.pool.Avail())

	assert.Equal(t, 3, r.path.Service(10))
	posted := r.dev.Posted()
	require.Len(t, posted, 3)
	var got []string
	for _, h := range posted {
		got = append(got, string(r.arena.Bytes(h)))
	}
	assert.Equal(t, []string{"high", "mid", "low"}, got)

	assert.Equal(t, 3, r.complete(t))
	assert.Equal(t, 8, r.pool.Avail())
	assert.Equal(t, uint64(1), r.lane(2).Acked)

	s := r.path.Stats()
	assert.Equal(t, uint64(3), s.Sent)
	assert.Equal(t, uint64(3), s.Posted)
	assert.Equal(t, uint64(3), s.Completed)
}

func TestServiceBudgetAndBitmap(t *testing.T) {
	r := newRig(t, 8, 4, 8, txpath.Options{Bitmap: pktq.PrecBit(3)})
	require.NoError(t, r.path.Send(3, []byte{1}))
	require.NoError(t, r.path.Send(3, []byte{2}))
	require.NoError(t, r.path.Send(0, []byte{3}))

	assert.Equal(t, 1, r.path.Service(1))
	assert.Equal(t, 1, r.path.Service(10))
	assert.Zero(t, r.path.Service(10), "lane 0 is not serviced")
	assert.Equal(t, 1, r.q.LaneLen(0))
}

func TestThrottleAndResume(t *testing.T) {
	r := newRig(t, 2, 4, 8, txpath.Options{})
	require.NoError(t, r.path.Send(0, []byte{1}))
	require.NoError(t, r.path.Send(0, []byte{2}))

	assert.ErrorIs(t, r.path.Send(0, []byte{3}), txpath.ErrNoBuffer)
	assert.True(t, r.path.Throttled())
	select {
	case <-r.path.Resumed():
		t.Fatal("resumed while throttled")
	default:
	}

	require.Equal(t, 2, r.path.Service(2))
	h, ok := r.dev.Dequeue()
	require.True(t, ok)
	require.NoError(t, r.path.Complete(h))

	assert.False(t, r.path.Throttled())
	select {
	case <-r.path.Resumed():
	default:
		t.Fatal("no resume signal")
	}
	assert.Equal(t, uint64(1), r.path.Stats().Resumes)

	// one edge, one resume
	r.complete(t)
	assert.Equal(t, uint64(1), r.path.Stats().Resumes)
	require.NoError(t, r.path.Send(0, []byte{4}))
}

func TestFullLaneDropNew(t *testing.T) {
	r := newRig(t, 4, 1, 8, txpath.Options{})
	require.NoError(t, r.path.Send(0, []byte{1}))
	assert.ErrorIs(t, r.path.Send(0, []byte{2}), txpath.ErrDropped)

	assert.Equal(t, 3, r.pool.Avail(), "dropped buffer went back to the pool")
	l := r.lane(0)
	assert.Equal(t, uint64(1), l.FullDropped)
	assert.Equal(t, uint64(1), l.Dropped)
	assert.Equal(t, uint64(1), r.path.Stats().Dropped)
}

func TestSacrificeSelf(t *testing.T) {
	evictOwnTail := txpath.PolicyFunc(func(q *pktq.Queue, prec int) (pkt.Handle, int, bool) {
		h, ok := q.DequeueTail(prec)
		return h, prec, ok
	})
	r := newRig(t, 4, 1, 8, txpath.Options{Policy: evictOwnTail})
	require.NoError(t, r.path.Send(1, []byte("old")))
	require.NoError(t, r.path.Send(1, []byte("new")))

	h, ok := r.q.Peek(1)
	require.True(t, ok)
	assert.Equal(t, "new", string(r.arena.Bytes(h)))
	l := r.lane(1)
	assert.Equal(t, uint64(1), l.Sacrificed)
	assert.Equal(t, uint64(1), l.SelfSaved)
	assert.Equal(t, 3, r.pool.Avail())
}

func TestSacrificeLowerLane(t *testing.T) {
	evictLowest := txpath.PolicyFunc(func(q *pktq.Queue, prec int) (pkt.Handle, int, bool) {
		if low := q.LowestPrec(); low < 0 || low >= prec {
			return pkt.Nil, -1, false
		}
		return q.DequeueLowestTail()
	})
	r := newRig(t, 8, 4, 8, txpath.Options{Policy: evictLowest})
	require.NoError(t, r.q.SetMax(2))

	require.NoError(t, r.path.Send(0, []byte("a")))
	require.NoError(t, r.path.Send(0, []byte("b")))
	require.NoError(t, r.path.Send(3, []byte("c")))
	assert.ErrorIs(t, r.path.Send(0, []byte("d")), txpath.ErrDropped, "nothing lower to sacrifice")

	assert.Equal(t, 1, r.q.LaneLen(0))
	assert.Equal(t, 1, r.q.LaneLen(3))
	assert.Equal(t, uint64(1), r.lane(0).Sacrificed)
	assert.Equal(t, uint64(1), r.lane(3).Saved)
	h, _ := r.q.Peek(0)
	assert.Equal(t, "a", string(r.arena.Bytes(h)))
	assert.Equal(t, uint64(1), r.path.Stats().Sacrificed)
}

func TestDeviceBusyRequeues(t *testing.T) {
	r := newRig(t, 8, 4, 1, txpath.Options{})
	for i := byte(0); i < 3; i++ {
		require.NoError(t, r.path.Send(0, []byte{i}))
	}

	assert.Equal(t, 1, r.path.Service(10))
	assert.Equal(t, 2, r.q.LaneLen(0))
	assert.Equal(t, uint64(1), r.lane(0).Busy)

	r.complete(t)
	assert.Equal(t, 1, r.path.Service(10))
	r.complete(t)
	assert.Equal(t, 1, r.path.Service(10))

	var order []byte
	for _, h := range r.dev.Posted() {
		order = append(order, r.arena.Bytes(h)[0])
	}
	assert.Equal(t, []byte{0, 1, 2}, order, "busy packets keep their place")

	l := r.lane(0)
	assert.Equal(t, uint64(2), l.Busy)
	assert.Equal(t, uint64(3), l.Requested, "requeue is not a new request")
	assert.Equal(t, uint64(3), l.Stored)
}

func TestRetryBacklog(t *testing.T) {
	r := newRig(t, 8, 4, 8, txpath.Options{Backlog: 1})
	require.NoError(t, r.path.Send(0, []byte{1}))
	require.NoError(t, r.path.Send(2, []byte{2}))
	require.NoError(t, r.path.Send(3, []byte{3}))
	require.Equal(t, 3, r.path.Service(3))

	h3, _ := r.dev.Dequeue()
	h2, _ := r.dev.Dequeue()
	require.NoError(t, r.path.Retry(h2))
	assert.ErrorIs(t, r.path.Retry(h3), txpath.ErrDropped, "backlog holds one")
	assert.Equal(t, 1, r.path.BacklogLen())
	assert.Equal(t, uint64(1), r.lane(2).PSRetry)
	assert.Equal(t, uint64(1), r.lane(3).Dropped)

	// queued traffic waits behind the retry
	require.NoError(t, r.path.Send(3, []byte{4}))
	assert.Equal(t, 1, r.path.Service(1))
	assert.Equal(t, uint64(1), r.lane(2).Retry)
	posted := r.dev.Posted()
	assert.Equal(t, h2, posted[len(posted)-1])
	assert.Zero(t, r.path.BacklogLen())
	assert.Equal(t, uint64(1), r.path.Stats().Retried)

	err := r.path.Retry(pkt.Nil)
	assert.True(t, errors.Is(err, api.ErrWrongOwner))
}

func TestDrain(t *testing.T) {
	r := newRig(t, 8, 4, 8, txpath.Options{})
	for i := 0; i < 5; i++ {
		require.NoError(t, r.path.Send(i%4, []byte{byte(i)}))
	}
	require.Equal(t, 1, r.path.Service(1))
	h, _ := r.dev.Dequeue()
	require.NoError(t, r.path.Retry(h))

	assert.Equal(t, 5, r.path.Drain())
	assert.True(t, r.q.Empty())
	assert.Zero(t, r.path.BacklogLen())
	assert.Equal(t, 8, r.pool.Avail())
}

func TestReconfigure(t *testing.T) {
	r := newRig(t, 8, 4, 8, txpath.Options{})
	require.NoError(t, r.path.Reconfigure(txpath.Limits{LaneMax: 2, QueueMax: 6, PoolLen: 4, Bitmap: pktq.PrecBit(1)}))
	assert.Equal(t, 2, r.q.LaneMax(3))
	assert.Equal(t, 6, r.q.Max())
	assert.Equal(t, 4, r.pool.Len())
	assert.Equal(t, 4, r.pool.MaxLen())

	require.NoError(t, r.path.Send(0, []byte{0}))
	require.NoError(t, r.path.Send(1, []byte{1}))
	assert.Equal(t, 1, r.path.Service(10), "only lane 1 is serviced")

	require.NoError(t, r.path.Reconfigure(txpath.Limits{LaneMax: 4, QueueMax: 16, PoolLen: 12}))
	assert.Equal(t, 12, r.pool.Len())

	err := r.path.Reconfigure(txpath.Limits{LaneMax: 4, QueueMax: 16, PoolLen: pktpool.LenMax + 1})
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))
}

func TestSendRejectsBadInput(t *testing.T) {
	r := newRig(t, 2, 4, 8, txpath.Options{})
	assert.True(t, errors.Is(r.path.Send(4, nil), api.ErrInvalidArgument))
	assert.True(t, errors.Is(r.path.Send(0, make([]byte, 65)), api.ErrInvalidArgument))
	assert.Equal(t, 2, r.pool.Avail())
}

func TestNewRequiresInitedPool(t *testing.T) {
	a := pkt.NewArena(4, nil)
	q, err := pktq.New(a, 1, 4)
	require.NoError(t, err)
	_, err = txpath.New(a, pktpool.New(a), q, fake.NewDevice(1), txpath.Options{})
	assert.True(t, errors.Is(err, api.ErrNotInitialized))
	_, err = txpath.New(a, nil, q, fake.NewDevice(1), txpath.Options{})
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))
}
