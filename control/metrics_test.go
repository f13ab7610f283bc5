package control_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pktq/control"
	"github.com/momentics/hioload-pktq/fake"
	"github.com/momentics/hioload-pktq/pkt"
	"github.com/momentics/hioload-pktq/pktpool"
	"github.com/momentics/hioload-pktq/pktq"
)

type fixture struct {
	mu    sync.Mutex
	arena *pkt.Arena
	q     *pktq.Queue
	pool  *pktpool.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{arena: pkt.NewArena(16, nil)}
	f.pool = pktpool.New(f.arena)
	require.NoError(t, f.pool.Init(4, 64, true))
	var err error
	f.q, err = pktq.New(f.arena, 2, 4)
	require.NoError(t, err)
	require.NoError(t, f.q.SetMax(8))
	return f
}

func TestCollectorSeries(t *testing.T) {
	f := newFixture(t)
	c := control.NewCollector(&f.mu, f.q, f.pool)

	// without a usage log only occupancy is exported
	assert.Equal(t, 1+2*2+3+7, testutil.CollectAndCount(c))
	assert.Zero(t, testutil.CollectAndCount(c, "pktq_lane_events_total"))

	f.q.EnableLog()
	n := len(pktq.Counters())
	assert.Equal(t, 2*n, testutil.CollectAndCount(c, "pktq_lane_events_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(c, "pktq_lane_max_used"))
	assert.Equal(t, 7, testutil.CollectAndCount(c, "pktq_pool_events_total"))
}

func TestCollectorValues(t *testing.T) {
	f := newFixture(t)
	f.q.EnableLog()
	c := control.NewCollector(&f.mu, f.q, f.pool)

	h, ok := f.pool.Get()
	require.True(t, ok)
	require.NoError(t, f.q.EnqueueTail(1, h))
	for _, h := range fake.Packets(f.arena, 2, 8) {
		require.NoError(t, f.q.EnqueueTail(0, h))
	}

	expected := `
# HELP pktq_pool_available Buffers ready to be checked out.
# TYPE pktq_pool_available gauge
pktq_pool_available 3
# HELP pktq_pool_owned Buffers owned by the pool, available or checked out.
# TYPE pktq_pool_owned gauge
pktq_pool_owned 4
# HELP pktq_queue_length Packets queued over all lanes.
# TYPE pktq_queue_length gauge
pktq_queue_length 3
# HELP pktq_lane_length Packets queued in the lane.
# TYPE pktq_lane_length gauge
pktq_lane_length{prec="0"} 2
pktq_lane_length{prec="1"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"pktq_pool_available", "pktq_pool_owned", "pktq_queue_length", "pktq_lane_length"))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	mfs, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "pktq_lane_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["prec"] == "0" && labels["counter"] == pktq.Stored.String() {
				found = true
				assert.Equal(t, 2.0, m.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found, "stored counter for lane 0 exported")
}

func TestCollectorNilParts(t *testing.T) {
	var mu sync.Mutex
	c := control.NewCollector(&mu, nil, nil)
	assert.Zero(t, testutil.CollectAndCount(c))
}
