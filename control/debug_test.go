package control_test

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pktq/control"
	"github.com/momentics/hioload-pktq/pktq"
)

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("b", func() any { return 2 })
	dp.RegisterProbe("a", func() any { return "one" })
	dp.RegisterProbe("b", func() any { return 3 })

	assert.Equal(t, []string{"a", "b"}, dp.Names())
	assert.Equal(t, map[string]any{"a": "one", "b": 3}, dp.DumpState())
}

func TestQueueProbes(t *testing.T) {
	f := newFixture(t)
	dp := control.NewDebugProbes()
	control.RegisterQueueProbes(dp, &f.mu, f.q, f.pool)
	assert.Equal(t, []string{"pktpool", "pktq.state", "pktq.stats"}, dp.Names())

	h, ok := f.pool.Get()
	require.True(t, ok)
	require.NoError(t, f.q.EnqueueTail(1, h))

	state := dp.DumpState()
	want := control.PoolState{
		Inited:      true,
		Len:         4,
		Avail:       3,
		Outstanding: 1,
		MaxLen:      4,
		BufLen:      64,
		IsTx:        true,
		String:      f.pool.String(),
	}
	if diff := pretty.Compare(want, state["pktpool"]); diff != "" {
		t.Errorf("pool probe (-want +got):\n%s", diff)
	}

	qs, ok := state["pktq.state"].(pktq.State)
	require.True(t, ok)
	assert.Equal(t, 1, qs.Len)
	assert.Equal(t, 1, qs.Lanes[1].Len)
	assert.Nil(t, state["pktq.stats"], "usage log disabled")
}

func TestPlatformProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	state := dp.DumpState()
	require.Contains(t, state, "platform.cpus")
	assert.Greater(t, state["platform.cpus"].(int), 0)
}
