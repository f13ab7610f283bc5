package pktpool_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/pkt"
	"github.com/momentics/hioload-pktq/pktpool"
)

func TestSharedPoolLifecycle(t *testing.T) {
	a := pkt.NewArena(16, nil)
	assert.Nil(t, pktpool.Shared())

	p, err := pktpool.InitShared(a, 4, bufLen, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pktpool.DeinitShared() })
	assert.Same(t, p, pktpool.Shared())
	assert.Equal(t, 4, p.Avail())

	_, err = pktpool.InitShared(a, 4, bufLen, true)
	assert.True(t, errors.Is(err, api.ErrAlreadyExists))

	require.NoError(t, pktpool.DeinitShared())
	assert.Nil(t, pktpool.Shared())
	assert.Zero(t, a.Live())
	assert.True(t, errors.Is(pktpool.DeinitShared(), api.ErrNotInitialized))
}

func TestSharedPoolInitFailure(t *testing.T) {
	a := pkt.NewArena(2, nil)
	_, err := pktpool.InitShared(a, 4, bufLen, true)
	require.Error(t, err)
	assert.Nil(t, pktpool.Shared())
	assert.Zero(t, a.Live())
}
