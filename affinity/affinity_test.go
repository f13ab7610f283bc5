package affinity_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pktq/affinity"
	"github.com/momentics/hioload-pktq/api"
)

func TestSetAffinityRange(t *testing.T) {
	assert.True(t, errors.Is(affinity.SetAffinity(-1), api.ErrInvalidArgument))
	assert.True(t, errors.Is(affinity.SetAffinity(runtime.NumCPU()), api.ErrInvalidArgument))
}

func TestPinUnpinned(t *testing.T) {
	unpin, err := affinity.Pin(-1)
	require.NoError(t, err)
	unpin()
}

func TestPinOutOfRange(t *testing.T) {
	unpin, err := affinity.Pin(runtime.NumCPU() + 1)
	assert.Error(t, err)
	require.NotNil(t, unpin)
	unpin()
}
