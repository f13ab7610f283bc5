package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/control"
	"github.com/momentics/hioload-pktq/pkt"
	"github.com/momentics/hioload-pktq/pktpool"
	"github.com/momentics/hioload-pktq/pktq"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	var mu sync.Mutex
	arena := pkt.NewArena(8, nil)
	pool := pktpool.New(arena)
	require.NoError(t, pool.Init(4, 64, true))
	q, err := pktq.New(arena, 2, 4)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(control.NewCollector(&mu, q, pool))
	probes := control.NewDebugProbes()
	control.RegisterQueueProbes(probes, &mu, q, pool)
	probes.RegisterProbe("config", func() any { return control.DefaultConfig() })
	return router(reg, probes)
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestRouterMetrics(t *testing.T) {
	rec := get(t, newRouter(t), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pktq_pool_available 4")
}

func TestRouterProbe(t *testing.T) {
	rec := get(t, newRouter(t), "/debug/state/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var cfg control.Config
	require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, control.DefaultConfig(), cfg)
}

func TestRouterUnknownProbe(t *testing.T) {
	rec := get(t, newRouter(t), "/debug/state/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var e api.Error
	require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, api.ErrCodeNotFound, e.Code)
	assert.Equal(t, "nope", e.Context["probe"])
}

func TestRouterAllState(t *testing.T) {
	rec := get(t, newRouter(t), "/debug/state")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, name := range []string{"pktpool", "pktq.state", "config"} {
		assert.True(t, strings.Contains(rec.Body.String(), `"`+name+`"`), name)
	}
}

func TestLimits(t *testing.T) {
	c := control.DefaultConfig()
	c.ServiceBitmap = 3
	l := limits(c)
	assert.Equal(t, c.LaneMax, l.LaneMax)
	assert.Equal(t, c.PoolLen, l.PoolLen)
	assert.Equal(t, pktq.PrecBitmap(3), l.Bitmap)
}
