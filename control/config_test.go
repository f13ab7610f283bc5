package control_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/control"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, control.DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	for _, tt := range []struct {
		name string
		edit func(*control.Config)
	}{
		{"num_prec zero", func(c *control.Config) { c.NumPrec = 0 }},
		{"num_prec above 16", func(c *control.Config) { c.NumPrec = 17 }},
		{"lane_max", func(c *control.Config) { c.LaneMax = 70000 }},
		{"queue_max", func(c *control.Config) { c.QueueMax = -1 }},
		{"pool_len", func(c *control.Config) { c.PoolLen = 41 }},
		{"buf_len", func(c *control.Config) { c.BufLen = 0 }},
		{"arena too small", func(c *control.Config) { c.ArenaSlots = c.PoolLen - 1 }},
		{"device ring", func(c *control.Config) { c.DeviceRing = 48 }},
		{"backlog", func(c *control.Config) { c.Backlog = -1 }},
	} {
		cfg := control.DefaultConfig()
		tt.edit(&cfg)
		err := cfg.Validate()
		assert.True(t, errors.Is(err, api.ErrInvalidArgument), "%s: %v", tt.name, err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pktq.json")
	writeFile(t, path, `{"num_prec": 4, "lane_max": 16, "pool_len": 8, "mmap_buffers": true, "service_bitmap": 12}`)

	got, err := control.LoadConfig(path)
	require.NoError(t, err)

	want := control.DefaultConfig()
	want.NumPrec = 4
	want.LaneMax = 16
	want.PoolLen = 8
	want.MmapBuffers = true
	want.ServiceBitmap = 12
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := control.LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `{"num_prec": `)
	_, err = control.LoadConfig(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	writeFile(t, invalid, `{"num_prec": 32}`)
	_, err = control.LoadConfig(invalid)
	assert.True(t, errors.Is(err, api.ErrInvalidArgument), "%v", err)
}

func TestConfigStore(t *testing.T) {
	cs := control.NewConfigStore(control.DefaultConfig())
	var seen []int
	cs.OnReload(func(c control.Config) { seen = append(seen, c.PoolLen) })

	cfg := cs.Get()
	cfg.PoolLen = 12
	require.NoError(t, cs.Set(cfg))
	assert.Equal(t, 12, cs.Get().PoolLen)

	cfg.PoolLen = 99
	assert.Error(t, cs.Set(cfg))
	assert.Equal(t, 12, cs.Get().PoolLen, "invalid config is not installed")
	assert.Equal(t, []int{12}, seen)
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pktq.json")
	writeFile(t, path, `{"pool_len": 8}`)
	cfg, err := control.LoadConfig(path)
	require.NoError(t, err)
	cs := control.NewConfigStore(cfg)

	var mu sync.Mutex
	var got []int
	cs.OnReload(func(c control.Config) {
		mu.Lock()
		got = append(got, c.PoolLen)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- control.Watch(ctx, path, cs) }()

	// the watcher may not be armed yet; keep rewriting until it reacts
	require.Eventually(t, func() bool {
		writeFile(t, path, `{"pool_len": 16}`)
		return cs.Get().PoolLen == 16
	}, 5*time.Second, 50*time.Millisecond)

	// restart-only fields are held back, capacities still apply
	writeFile(t, path, `{"pool_len": 20, "num_prec": 4, "metrics_addr": ":0"}`)
	require.Eventually(t, func() bool { return cs.Get().PoolLen == 20 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, cfg.NumPrec, cs.Get().NumPrec)
	assert.Equal(t, cfg.MetricsAddr, cs.Get().MetricsAddr)

	// a broken file keeps the previous config
	writeFile(t, path, `{"pool_len": 1000}`)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 20, cs.Get().PoolLen)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	for _, n := range got {
		assert.Contains(t, []int{16, 20}, n)
	}
}

func TestApplyReload(t *testing.T) {
	cur := control.DefaultConfig()
	next := cur
	next.LaneMax = 16
	next.PoolLen = 8
	next.ServiceBitmap = 3
	next.NumPrec = 4
	next.CPU = 2
	next.DeviceRing = 128

	got, held := control.ApplyReload(cur, next)
	assert.Equal(t, []string{"num_prec", "device_ring", "cpu"}, held)

	want := cur
	want.LaneMax = 16
	want.PoolLen = 8
	want.ServiceBitmap = 3
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("merged config (-want +got):\n%s", diff)
	}

	_, held = control.ApplyReload(cur, cur)
	assert.Empty(t, held)
}
