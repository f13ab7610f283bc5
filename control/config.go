// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Simulator configuration: JSON file, validation, and a thread-safe store
// with reload listeners.

package control

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sugawarayuuta/sonnet"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/pktpool"
	"github.com/momentics/hioload-pktq/pktq"
)

// Config holds every tunable of the packet path.
type Config struct {
	NumPrec       int    `json:"num_prec"`
	LaneMax       int    `json:"lane_max"`
	QueueMax      int    `json:"queue_max"`
	PoolLen       int    `json:"pool_len"`
	BufLen        int    `json:"buf_len"`
	IsTx          bool   `json:"is_tx"`
	ArenaSlots    int    `json:"arena_slots"`
	DeviceRing    int    `json:"device_ring"`
	Backlog       int    `json:"backlog"`
	LogCounters   bool   `json:"log_counters"`
	MmapBuffers   bool   `json:"mmap_buffers"`
	CPU           int    `json:"cpu"`
	MetricsAddr   string `json:"metrics_addr"`
	ServiceBitmap uint16 `json:"service_bitmap"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		NumPrec:       8,
		LaneMax:       pktq.DefaultLaneMax,
		QueueMax:      pktq.DefaultLaneMax * 8,
		PoolLen:       32,
		BufLen:        2048,
		IsTx:          true,
		ArenaSlots:    1024,
		DeviceRing:    64,
		Backlog:       64,
		LogCounters:   true,
		CPU:           -1,
		MetricsAddr:   "127.0.0.1:9108",
		ServiceBitmap: uint16(pktq.AllPrec),
	}
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	switch {
	case c.NumPrec < 1 || c.NumPrec > pktq.MaxPrec:
		return errors.Wrapf(api.ErrInvalidArgument, "config: num_prec %d not in [1, %d]", c.NumPrec, pktq.MaxPrec)
	case c.LaneMax < 0 || c.LaneMax > pktq.LenMax:
		return errors.Wrapf(api.ErrInvalidArgument, "config: lane_max %d", c.LaneMax)
	case c.QueueMax < 0 || c.QueueMax > pktq.LenMax:
		return errors.Wrapf(api.ErrInvalidArgument, "config: queue_max %d", c.QueueMax)
	case c.PoolLen < 0 || c.PoolLen > pktpool.LenMax:
		return errors.Wrapf(api.ErrInvalidArgument, "config: pool_len %d not in [0, %d]", c.PoolLen, pktpool.LenMax)
	case c.BufLen <= 0:
		return errors.Wrapf(api.ErrInvalidArgument, "config: buf_len %d", c.BufLen)
	case c.ArenaSlots < c.PoolLen:
		return errors.Wrapf(api.ErrInvalidArgument, "config: arena_slots %d < pool_len %d", c.ArenaSlots, c.PoolLen)
	case c.DeviceRing <= 0 || c.DeviceRing&(c.DeviceRing-1) != 0:
		return errors.Wrapf(api.ErrInvalidArgument, "config: device_ring %d is not a power of two", c.DeviceRing)
	case c.Backlog < 0:
		return errors.Wrapf(api.ErrInvalidArgument, "config: backlog %d", c.Backlog)
	}
	return nil
}

// LoadConfig reads a JSON config file. Fields absent from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config")
	}
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, path)
	}
	return cfg, nil
}

// ApplyReload merges a reloaded config into the running one. Only the
// capacities (lane_max, queue_max, pool_len, service_bitmap) change while
// running; every other field keeps its value from cur. held lists the JSON
// names of fields whose new value was not applied.
func ApplyReload(cur, next Config) (merged Config, held []string) {
	for _, f := range []struct {
		name    string
		changed bool
	}{
		{"num_prec", next.NumPrec != cur.NumPrec},
		{"buf_len", next.BufLen != cur.BufLen},
		{"is_tx", next.IsTx != cur.IsTx},
		{"arena_slots", next.ArenaSlots != cur.ArenaSlots},
		{"device_ring", next.DeviceRing != cur.DeviceRing},
		{"backlog", next.Backlog != cur.Backlog},
		{"log_counters", next.LogCounters != cur.LogCounters},
		{"mmap_buffers", next.MmapBuffers != cur.MmapBuffers},
		{"cpu", next.CPU != cur.CPU},
		{"metrics_addr", next.MetricsAddr != cur.MetricsAddr},
	} {
		if f.changed {
			held = append(held, f.name)
		}
	}
	merged = cur
	merged.LaneMax = next.LaneMax
	merged.QueueMax = next.QueueMax
	merged.PoolLen = next.PoolLen
	merged.ServiceBitmap = next.ServiceBitmap
	return merged, held
}

// ConfigStore holds the current configuration and notifies listeners when
// it changes.
type ConfigStore struct {
	mu        sync.RWMutex
	cfg       Config
	listeners []func(Config)
}

// NewConfigStore creates a store holding cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{cfg: cfg}
}

// Get returns the current configuration.
func (cs *ConfigStore) Get() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.cfg
}

// Set validates and installs cfg, then calls every listener synchronously
// with the new value. An invalid cfg leaves the store unchanged.
func (cs *ConfigStore) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.cfg = cfg
	listeners := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
