// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Debug probe registry and the probes exporting queue and pool state.

package control

import (
	"sort"
	"sync"

	"github.com/momentics/hioload-pktq/pktpool"
	"github.com/momentics/hioload-pktq/pktq"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// Names returns the registered probe names in order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make([]string, 0, len(dp.probes))
	for k := range dp.probes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// PoolState is the pool view exported by the pktpool probe.
type PoolState struct {
	Inited      bool   `json:"inited"`
	Len         int    `json:"len"`
	Avail       int    `json:"avail"`
	Outstanding int    `json:"outstanding"`
	MaxLen      int    `json:"maxlen"`
	BufLen      int    `json:"buflen"`
	IsTx        bool   `json:"is_tx"`
	Empty       bool   `json:"empty"`
	String      string `json:"string"`
}

// RegisterQueueProbes adds the "pktq.state", "pktq.stats" and "pktpool"
// probes. Each probe takes mu while reading.
func RegisterQueueProbes(dp *DebugProbes, mu sync.Locker, q *pktq.Queue, pool *pktpool.Pool) {
	if q != nil {
		dp.RegisterProbe("pktq.state", func() any {
			mu.Lock()
			defer mu.Unlock()
			return q.State()
		})
		dp.RegisterProbe("pktq.stats", func() any {
			mu.Lock()
			defer mu.Unlock()
			return q.Stats()
		})
	}
	if pool != nil {
		dp.RegisterProbe("pktpool", func() any {
			mu.Lock()
			defer mu.Unlock()
			return PoolState{
				Inited:      pool.Inited(),
				Len:         pool.Len(),
				Avail:       pool.Avail(),
				Outstanding: pool.Outstanding(),
				MaxLen:      pool.MaxLen(),
				BufLen:      pool.BufLen(),
				IsTx:        pool.IsTx(),
				Empty:       pool.Empty(),
				String:      pool.String(),
			}
		})
	}
}
