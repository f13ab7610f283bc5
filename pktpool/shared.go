// File: pktpool/shared.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide shared pool. Its lifetime is explicit: InitShared before use,
// DeinitShared at shutdown.

package pktpool

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/pkt"
)

var (
	sharedMu   sync.Mutex
	sharedPool *Pool
)

// InitShared creates and initializes the shared pool.
func InitShared(arena *pkt.Arena, targetLen, bufLen int, isTx bool) (*Pool, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool != nil {
		return nil, errors.Wrap(api.ErrAlreadyExists, "pktpool: shared pool")
	}
	p := New(arena)
	if err := p.Init(targetLen, bufLen, isTx); err != nil {
		return nil, err
	}
	sharedPool = p
	return p, nil
}

// Shared returns the shared pool, nil before InitShared.
func Shared() *Pool {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return sharedPool
}

// DeinitShared releases the shared pool.
func DeinitShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool == nil {
		return errors.Wrap(api.ErrNotInitialized, "pktpool: shared pool")
	}
	err := sharedPool.Deinit()
	sharedPool = nil
	return err
}
