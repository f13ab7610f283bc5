// File: pktpool/callbacks.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Callback registries for pool state transitions.

package pktpool

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/api"
)

// MaxCallbacks is the number of registrants per callback class.
const MaxCallbacks = 3

// Callback is invoked on a pool state transition. It runs synchronously in
// the context of the Get or Free that caused the transition and may call back
// into the pool.
type Callback func(p *Pool)

// availMode tags which side of availRegistry delivers notifications.
type availMode uint8

const (
	availShared availMode = iota
	availExclusive
)

// availRegistry delivers "buffer available" either to every shared
// registrant in registration order or, in exclusive mode, only to the
// exclusive consumer.
type availRegistry struct {
	mode      availMode
	shared    [MaxCallbacks]Callback
	n         int
	exclusive Callback
}

func (r *availRegistry) register(cb Callback) error {
	if cb == nil {
		return errors.Wrap(api.ErrInvalidArgument, "pktpool: nil avail callback")
	}
	if r.n == MaxCallbacks {
		return errors.Wrapf(api.ErrResourceExhausted, "pktpool: %d avail callbacks registered", MaxCallbacks)
	}
	r.shared[r.n] = cb
	r.n++
	return nil
}

func (r *availRegistry) setExclusive(cb Callback) {
	r.mode = availExclusive
	r.exclusive = cb
}

func (r *availRegistry) setShared() {
	r.mode = availShared
	r.exclusive = nil
}

// notify runs one delivery pass and returns how many callbacks ran.
func (r *availRegistry) notify(p *Pool) int {
	if r.mode == availExclusive {
		r.exclusive(p)
		return 1
	}
	// copy so a callback registering another one does not extend this pass
	cbs := r.shared
	n := r.n
	for i := 0; i < n; i++ {
		cbs[i](p)
	}
	return n
}

// emptyRegistry holds "pool empty" registrants.
type emptyRegistry struct {
	cbs [MaxCallbacks]Callback
	n   int
}

func (r *emptyRegistry) register(cb Callback) error {
	if cb == nil {
		return errors.Wrap(api.ErrInvalidArgument, "pktpool: nil empty callback")
	}
	if r.n == MaxCallbacks {
		return errors.Wrapf(api.ErrResourceExhausted, "pktpool: %d empty callbacks registered", MaxCallbacks)
	}
	r.cbs[r.n] = cb
	r.n++
	return nil
}

func (r *emptyRegistry) notify(p *Pool) int {
	cbs := r.cbs
	n := r.n
	for i := 0; i < n; i++ {
		cbs[i](p)
	}
	return n
}
