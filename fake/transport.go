// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the device side of the
// transmit path.

package fake

import (
	"sync"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/pkt"
)

// Device is a fake descriptor ring. It records every posted handle in order
// and refuses new posts once capacity handles are pending.
type Device struct {
	mu       sync.Mutex
	pending  []pkt.Handle
	posted   []pkt.Handle
	capacity int
}

var _ api.Ring[pkt.Handle] = (*Device)(nil)

// NewDevice creates a fake device ring holding up to capacity descriptors.
func NewDevice(capacity int) *Device {
	return &Device{capacity: capacity}
}

// Enqueue implements api.Ring.
func (d *Device) Enqueue(h pkt.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) >= d.capacity {
		return false
	}
	d.pending = append(d.pending, h)
	d.posted = append(d.posted, h)
	return true
}

// Dequeue implements api.Ring; it models the device finishing a descriptor.
func (d *Device) Dequeue() (pkt.Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return pkt.Nil, false
	}
	h := d.pending[0]
	d.pending = d.pending[1:]
	return h, true
}

// Len implements api.Ring.
func (d *Device) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Cap implements api.Ring.
func (d *Device) Cap() int { return d.capacity }

// SetCap changes the ring capacity, e.g. to simulate a stalled device.
func (d *Device) SetCap(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capacity = n
}

// Posted returns every handle ever accepted, in post order.
func (d *Device) Posted() []pkt.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]pkt.Handle, len(d.posted))
	copy(out, d.posted)
	return out
}
