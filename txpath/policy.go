// File: txpath/policy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Admission policy consulted when a lane or the whole queue is full.

package txpath

import (
	"github.com/momentics/hioload-pktq/pkt"
	"github.com/momentics/hioload-pktq/pktq"
)

// Policy decides what happens to a packet that does not fit. OnFull may
// remove one queued packet to make room for an incoming packet of lane prec;
// it returns the removed packet, in flight, and its lane. Returning false
// drops the incoming packet instead.
type Policy interface {
	OnFull(q *pktq.Queue, prec int) (victim pkt.Handle, vprec int, ok bool)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(q *pktq.Queue, prec int) (pkt.Handle, int, bool)

// OnFull implements Policy.
func (f PolicyFunc) OnFull(q *pktq.Queue, prec int) (pkt.Handle, int, bool) {
	return f(q, prec)
}

// DropNew never evicts: the incoming packet is dropped.
type DropNew struct{}

// OnFull implements Policy.
func (DropNew) OnFull(*pktq.Queue, int) (pkt.Handle, int, bool) {
	return pkt.Nil, -1, false
}
