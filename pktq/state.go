// File: pktq/state.go
// Author: momentics <momentics@gmail.com>
//
// Point-in-time view of the queue for debug probes.

package pktq

// LaneState is the occupancy of one lane.
type LaneState struct {
	Len int
	Max int
}

// State is the occupancy of the whole queue.
type State struct {
	NumPrec int
	Len     int
	Max     int
	Lanes   []LaneState
}

// State returns the current occupancy of the queue and its lanes.
func (q *Queue) State() State {
	s := State{
		NumPrec: q.numPrec,
		Len:     q.n,
		Max:     q.max,
		Lanes:   make([]LaneState, q.numPrec),
	}
	for prec := range s.Lanes {
		s.Lanes[prec] = LaneState{Len: q.lanes[prec].n, Max: q.lanes[prec].max}
	}
	return s
}
