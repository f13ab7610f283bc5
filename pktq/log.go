// File: pktq/log.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Optional per-lane usage counters. They are purely observational: nothing
// in the queue reads them back.

package pktq

// Counter names one per-lane usage counter.
type Counter int

const (
	// Requested counts enqueue attempts.
	Requested Counter = iota
	// Stored counts successful enqueues.
	Stored
	// Saved counts packets admitted after a lower lane was sacrificed.
	Saved
	// SelfSaved counts packets admitted after sacrificing from their own lane.
	SelfSaved
	// FullDropped counts enqueues refused because of capacity.
	FullDropped
	// Dropped counts packets the caller discarded.
	Dropped
	// Sacrificed counts packets evicted to make room for higher precedence.
	Sacrificed
	// Busy counts packets the device could not take.
	Busy
	// Retry counts packets re-posted to the device.
	Retry
	// PSRetry counts retries caused by the peer being in power save.
	PSRetry
	// Acked counts transmit completions.
	Acked

	numCounters
)

var counterNames = [numCounters]string{
	Requested:   "requested",
	Stored:      "stored",
	Saved:       "saved",
	SelfSaved:   "selfsaved",
	FullDropped: "full_dropped",
	Dropped:     "dropped",
	Sacrificed:  "sacrificed",
	Busy:        "busy",
	Retry:       "retry",
	PSRetry:     "ps_retry",
	Acked:       "acked",
}

func (c Counter) String() string {
	if c < 0 || c >= numCounters {
		return "unknown"
	}
	return counterNames[c]
}

// Counters lists every counter in declaration order.
func Counters() []Counter {
	out := make([]Counter, numCounters)
	for i := range out {
		out[i] = Counter(i)
	}
	return out
}

// LaneStats is the usage record of one precedence lane.
type LaneStats struct {
	Requested   uint64
	Stored      uint64
	Saved       uint64
	SelfSaved   uint64
	FullDropped uint64
	Dropped     uint64
	Sacrificed  uint64
	Busy        uint64
	Retry       uint64
	PSRetry     uint64
	Acked       uint64

	// MaxUsed is the highest lane length observed.
	MaxUsed int
	// Capacity is the lane max at snapshot time.
	Capacity int
}

// Get returns the value of counter c.
func (s *LaneStats) Get(c Counter) uint64 {
	if p := s.field(c); p != nil {
		return *p
	}
	return 0
}

func (s *LaneStats) field(c Counter) *uint64 {
	switch c {
	case Requested:
		return &s.Requested
	case Stored:
		return &s.Stored
	case Saved:
		return &s.Saved
	case SelfSaved:
		return &s.SelfSaved
	case FullDropped:
		return &s.FullDropped
	case Dropped:
		return &s.Dropped
	case Sacrificed:
		return &s.Sacrificed
	case Busy:
		return &s.Busy
	case Retry:
		return &s.Retry
	case PSRetry:
		return &s.PSRetry
	case Acked:
		return &s.Acked
	}
	return nil
}

// Log holds usage counters for every lane of a queue.
type Log struct {
	lanes [MaxPrec]LaneStats
}

// Inc adds one to counter c of lane prec.
func (l *Log) Inc(prec int, c Counter) { l.Add(prec, c, 1) }

// Add adds n to counter c of lane prec.
func (l *Log) Add(prec int, c Counter, n uint64) {
	if l == nil || prec < 0 || prec >= MaxPrec {
		return
	}
	if p := l.lanes[prec].field(c); p != nil {
		*p += n
	}
}

// Lane returns a copy of the counters of lane prec.
func (l *Log) Lane(prec int) LaneStats {
	if l == nil || prec < 0 || prec >= MaxPrec {
		return LaneStats{}
	}
	return l.lanes[prec]
}

// Reset zeroes every counter.
func (l *Log) Reset() {
	l.lanes = [MaxPrec]LaneStats{}
}

func (l *Log) stored(prec, laneLen int) {
	s := &l.lanes[prec]
	s.Stored++
	if laneLen > s.MaxUsed {
		s.MaxUsed = laneLen
	}
}

// EnableLog starts usage logging and returns the log. Enabling twice keeps
// the existing counters.
func (q *Queue) EnableLog() *Log {
	if q.log == nil {
		q.log = &Log{}
	}
	return q.log
}

// DisableLog stops usage logging and drops the counters.
func (q *Queue) DisableLog() { q.log = nil }

// Log returns the usage log, nil when logging is disabled.
func (q *Queue) Log() *Log { return q.log }

// Stats returns a snapshot of every active lane, nil when logging is
// disabled.
func (q *Queue) Stats() []LaneStats {
	if q.log == nil {
		return nil
	}
	out := make([]LaneStats, q.numPrec)
	for prec := range out {
		out[prec] = q.log.lanes[prec]
		out[prec].Capacity = q.lanes[prec].max
	}
	return out
}

func (q *Queue) count(prec int, c Counter) {
	if q.log != nil {
		q.log.Inc(prec, c)
	}
}
