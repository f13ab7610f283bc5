// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collector over the pool counters and the per-lane queue log.
// Values are read at scrape time under the lock that guards the pool and
// queue, so the hot path pays nothing for export.

package control

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/pktpool"
	"github.com/momentics/hioload-pktq/pktq"
)

const namespace = "pktq"

// Collector implements prometheus.Collector.
type Collector struct {
	mu   sync.Locker
	q    *pktq.Queue
	pool *pktpool.Pool

	laneCounter *prometheus.Desc
	laneLen     *prometheus.Desc
	laneMax     *prometheus.Desc
	laneMaxUsed *prometheus.Desc
	queueLen    *prometheus.Desc

	poolAvail  *prometheus.Desc
	poolOwned  *prometheus.Desc
	poolMax    *prometheus.Desc
	poolEvents *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector exports q and pool, reading them under mu. Either may be nil.
func NewCollector(mu sync.Locker, q *pktq.Queue, pool *pktpool.Pool) *Collector {
	lane := []string{"prec"}
	return &Collector{
		mu:   mu,
		q:    q,
		pool: pool,

		laneCounter: prometheus.NewDesc(prometheus.BuildFQName(namespace, "lane", "events_total"),
			"Per-lane usage counters.", []string{"prec", "counter"}, nil),
		laneLen: prometheus.NewDesc(prometheus.BuildFQName(namespace, "lane", "length"),
			"Packets queued in the lane.", lane, nil),
		laneMax: prometheus.NewDesc(prometheus.BuildFQName(namespace, "lane", "max"),
			"Lane capacity.", lane, nil),
		laneMaxUsed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "lane", "max_used"),
			"Highest lane length observed.", lane, nil),
		queueLen: prometheus.NewDesc(prometheus.BuildFQName(namespace, "queue", "length"),
			"Packets queued over all lanes.", nil, nil),

		poolAvail: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "available"),
			"Buffers ready to be checked out.", nil, nil),
		poolOwned: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "owned"),
			"Buffers owned by the pool, available or checked out.", nil, nil),
		poolMax: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "max"),
			"Pool admission ceiling.", nil, nil),
		poolEvents: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "events_total"),
			"Pool counters.", []string{"event"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.laneCounter
	ch <- c.laneLen
	ch <- c.laneMax
	ch <- c.laneMaxUsed
	ch <- c.queueLen
	ch <- c.poolAvail
	ch <- c.poolOwned
	ch <- c.poolMax
	ch <- c.poolEvents
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	var (
		state pktq.State
		lanes []pktq.LaneStats
		avail int
		owned int
		max   int
		ps    api.BufferPoolStats
	)
	if c.q != nil {
		state = c.q.State()
		lanes = c.q.Stats()
	}
	if c.pool != nil {
		avail, owned, max = c.pool.Avail(), c.pool.Len(), c.pool.MaxLen()
		ps = c.pool.Stats()
	}
	c.mu.Unlock()

	if c.q != nil {
		ch <- prometheus.MustNewConstMetric(c.queueLen, prometheus.GaugeValue, float64(state.Len))
		for prec, l := range state.Lanes {
			p := strconv.Itoa(prec)
			ch <- prometheus.MustNewConstMetric(c.laneLen, prometheus.GaugeValue, float64(l.Len), p)
			ch <- prometheus.MustNewConstMetric(c.laneMax, prometheus.GaugeValue, float64(l.Max), p)
		}
		for prec, s := range lanes {
			p := strconv.Itoa(prec)
			ch <- prometheus.MustNewConstMetric(c.laneMaxUsed, prometheus.GaugeValue, float64(s.MaxUsed), p)
			for _, ctr := range pktq.Counters() {
				ch <- prometheus.MustNewConstMetric(c.laneCounter, prometheus.CounterValue,
					float64(s.Get(ctr)), p, ctr.String())
			}
		}
	}
	if c.pool != nil {
		ch <- prometheus.MustNewConstMetric(c.poolAvail, prometheus.GaugeValue, float64(avail))
		ch <- prometheus.MustNewConstMetric(c.poolOwned, prometheus.GaugeValue, float64(owned))
		ch <- prometheus.MustNewConstMetric(c.poolMax, prometheus.GaugeValue, float64(max))
		for _, e := range []struct {
			name string
			v    uint64
		}{
			{"get", ps.Gets},
			{"get_failure", ps.GetFailures},
			{"free", ps.Frees},
			{"avail_notify", ps.AvailNotifies},
			{"empty_notify", ps.EmptyNotifies},
			{"allocated", ps.Allocated},
			{"released", ps.Released},
		} {
			ch <- prometheus.MustNewConstMetric(c.poolEvents, prometheus.CounterValue, float64(e.v), e.name)
		}
	}
}
