// File: cmd/pktqsim/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// pktqsim drives the transmit path against a simulated device: a producer
// offers packets at random precedences, a service loop posts them to the
// device ring, and a device goroutine, pinned to a CPU, completes them.
// Metrics and debug state are served over HTTP; the config file is
// reloaded on change.

package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-pktq/affinity"
	"github.com/momentics/hioload-pktq/api"
	"github.com/momentics/hioload-pktq/control"
	"github.com/momentics/hioload-pktq/internal/concurrency"
	"github.com/momentics/hioload-pktq/internal/log"
	"github.com/momentics/hioload-pktq/pkt"
	"github.com/momentics/hioload-pktq/pktpool"
	"github.com/momentics/hioload-pktq/pktq"
	"github.com/momentics/hioload-pktq/txpath"
)

type options struct {
	config   string
	duration time.Duration
	rate     int
	payload  int
	budget   int
	reap     time.Duration
	loss     float64
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "JSON config file; built-in defaults when empty")
	flag.DurationVar(&o.duration, "duration", 10*time.Second, "run time, 0 runs until interrupted")
	flag.IntVar(&o.rate, "rate", 20000, "packets per second offered by the producer")
	flag.IntVar(&o.payload, "payload", 256, "payload bytes per packet")
	flag.IntVar(&o.budget, "budget", 16, "packets posted per service pass")
	flag.DurationVar(&o.reap, "reap", 50*time.Microsecond, "simulated device completion delay")
	flag.Float64Var(&o.loss, "loss", 0.01, "fraction of posted packets the device reports undelivered")
	flag.Parse()
	defer log.Flush()

	if err := run(o); err != nil {
		log.Errorf("pktqsim: %v", err)
		log.Flush()
		os.Exit(1)
	}
}

func run(o options) error {
	cfg := control.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = control.LoadConfig(o.config); err != nil {
			return err
		}
	}
	if o.payload > cfg.BufLen {
		return errors.Wrapf(api.ErrInvalidArgument, "payload %d > buf_len %d", o.payload, cfg.BufLen)
	}
	store := control.NewConfigStore(cfg)

	var alloc api.Allocator
	if cfg.MmapBuffers {
		alloc = pkt.NewPageAllocator()
	}
	arena := pkt.NewArena(cfg.ArenaSlots, alloc)

	pool, err := pktpool.InitShared(arena, cfg.PoolLen, cfg.BufLen, cfg.IsTx)
	if err != nil {
		return err
	}
	defer func() {
		if err := pktpool.DeinitShared(); err != nil {
			log.Warningf("pktqsim: %v", err)
		}
	}()

	q, err := pktq.New(arena, cfg.NumPrec, cfg.QueueMax)
	if err != nil {
		return err
	}
	for prec := range q.Precs() {
		if err := q.SetLaneMax(prec, cfg.LaneMax); err != nil {
			return err
		}
	}
	if cfg.LogCounters {
		q.EnableLog()
	}

	dev := concurrency.NewDescRing[pkt.Handle](cfg.DeviceRing)
	path, err := txpath.New(arena, pool, q, dev, txpath.Options{
		Bitmap:  pktq.PrecBitmap(cfg.ServiceBitmap),
		Backlog: cfg.Backlog,
	})
	if err != nil {
		return err
	}
	store.OnReload(func(c control.Config) {
		if err := path.Reconfigure(limits(c)); err != nil {
			log.Warningf("pktqsim: reconfigure: %v", err)
		}
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(control.NewCollector(path.Locker(), q, pool))

	probes := control.NewDebugProbes()
	control.RegisterQueueProbes(probes, path.Locker(), q, pool)
	control.RegisterPlatformProbes(probes)
	probes.RegisterProbe("txpath", func() any { return path.Stats() })
	probes.RegisterProbe("config", func() any { return store.Get() })

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if o.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: router(reg, probes)}
		g.Go(func() error {
			log.Infof("pktqsim: serving metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}
	if o.config != "" {
		g.Go(func() error { return control.Watch(ctx, o.config, store) })
	}
	g.Go(func() error { return produce(ctx, path, cfg.NumPrec, o) })
	g.Go(func() error { return service(ctx, path, o.budget) })
	g.Go(func() error { return device(ctx, path, dev, cfg.CPU, o) })

	err = g.Wait()

	n := path.Drain()
	for {
		h, ok := dev.Dequeue()
		if !ok {
			break
		}
		if cerr := path.Complete(h); cerr != nil {
			log.Warningf("pktqsim: %v", cerr)
		}
		n++
	}
	s := path.Stats()
	log.Infof("pktqsim: sent=%d posted=%d completed=%d dropped=%d nobuf=%d busy=%d retried=%d resumes=%d drained=%d",
		s.Sent, s.Posted, s.Completed, s.Dropped, s.NoBuffer, s.Busy, s.Retried, s.Resumes, n)
	return err
}

func limits(c control.Config) txpath.Limits {
	return txpath.Limits{
		LaneMax:  c.LaneMax,
		QueueMax: c.QueueMax,
		PoolLen:  c.PoolLen,
		Bitmap:   pktq.PrecBitmap(c.ServiceBitmap),
	}
}

func router(reg *prometheus.Registry, probes *control.DebugProbes) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, probes.DumpState())
	}).Methods(http.MethodGet)
	r.HandleFunc("/debug/state/{probe}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["probe"]
		state := probes.DumpState()
		v, ok := state[name]
		if !ok {
			writeError(w, http.StatusNotFound,
				api.NewError(api.ErrCodeNotFound, "unknown probe").WithContext("probe", name))
			return
		}
		writeJSON(w, v)
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeError(w http.ResponseWriter, status int, e *api.Error) {
	writeJSONStatus(w, status, e)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// produce offers packets at o.rate, backing off while the path is throttled.
func produce(ctx context.Context, path *txpath.Path, numPrec int, o options) error {
	if o.rate <= 0 {
		<-ctx.Done()
		return nil
	}
	rng := rand.New(rand.NewPCG(1, uint64(time.Now().UnixNano())))
	payload := make([]byte, o.payload)
	period := time.Second / time.Duration(o.rate)
	if period <= 0 {
		period = time.Nanosecond
	}
	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		prec := rng.IntN(numPrec)
		if len(payload) > 0 {
			payload[0] = byte(prec)
		}
		err := path.Send(prec, payload)
		switch {
		case err == nil, errors.Is(err, txpath.ErrDropped):
		case errors.Is(err, txpath.ErrNoBuffer):
			select {
			case <-ctx.Done():
				return nil
			case <-path.Resumed():
			}
		default:
			return err
		}
	}
}

// service posts queued packets to the device ring.
func service(ctx context.Context, path *txpath.Path, budget int) error {
	idle := time.NewTicker(100 * time.Microsecond)
	defer idle.Stop()
	for ctx.Err() == nil {
		if path.Service(budget) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
	return nil
}

// device reaps posted descriptors and reports completion, or a failed
// delivery for a fraction o.loss of them. It runs pinned to cpu when cpu is
// not negative.
func device(ctx context.Context, path *txpath.Path, dev *concurrency.DescRing[pkt.Handle], cpu int, o options) error {
	unpin, err := affinity.Pin(cpu)
	defer unpin()
	if err != nil {
		log.Warningf("pktqsim: device thread not pinned: %v", err)
	}

	rng := rand.New(rand.NewPCG(2, uint64(time.Now().UnixNano())))
	delay := o.reap
	if delay <= 0 {
		delay = time.Microsecond
	}
	tick := time.NewTicker(delay)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		for {
			h, ok := dev.Dequeue()
			if !ok {
				break
			}
			if rng.Float64() < o.loss {
				if err := path.Retry(h); err != nil && !errors.Is(err, txpath.ErrDropped) {
					return err
				}
				continue
			}
			if err := path.Complete(h); err != nil {
				return err
			}
		}
	}
}
