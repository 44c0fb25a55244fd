// Package sampler drives the periodic polling of every enabled reactor
// and turns each tick's readings into durable samples.
package sampler

import (
	"context"
	"errors"
	"time"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/addrmap"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/session"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/store"
)

// Config tunes the loop's cadence and failure handling.
type Config struct {
	Interval      time.Duration `yaml:"interval"`
	FailThreshold int           `yaml:"fail_threshold"`
	StoreRetries  int           `yaml:"store_retries"`
	PendingLimit  int           `yaml:"pending_limit"`
}

func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.FailThreshold <= 0 {
		c.FailThreshold = 3
	}
	if c.StoreRetries <= 0 {
		c.StoreRetries = 3
	}
	if c.PendingLimit <= 0 {
		c.PendingLimit = 10_000
	}
}

// reactorPoll is the loop's per-reactor polling state. The signal and
// NodeId slices are parallel and fixed at validation time so every
// batch read has the same layout.
type reactorPoll struct {
	name        string
	signals     []domain.SignalPoint
	nodeIDs     []string
	consecFails int
	suspended   bool
	excluded    bool

	// connLoss records whether the suspension was caused by transport
	// failures; such a reactor resumes when the session reconnects.
	// Read-caused suspensions (session healthy, points failing) instead
	// pause for resumeWait ticks before the next probe.
	connLoss   bool
	resumeWait int
}

// Loop polls every enabled reactor with a running experiment once per
// interval, one shared timestamp per tick. It owns the protocol session
// exclusively; the display opens its own.
type Loop struct {
	client   ports.ProtocolClient
	store    ports.Store
	sessions *session.Manager
	obs      ports.Observability
	cfg      Config

	order    []string
	reactors map[string]*reactorPoll
	pending  *pendingQueue
}

// NewLoop validates the address map against the loggable signal set and
// builds the per-reactor polling plans. A reactor whose configuration
// cannot be resolved is excluded here, reported, and never polled; the
// rest of the rack is unaffected.
func NewLoop(client ports.ProtocolClient, st ports.Store, sessions *session.Manager, addrs *addrmap.Map, obs ports.Observability, cfg Config) (*Loop, error) {
	cfg.ApplyDefaults()

	loggable := make(map[string]bool)
	for _, sig := range store.LoggableSignals() {
		loggable[sig] = true
	}

	l := &Loop{
		client:   client,
		store:    st,
		sessions: sessions,
		obs:      obs,
		cfg:      cfg,
		reactors: make(map[string]*reactorPoll),
		pending:  newPendingQueue(cfg.PendingLimit),
	}

	for _, r := range addrs.EnabledReactors() {
		rp := &reactorPoll{name: r.Name}
		points, err := addrs.EnabledSignals(r.Name)
		if err != nil {
			obs.LogError("reactor_excluded", err, ports.Field{Key: "reactor", Value: r.Name})
			rp.excluded = true
		}
		for _, sp := range points {
			if sp.Kind != domain.KindNumeric {
				// Boolean/enum points stay addressable through the
				// client but are not logged; announce once so the
				// omission is visible rather than silent.
				obs.LogInfo("signal_not_logged",
					ports.Field{Key: "reactor", Value: r.Name},
					ports.Field{Key: "signal", Value: sp.Name},
					ports.Field{Key: "kind", Value: string(sp.Kind)})
				continue
			}
			if !loggable[sp.Name] {
				obs.LogError("reactor_excluded",
					&domain.UnknownSignalError{Reactor: r.Name, Signal: sp.Name},
					ports.Field{Key: "reactor", Value: r.Name})
				rp.excluded = true
				break
			}
			rp.signals = append(rp.signals, sp)
			rp.nodeIDs = append(rp.nodeIDs, sp.NodeID)
		}
		if !rp.excluded && len(rp.signals) == 0 {
			obs.LogError("reactor_excluded",
				errors.New("no loggable signals configured"),
				ports.Field{Key: "reactor", Value: r.Name})
			rp.excluded = true
		}
		l.order = append(l.order, r.Name)
		l.reactors[r.Name] = rp
	}
	return l, nil
}

// Run polls until the context is cancelled. The tick in flight always
// finishes: reads are cut short by cancellation, but appends for values
// already read complete so nothing successfully sampled is dropped.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	start := time.Now()
	ts := start.UTC()

	// Appends outlast cancellation: a tick in flight is finished, not
	// abandoned, and only new work stops.
	appendCtx := context.WithoutCancel(ctx)

	l.drainPending(appendCtx)

	suspended := 0
	for _, name := range l.order {
		rp := l.reactors[name]
		if rp.excluded {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		expID, running := l.sessions.Current(name)
		if !running {
			continue
		}

		if rp.suspended {
			if rp.connLoss {
				if l.client.State() != ports.StateConnected {
					suspended++
					continue
				}
			} else if rp.resumeWait > 0 {
				rp.resumeWait--
				suspended++
				continue
			}
			l.obs.LogInfo("reactor_resumed", ports.Field{Key: "reactor", Value: name})
			rp.suspended = false
			rp.consecFails = 0
		}

		results := l.client.ReadBatch(ctx, rp.nodeIDs)
		values := l.assemble(rp, results)

		if len(values) == 0 {
			// Full-batch failure: nothing was readable this tick.
			rp.consecFails++
			l.obs.IncCounter("reactors_batch_failures_total", 1)
			if rp.consecFails >= l.cfg.FailThreshold && !rp.suspended {
				rp.suspended = true
				rp.connLoss = batchConnectionLoss(results)
				rp.resumeWait = l.cfg.FailThreshold
				suspended++
				l.obs.LogError("reactor_suspended",
					errors.New("consecutive batch failures reached threshold"),
					ports.Field{Key: "reactor", Value: name},
					ports.Field{Key: "failures", Value: rp.consecFails})
			}
			continue
		}
		rp.consecFails = 0

		l.append(appendCtx, &domain.Sample{
			ExperimentID: expID,
			Reactor:      name,
			Timestamp:    ts,
			Values:       values,
		})
	}

	l.obs.SetGauge("reactors_suspended", float64(suspended))
	l.obs.SetGauge("reactors_pending_samples", float64(l.pending.len()))
	l.obs.ObserveLatency("reactors_tick_duration_seconds", time.Since(start).Seconds())
}

// batchConnectionLoss reports whether a failed batch died at the
// transport level rather than point by point.
func batchConnectionLoss(results []ports.PointResult) bool {
	for _, res := range results {
		var connErr *domain.ConnectionError
		if errors.As(res.Err, &connErr) {
			return true
		}
	}
	return false
}

// assemble converts a batch's per-point outcomes into the tick's value
// map. A failed point is logged and left out; it becomes NULL in the
// stored row without touching the other signals.
func (l *Loop) assemble(rp *reactorPoll, results []ports.PointResult) map[string]float64 {
	values := make(map[string]float64, len(results))
	for i, res := range results {
		sig := rp.signals[i]
		if res.Err != nil {
			l.obs.IncCounter("reactors_point_read_failures_total", 1)
			l.obs.LogError("point_read_failed", res.Err,
				ports.Field{Key: "reactor", Value: rp.name},
				ports.Field{Key: "signal", Value: sig.Name})
			continue
		}
		v, ok := toFloat64(res.Value)
		if !ok {
			l.obs.LogInfo("non_numeric_value_skipped",
				ports.Field{Key: "reactor", Value: rp.name},
				ports.Field{Key: "signal", Value: sig.Name})
			continue
		}
		values[sig.Name] = v
	}
	return values
}

// append writes one sample, retrying a bounded number of times before
// parking it in the pending queue for the next tick. Structural
// failures (closed experiment, timestamp regression) cannot succeed on
// retry and are dropped loudly.
//
// Write order is pending-first: while older samples are parked, newer
// ones queue behind them rather than committing ahead. A newer sample
// landing first would turn the eventual drain of the older one into a
// timestamp regression and lose it.
func (l *Loop) append(ctx context.Context, s *domain.Sample) {
	if l.pending.len() > 0 {
		l.park(s)
		return
	}

	var err error
	for attempt := 0; attempt <= l.cfg.StoreRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				break
			}
			l.obs.IncCounter("reactors_store_retries_total", 1)
		}
		start := time.Now()
		err = l.store.AppendSample(ctx, s)
		if err == nil {
			l.obs.ObserveLatency("reactors_append_latency_seconds", time.Since(start).Seconds())
			l.obs.IncCounter("reactors_samples_logged_total", 1)
			return
		}
		if errors.Is(err, domain.ErrExperimentClosed) || errors.Is(err, domain.ErrTimestampRegression) {
			l.obs.LogError("sample_dropped", err, ports.Field{Key: "reactor", Value: s.Reactor})
			return
		}
	}

	l.obs.LogCritical("store_append_failed", err, ports.Field{Key: "reactor", Value: s.Reactor})
	l.park(s)
}

func (l *Loop) park(s *domain.Sample) {
	if !l.pending.push(s) {
		l.obs.IncCounter("reactors_samples_lost_total", 1)
		l.obs.LogCritical("pending_queue_full", errors.New("sample lost"),
			ports.Field{Key: "reactor", Value: s.Reactor})
	}
}

// drainPending replays parked samples oldest-first. The first failure
// stops the drain so per-reactor ordering is preserved.
func (l *Loop) drainPending(ctx context.Context) {
	for {
		s := l.pending.peek()
		if s == nil {
			return
		}
		err := l.store.AppendSample(ctx, s)
		if err == nil {
			l.pending.pop()
			l.obs.IncCounter("reactors_samples_logged_total", 1)
			continue
		}
		if errors.Is(err, domain.ErrExperimentClosed) || errors.Is(err, domain.ErrTimestampRegression) {
			l.obs.LogError("sample_dropped", err, ports.Field{Key: "reactor", Value: s.Reactor})
			l.pending.pop()
			continue
		}
		return
	}
}
