package observability

import (
	"fmt"
	"log"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
)

// PromObs backs the observability port with Prometheus series plus
// plain stdlib logging.
type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs() *PromObs {
	return newPromObs(prometheus.DefaultRegisterer)
}

func newPromObs(reg prometheus.Registerer) *PromObs {
	logged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactors_samples_logged_total",
		Help: "Samples durably appended to the experiment store.",
	})
	pointFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactors_point_read_failures_total",
		Help: "Individual point reads that failed inside a batch.",
	})
	batchFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactors_batch_failures_total",
		Help: "Ticks in which an entire reactor batch failed to read.",
	})
	storeRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactors_store_retries_total",
		Help: "Bounded retries of a failed store append.",
	})
	lost := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactors_samples_lost_total",
		Help: "Samples dropped after the pending queue overflowed.",
	})
	suspendedGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactors_suspended",
		Help: "Reactors currently suspended from polling.",
	})
	pendingGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactors_pending_samples",
		Help: "Samples parked awaiting a store retry.",
	})
	appendLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reactors_append_latency_seconds",
		Help:    "Latency of a durable sample append.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reactors_tick_duration_seconds",
		Help:    "Wall time of one full poll tick across all reactors.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(logged, pointFails, batchFails, storeRetries, lost,
		suspendedGauge, pendingGauge, appendLatency, tickDuration)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"reactors_samples_logged_total":      logged,
			"reactors_point_read_failures_total": pointFails,
			"reactors_batch_failures_total":      batchFails,
			"reactors_store_retries_total":       storeRetries,
			"reactors_samples_lost_total":        lost,
		},
		gauges: map[string]prometheus.Gauge{
			"reactors_suspended":       suspendedGauge,
			"reactors_pending_samples": pendingGauge,
		},
		histos: map[string]prometheus.Observer{
			"reactors_append_latency_seconds": appendLatency,
			"reactors_tick_duration_seconds":  tickDuration,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	log.Printf("INFO: %s%s", msg, formatFields(fields))
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	log.Printf("ERROR: %s%s: %v", msg, formatFields(fields), err)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	log.Printf("CRITICAL: %s%s: %v", msg, formatFields(fields), err)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func formatFields(fields []ports.Field) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

var _ ports.Observability = (*PromObs)(nil)
