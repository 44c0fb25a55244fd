package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromObsMetrics(t *testing.T) {
	obs := newPromObs(prometheus.NewRegistry())

	obs.IncCounter("reactors_samples_logged_total", 5)
	if got := testutil.ToFloat64(obs.counters["reactors_samples_logged_total"]); got != 5 {
		t.Fatalf("expected logged counter 5, got %f", got)
	}

	obs.IncCounter("reactors_point_read_failures_total", 2)
	if got := testutil.ToFloat64(obs.counters["reactors_point_read_failures_total"]); got != 2 {
		t.Fatalf("expected point failure counter 2, got %f", got)
	}

	obs.SetGauge("reactors_pending_samples", 42)
	if got := testutil.ToFloat64(obs.gauges["reactors_pending_samples"]); got != 42 {
		t.Fatalf("expected pending gauge 42, got %f", got)
	}

	obs.ObserveLatency("reactors_append_latency_seconds", 0.5)
	hCollector := obs.histos["reactors_append_latency_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	// Unknown series are ignored rather than panicking mid-tick.
	obs.IncCounter("reactors_unknown_total", 1)
	obs.SetGauge("reactors_unknown", 1)
	obs.ObserveLatency("reactors_unknown_seconds", 1)
}
