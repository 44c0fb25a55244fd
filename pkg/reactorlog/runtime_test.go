package reactorlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/store"
)

// nopObs keeps runtime tests off the process-global Prometheus
// registry, which tolerates each series only once.
type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)            {}
func (nopObs) LogError(string, error, ...ports.Field)    {}
func (nopObs) LogCritical(string, error, ...ports.Field) {}
func (nopObs) IncCounter(string, float64)                {}
func (nopObs) ObserveLatency(string, float64)            {}
func (nopObs) SetGauge(string, float64)                  {}

func testConfig(t *testing.T) (*Config, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "reactors.db")
	cfg := &Config{}
	cfg.OPCUA.Endpoint = "mock"
	cfg.Store.DSN = dsn
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Sampler.Interval = 20 * time.Millisecond
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg, dsn
}

func TestRuntimeSamplesAndShutsDownCleanly(t *testing.T) {
	cfg, dsn := testConfig(t)

	rt, err := New(cfg, WithObservability(nopObs{}))
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runtime exited with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not shut down")
	}

	// Reopen the database: samples were logged for R0 and the graceful
	// shutdown left no experiment open.
	s, err := store.Open(store.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	samples, err := s.Query(context.Background(), "R0", time.Time{}, time.Now().UTC().Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(samples) == 0 {
		t.Fatal("expected logged samples for R0")
	}
	if v, ok := samples[0].Value("ph"); !ok || v < 6.5 || v > 7.5 {
		t.Fatalf("expected pH near 7.0, got %v (%v)", v, ok)
	}

	open, err := s.ListOpen(context.Background())
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected clean shutdown to close experiments, %d still open", len(open))
	}
}

func TestRuntimeRecoversCrashedExperiments(t *testing.T) {
	cfg, dsn := testConfig(t)

	// Simulate a crash: an experiment left running with no end timestamp.
	s, err := store.Open(store.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := s.StartExperiment(context.Background(), "R0", time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("seed open experiment: %v", err)
	}
	_ = s.Close()

	rt, err := New(cfg, WithObservability(nopObs{}))
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runtime exited with error: %v", err)
	}

	// The stale experiment was closed at startup; a fresh one was opened
	// for the new run and closed again on shutdown.
	s, err = store.Open(store.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	open, err := s.ListOpen(context.Background())
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open experiments, got %d", len(open))
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
