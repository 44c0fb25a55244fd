package sampler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/addrmap"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/adapters/mock"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/session"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/store"
)

// testObs records counters and swallows logs.
type testObs struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
}

func newTestObs() *testObs {
	return &testObs{counters: make(map[string]float64), gauges: make(map[string]float64)}
}

func (o *testObs) LogInfo(string, ...ports.Field)            {}
func (o *testObs) LogError(string, error, ...ports.Field)    {}
func (o *testObs) LogCritical(string, error, ...ports.Field) {}
func (o *testObs) ObserveLatency(string, float64)            {}
func (o *testObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[name] += v
}
func (o *testObs) SetGauge(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gauges[name] = v
}
func (o *testObs) counter(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[name]
}

var _ ports.Observability = (*testObs)(nil)

type loopHarness struct {
	loop     *Loop
	client   *mock.Client
	store    *store.SQLStore
	sessions *session.Manager
	obs      *testObs
}

func newHarness(t *testing.T, cfg Config) *loopHarness {
	t.Helper()

	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "reactors.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	addrs, err := addrmap.New(addrmap.DefaultCatalog())
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}

	client := mock.NewClient()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect mock: %v", err)
	}

	sessions := session.NewManager(s, addrs)
	obs := newTestObs()
	loop, err := NewLoop(client, s, sessions, addrs, obs, cfg)
	if err != nil {
		t.Fatalf("build loop: %v", err)
	}
	return &loopHarness{loop: loop, client: client, store: s, sessions: sessions, obs: obs}
}

func TestTickAppendsFullSample(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	if _, err := h.sessions.StartLogging(ctx, "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	h.loop.tick(ctx)

	samples, err := h.store.Query(ctx, "R0", time.Time{}, time.Now().UTC().Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	if v, ok := samples[0].Value("ph"); !ok || v != 7.0 {
		t.Fatalf("expected ph=7.0, got %v (%v)", v, ok)
	}
	if v, ok := samples[0].Value("do"); !ok || v != 8.0 {
		t.Fatalf("expected do=8.0, got %v (%v)", v, ok)
	}
	// The enum method selector must never appear in a stored sample.
	if _, ok := samples[0].Value("pwm0_method"); ok {
		t.Fatal("pwm0_method must not be logged")
	}
	if h.obs.counter("reactors_samples_logged_total") != 1 {
		t.Fatalf("expected 1 logged sample, counter %v", h.obs.counter("reactors_samples_logged_total"))
	}
}

func TestTickSkipsIdleReactor(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	// No experiment running: the tick must not read or append.
	h.loop.tick(ctx)

	samples, err := h.store.Query(ctx, "R0", time.Time{}, time.Now().UTC().Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("expected no samples, got %d", len(samples))
	}
}

func TestFailedPointBecomesNull(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	if _, err := h.sessions.StartLogging(ctx, "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	h.client.FailPoint("ns=2;i=6", errors.New("BadSensorFailure")) // do probe
	h.loop.tick(ctx)

	samples, err := h.store.Query(ctx, "R0", time.Time{}, time.Now().UTC().Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample despite the failed point, got %d", len(samples))
	}
	if _, ok := samples[0].Value("do"); ok {
		t.Fatal("expected do to be NULL for the failed probe")
	}
	if v, ok := samples[0].Value("ph"); !ok || v != 7.0 {
		t.Fatalf("other signals must be unaffected, ph=%v (%v)", v, ok)
	}
	if h.obs.counter("reactors_point_read_failures_total") != 1 {
		t.Fatalf("expected 1 point failure, counter %v", h.obs.counter("reactors_point_read_failures_total"))
	}
}

func TestConsecutiveBatchFailuresSuspend(t *testing.T) {
	h := newHarness(t, Config{FailThreshold: 3})
	ctx := context.Background()

	if _, err := h.sessions.StartLogging(ctx, "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	h.client.SetOffline(true)
	for i := 0; i < 3; i++ {
		h.loop.tick(ctx)
	}
	if !h.loop.reactors["R0"].suspended {
		t.Fatal("expected R0 suspended after 3 full-batch failures")
	}
	if h.obs.counter("reactors_batch_failures_total") != 3 {
		t.Fatalf("expected 3 batch failures, counter %v", h.obs.counter("reactors_batch_failures_total"))
	}

	// While suspended and still disconnected, the reactor is not polled.
	h.loop.tick(ctx)
	if h.obs.counter("reactors_batch_failures_total") != 3 {
		t.Fatal("suspended reactor must not accrue batch failures")
	}

	// Reconnection resumes polling on the next tick.
	h.client.SetOffline(false)
	h.loop.tick(ctx)
	if h.loop.reactors["R0"].suspended {
		t.Fatal("expected R0 resumed once the session reconnected")
	}

	samples, err := h.store.Query(ctx, "R0", time.Time{}, time.Now().UTC().Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample after resume, got %d", len(samples))
	}
}

func TestFailingReactorDoesNotAffectOthers(t *testing.T) {
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "reactors.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// Two enabled reactors; RB's only point does not exist on the
	// server, so its whole batch fails every tick.
	addrs, err := addrmap.New([]addrmap.ReactorConfig{
		{Name: "RA", Enabled: true, Signals: []addrmap.SignalConfig{{Name: "ph", NodeID: "ns=2;i=3"}}},
		{Name: "RB", Enabled: true, Signals: []addrmap.SignalConfig{{Name: "ph", NodeID: "ns=2;i=500"}}},
	})
	if err != nil {
		t.Fatalf("build map: %v", err)
	}

	client := mock.NewClient()
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	sessions := session.NewManager(s, addrs)
	obs := newTestObs()
	loop, err := NewLoop(client, s, sessions, addrs, obs, Config{FailThreshold: 3})
	if err != nil {
		t.Fatalf("build loop: %v", err)
	}

	for _, r := range []string{"RA", "RB"} {
		if _, err := sessions.StartLogging(ctx, r); err != nil {
			t.Fatalf("start %s: %v", r, err)
		}
	}

	for i := 0; i < 5; i++ {
		loop.tick(ctx)
	}

	healthy, err := s.Query(ctx, "RA", time.Time{}, time.Now().UTC().Add(time.Hour), []string{"ph"})
	if err != nil {
		t.Fatalf("query RA: %v", err)
	}
	if len(healthy) != 5 {
		t.Fatalf("expected RA sampled on every tick, got %d", len(healthy))
	}

	failing, err := s.Query(ctx, "RB", time.Time{}, time.Now().UTC().Add(time.Hour), []string{"ph"})
	if err != nil {
		t.Fatalf("query RB: %v", err)
	}
	if len(failing) != 0 {
		t.Fatalf("expected no RB samples, got %d", len(failing))
	}
	if obs.counter("reactors_batch_failures_total") == 0 {
		t.Fatal("expected batch failures recorded for RB")
	}
}

func TestPartialFailureDoesNotSuspend(t *testing.T) {
	h := newHarness(t, Config{FailThreshold: 3})
	ctx := context.Background()

	if _, err := h.sessions.StartLogging(ctx, "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	h.client.FailPoint("ns=2;i=6", errors.New("BadSensorFailure"))
	for i := 0; i < 5; i++ {
		h.loop.tick(ctx)
	}
	if h.loop.reactors["R0"].suspended {
		t.Fatal("partial samples must not count toward suspension")
	}
	if h.obs.counter("reactors_batch_failures_total") != 0 {
		t.Fatalf("expected no batch failures, counter %v", h.obs.counter("reactors_batch_failures_total"))
	}
}

// flakyStore fails appends until allowed, to exercise retry and the
// pending queue.
type flakyStore struct {
	ports.Store
	mu    sync.Mutex
	fails int
}

func (f *flakyStore) AppendSample(ctx context.Context, s *domain.Sample) error {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return &domain.StoreError{Op: "append", Err: errors.New("disk unavailable")}
	}
	f.mu.Unlock()
	return f.Store.AppendSample(ctx, s)
}

func (f *flakyStore) allow() {
	f.mu.Lock()
	f.fails = 0
	f.mu.Unlock()
}

func TestFailedAppendParksAndDrains(t *testing.T) {
	h := newHarness(t, Config{StoreRetries: 2})
	ctx := context.Background()

	if _, err := h.sessions.StartLogging(ctx, "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	flaky := &flakyStore{Store: h.store, fails: 100}
	h.loop.store = flaky

	h.loop.tick(ctx)
	if h.loop.pending.len() != 1 {
		t.Fatalf("expected 1 parked sample, got %d", h.loop.pending.len())
	}
	if h.obs.counter("reactors_store_retries_total") != 2 {
		t.Fatalf("expected 2 retries, counter %v", h.obs.counter("reactors_store_retries_total"))
	}

	// Store recovers: the next tick drains the parked sample first, then
	// appends its own.
	flaky.allow()
	h.loop.tick(ctx)
	if h.loop.pending.len() != 0 {
		t.Fatalf("expected drained queue, got %d", h.loop.pending.len())
	}

	samples, err := h.store.Query(ctx, "R0", time.Time{}, time.Now().UTC().Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected both ticks persisted, got %d", len(samples))
	}
	if !samples[0].Timestamp.Before(samples[1].Timestamp) {
		t.Fatal("expected the parked sample appended before the new one")
	}
}

func TestRecoveryKeepsParkedSamplesFirst(t *testing.T) {
	h := newHarness(t, Config{StoreRetries: 1})
	ctx := context.Background()

	if _, err := h.sessions.StartLogging(ctx, "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	// The store fails tick 1's append (both attempts) and tick 2's
	// drain, then recovers mid-tick: tick 2's own sample must queue
	// behind the parked one instead of committing ahead of it.
	flaky := &flakyStore{Store: h.store, fails: 3}
	h.loop.store = flaky

	h.loop.tick(ctx)
	if h.loop.pending.len() != 1 {
		t.Fatalf("expected 1 parked sample after tick 1, got %d", h.loop.pending.len())
	}
	h.loop.tick(ctx)
	if h.loop.pending.len() != 2 {
		t.Fatalf("expected tick 2's sample queued behind the parked one, got %d", h.loop.pending.len())
	}

	h.loop.tick(ctx)
	if h.loop.pending.len() != 0 {
		t.Fatalf("expected drained queue, got %d", h.loop.pending.len())
	}

	samples, err := h.store.Query(ctx, "R0", time.Time{}, time.Now().UTC().Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected all 3 read samples persisted, got %d", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if !samples[i-1].Timestamp.Before(samples[i].Timestamp) {
			t.Fatalf("samples out of order: %s then %s", samples[i-1].Timestamp, samples[i].Timestamp)
		}
	}
}

func TestPendingOverflowCountsLost(t *testing.T) {
	h := newHarness(t, Config{StoreRetries: 1, PendingLimit: 1})
	ctx := context.Background()

	if _, err := h.sessions.StartLogging(ctx, "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	h.loop.store = &flakyStore{Store: h.store, fails: 1 << 20}
	h.loop.tick(ctx)
	h.loop.tick(ctx)

	if h.loop.pending.len() != 1 {
		t.Fatalf("expected pending capped at 1, got %d", h.loop.pending.len())
	}
	if h.obs.counter("reactors_samples_lost_total") != 1 {
		t.Fatalf("expected 1 lost sample, counter %v", h.obs.counter("reactors_samples_lost_total"))
	}
}

func TestReadFailureSuspensionPausesPolling(t *testing.T) {
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "reactors.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// The session stays healthy; the reactor's only point is a bad
	// address, so every batch dies point by point.
	addrs, err := addrmap.New([]addrmap.ReactorConfig{
		{Name: "R0", Enabled: true, Signals: []addrmap.SignalConfig{{Name: "ph", NodeID: "ns=2;i=500"}}},
	})
	if err != nil {
		t.Fatalf("build map: %v", err)
	}

	client := mock.NewClient()
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	sessions := session.NewManager(s, addrs)
	obs := newTestObs()
	loop, err := NewLoop(client, s, sessions, addrs, obs, Config{FailThreshold: 2})
	if err != nil {
		t.Fatalf("build loop: %v", err)
	}
	if _, err := sessions.StartLogging(ctx, "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	loop.tick(ctx)
	loop.tick(ctx)
	if !loop.reactors["R0"].suspended {
		t.Fatal("expected suspension after 2 batch failures")
	}
	if got := obs.counter("reactors_batch_failures_total"); got != 2 {
		t.Fatalf("expected 2 batch failures, counter %v", got)
	}

	// The session never dropped, so resume is paced instead of
	// immediate: the next FailThreshold ticks must not poll.
	loop.tick(ctx)
	loop.tick(ctx)
	if got := obs.counter("reactors_batch_failures_total"); got != 2 {
		t.Fatalf("expected no polling while paused, counter %v", got)
	}

	// Pause over: one probe tick polls again and fails again.
	loop.tick(ctx)
	if got := obs.counter("reactors_batch_failures_total"); got != 3 {
		t.Fatalf("expected a probe poll after the pause, counter %v", got)
	}
}

func TestUnloggableSignalExcludesReactor(t *testing.T) {
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "reactors.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	addrs, err := addrmap.New([]addrmap.ReactorConfig{{
		Name:    "R0",
		Enabled: true,
		Signals: []addrmap.SignalConfig{
			{Name: "ph", NodeID: "ns=2;i=3"},
			{Name: "turbidity", NodeID: "ns=2;i=99"},
		},
	}})
	if err != nil {
		t.Fatalf("build map: %v", err)
	}

	client := mock.NewClient()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	loop, err := NewLoop(client, s, session.NewManager(s, addrs), addrs, newTestObs(), Config{})
	if err != nil {
		t.Fatalf("build loop: %v", err)
	}
	if !loop.reactors["R0"].excluded {
		t.Fatal("expected R0 excluded for the unmapped turbidity signal")
	}
}

func TestRunFinishesInFlightTick(t *testing.T) {
	h := newHarness(t, Config{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := h.sessions.StartLogging(context.Background(), "R0"); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}

	samples, err := h.store.Query(context.Background(), "R0", time.Time{}, time.Now().UTC().Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(samples) == 0 {
		t.Fatal("expected samples from the running loop")
	}
}
