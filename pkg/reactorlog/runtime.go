// Package reactorlog wires the sampling loop, session manager, store
// and protocol client into one embeddable runtime and exposes simple
// lifecycle hooks for the daemon and for tests.
package reactorlog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/addrmap"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/adapters/mock"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/adapters/observability"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/adapters/opcua"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/app/config"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/app/sampler"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/session"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/store"
)

// Config is the daemon's full configuration surface.
type Config = config.Config

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Option overrides one of the runtime's dependencies, mainly so tests
// and embedders can swap the protocol client or the store.
type Option func(*overrides)

type overrides struct {
	client ports.ProtocolClient
	store  ports.Store
	obs    ports.Observability
}

// WithClient injects a custom protocol client implementation.
func WithClient(c ports.ProtocolClient) Option {
	return func(o *overrides) { o.client = c }
}

// WithStore injects a custom store implementation.
func WithStore(s ports.Store) Option {
	return func(o *overrides) { o.store = s }
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// Runtime owns every component of the sampling daemon.
type Runtime struct {
	cfg      *Config
	obs      ports.Observability
	client   ports.ProtocolClient
	store    ports.Store
	addrs    *addrmap.Map
	sessions *session.Manager
	loop     *sampler.Loop

	metricsSrv *http.Server
}

// New builds a runtime from configuration. The protocol client is the
// real OPC UA adapter unless the endpoint selects the built-in mock
// (endpoint "mock"), so switching servers is a config change only.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var ov overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&ov)
		}
	}

	obs := ov.obs
	if obs == nil {
		obs = observability.NewPromObs()
	}

	addrs, err := addrmap.New(cfg.Reactors)
	if err != nil {
		return nil, err
	}

	st := ov.store
	if st == nil {
		st, err = store.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
	}

	client := ov.client
	if client == nil {
		if strings.HasPrefix(cfg.OPCUA.Endpoint, "mock") {
			mc := mock.NewClient()
			mc.StartDrift(time.Second)
			client = mc
		} else {
			client, err = opcua.NewClient(cfg.OPCUA)
			if err != nil {
				return nil, err
			}
		}
	}

	sessions := session.NewManager(st, addrs)
	loop, err := sampler.NewLoop(client, st, sessions, addrs, obs, cfg.Sampler)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		cfg:      cfg,
		obs:      obs,
		client:   client,
		store:    st,
		addrs:    addrs,
		sessions: sessions,
		loop:     loop,
	}, nil
}

// Store exposes the experiment store's read path for external
// consumers (the display queries it directly).
func (r *Runtime) Store() ports.Store { return r.store }

// Client exposes the protocol session owned by the runtime. The
// display must open its own session for live control; this one belongs
// to the sampling loop.
func (r *Runtime) Client() ports.ProtocolClient { return r.client }

// Sessions exposes the session manager for operator start/stop calls.
func (r *Runtime) Sessions() *session.Manager { return r.sessions }

// Run starts everything and blocks until the context is cancelled,
// then shuts down gracefully: the in-flight tick completes, running
// experiments are closed with an end timestamp, and the protocol
// session is released.
func (r *Runtime) Run(ctx context.Context) error {
	recovered, err := r.store.RecoverOpen(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if recovered > 0 {
		log.Printf("runtime: closed %d experiment(s) left open by a previous run", recovered)
	}

	if err := r.connectWithRetry(ctx); err != nil {
		return err
	}

	for _, reactor := range r.addrs.EnabledReactors() {
		if _, err := r.sessions.StartLogging(ctx, reactor.Name); err != nil {
			r.obs.LogError("start_logging_failed", err, ports.Field{Key: "reactor", Value: reactor.Name})
		}
	}

	r.startMetrics()

	loopErr := r.loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(loopErr, r.Shutdown(shutdownCtx))
}

// connectWithRetry dials the automation server until it succeeds or
// the context is cancelled; the daemon never gives up on a server that
// is merely restarting.
func (r *Runtime) connectWithRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.OPCUA.ReconnectInitial
	bo.MaxInterval = r.cfg.OPCUA.ReconnectMax
	bo.MaxElapsedTime = 0

	for {
		err := r.client.Connect(ctx)
		if err == nil {
			return nil
		}
		wait := bo.NextBackOff()
		r.obs.LogError("connect_failed", err, ports.Field{Key: "retry_in", Value: wait.String()})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Shutdown closes experiments, the protocol session, the metrics
// server and the store.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if err := r.sessions.StopAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.client.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if err := r.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()
}
