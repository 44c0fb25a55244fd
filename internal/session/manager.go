// Package session decides which experiment a sample belongs to. The
// manager is the only writer of experiment metadata; per-reactor state
// lives in explicit session objects it owns, never in package-level
// variables.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/addrmap"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
)

// reactorSession is one reactor's Idle <-> Running state.
type reactorSession struct {
	reactor      string
	experimentID int64
	running      bool
}

// Manager owns the logging lifecycle for every enabled reactor.
// Starting while an experiment is already running is rejected rather
// than auto-closing the prior one; the store's partial unique index
// enforces the same rule against concurrent processes.
type Manager struct {
	store ports.Store
	addrs *addrmap.Map

	mu       sync.Mutex
	sessions map[string]*reactorSession
}

func NewManager(store ports.Store, addrs *addrmap.Map) *Manager {
	m := &Manager{
		store:    store,
		addrs:    addrs,
		sessions: make(map[string]*reactorSession),
	}
	for _, r := range addrs.EnabledReactors() {
		m.sessions[r.Name] = &reactorSession{reactor: r.Name}
	}
	return m
}

// StartLogging opens a new experiment for an enabled reactor and
// returns its id.
func (m *Manager) StartLogging(ctx context.Context, reactor string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.sessions[reactor]
	if !ok {
		return 0, fmt.Errorf("reactor %s: %w", reactor, domain.ErrReactorDisabled)
	}
	if rs.running {
		return 0, fmt.Errorf("reactor %s (experiment %d): %w", reactor, rs.experimentID, domain.ErrAlreadyRunning)
	}

	id, err := m.store.StartExperiment(ctx, reactor, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	rs.experimentID = id
	rs.running = true
	log.Printf("session: started experiment %d for %s", id, reactor)
	return id, nil
}

// StopLogging closes the reactor's running experiment with an end
// timestamp of now.
func (m *Manager) StopLogging(ctx context.Context, reactor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx, reactor, time.Now().UTC())
}

func (m *Manager) stopLocked(ctx context.Context, reactor string, endedAt time.Time) error {
	rs, ok := m.sessions[reactor]
	if !ok || !rs.running {
		return fmt.Errorf("reactor %s: %w", reactor, domain.ErrNotRunning)
	}
	if err := m.store.StopExperiment(ctx, rs.experimentID, endedAt); err != nil {
		return err
	}
	log.Printf("session: stopped experiment %d for %s", rs.experimentID, reactor)
	rs.running = false
	rs.experimentID = 0
	return nil
}

// Current returns the running experiment id for a reactor, if any.
func (m *Manager) Current(reactor string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.sessions[reactor]
	if !ok || !rs.running {
		return 0, false
	}
	return rs.experimentID, true
}

// StopAll closes every running experiment; used on graceful shutdown so
// no experiment is left open for the next startup to reconcile.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	endedAt := time.Now().UTC()
	var errs []error
	for reactor, rs := range m.sessions {
		if !rs.running {
			continue
		}
		if err := m.stopLocked(ctx, reactor, endedAt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
