package addrmap

import (
	"fmt"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
)

// SignalConfig is one logical-name-to-NodeId binding in the catalog.
type SignalConfig struct {
	Name   string           `yaml:"name"`
	NodeID string           `yaml:"node_id"`
	Kind   domain.ValueKind `yaml:"kind"`
}

// ReactorConfig is a reactor's full address set. Hardware NodeIds are
// finalized incrementally per reactor, so placeholder reactors ship
// disabled with an empty signal list and flip on without code changes.
type ReactorConfig struct {
	Name    string            `yaml:"name"`
	Enabled bool              `yaml:"enabled"`
	Signals []SignalConfig    `yaml:"signals"`
	Methods map[string]string `yaml:"methods"`
}

type entry struct {
	reactor domain.Reactor
	signals []domain.SignalPoint
	byName  map[string]domain.SignalPoint
	methods map[string]string
}

// Map is the static, reactor-scoped catalog mapping logical signal
// names to protocol addresses. It is built once at startup and never
// mutated afterwards, so it is safe for concurrent readers.
type Map struct {
	order   []string
	entries map[string]*entry
}

// New builds the catalog from configuration, preserving declaration
// order for both reactors and their signals.
func New(cfgs []ReactorConfig) (*Map, error) {
	m := &Map{entries: make(map[string]*entry, len(cfgs))}
	for _, rc := range cfgs {
		if rc.Name == "" {
			return nil, fmt.Errorf("addrmap: reactor with empty name")
		}
		if _, dup := m.entries[rc.Name]; dup {
			return nil, fmt.Errorf("addrmap: duplicate reactor %q", rc.Name)
		}
		e := &entry{
			reactor: domain.Reactor{Name: rc.Name, Enabled: rc.Enabled},
			byName:  make(map[string]domain.SignalPoint, len(rc.Signals)),
			methods: rc.Methods,
		}
		for _, sc := range rc.Signals {
			if sc.Name == "" || sc.NodeID == "" {
				return nil, fmt.Errorf("addrmap: reactor %s: signal needs both name and node_id", rc.Name)
			}
			if _, dup := e.byName[sc.Name]; dup {
				return nil, fmt.Errorf("addrmap: reactor %s: duplicate signal %q", rc.Name, sc.Name)
			}
			kind := sc.Kind
			if kind == "" {
				kind = domain.KindNumeric
			}
			sp := domain.SignalPoint{
				Reactor: rc.Name,
				Name:    sc.Name,
				NodeID:  sc.NodeID,
				Kind:    kind,
			}
			e.signals = append(e.signals, sp)
			e.byName[sc.Name] = sp
		}
		m.order = append(m.order, rc.Name)
		m.entries[rc.Name] = e
	}
	return m, nil
}

// Resolve maps (reactor, signal) to a protocol address.
func (m *Map) Resolve(reactor, signal string) (string, error) {
	e, ok := m.entries[reactor]
	if ok {
		if sp, ok := e.byName[signal]; ok {
			return sp.NodeID, nil
		}
	}
	return "", &domain.UnknownSignalError{Reactor: reactor, Signal: signal}
}

// EnabledReactors returns the reactors eligible for polling, in catalog
// order. Disabled and placeholder reactors are excluded here and only
// here; nothing else re-checks the flag.
func (m *Map) EnabledReactors() []domain.Reactor {
	out := make([]domain.Reactor, 0, len(m.order))
	for _, name := range m.order {
		if e := m.entries[name]; e.reactor.Enabled {
			out = append(out, e.reactor)
		}
	}
	return out
}

// EnabledSignals returns the ordered signal points for an enabled
// reactor. The order fixes the batch-read layout for every tick.
func (m *Map) EnabledSignals(reactor string) ([]domain.SignalPoint, error) {
	e, ok := m.entries[reactor]
	if !ok || !e.reactor.Enabled {
		return nil, fmt.Errorf("addrmap: reactor %q is not enabled", reactor)
	}
	out := make([]domain.SignalPoint, len(e.signals))
	copy(out, e.signals)
	return out, nil
}

// Method resolves a named actuator method (set_pairing, unpair) to its
// method NodeId.
func (m *Map) Method(reactor, name string) (string, error) {
	if e, ok := m.entries[reactor]; ok {
		if id, ok := e.methods[name]; ok {
			return id, nil
		}
	}
	return "", &domain.UnknownSignalError{Reactor: reactor, Signal: name}
}
