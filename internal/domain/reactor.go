package domain

// ValueKind describes how a signal's reading is represented on the
// wire. Only numeric signals are logged; boolean and enum points (for
// example an actuator's control-method selector) stay readable through
// the protocol client but are excluded from samples.
type ValueKind string

const (
	KindNumeric ValueKind = "numeric"
	KindBoolean ValueKind = "boolean"
	KindEnum    ValueKind = "enum"
)

// Reactor is an immutable logical unit (R0, R1, ...). Disabled reactors
// stay in the catalog so their address sets are preserved, but they are
// never polled and can never appear in samples.
type Reactor struct {
	Name    string
	Enabled bool
}

// SignalPoint binds a logical signal name on a reactor to its protocol
// address and value kind.
type SignalPoint struct {
	Reactor string
	Name    string
	NodeID  string
	Kind    ValueKind
}
