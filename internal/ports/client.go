package ports

import "context"

// SessionState is the protocol adapter's connection state machine:
// Disconnected -> Connecting -> Connected -> (Degraded on read failure)
// -> Reconnecting -> Connected | Disconnected.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateDegraded
	StateReconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// PointResult is the outcome of one point inside a batch read. A failed
// point carries its error without aborting the rest of the batch.
type PointResult struct {
	NodeID string
	Value  any
	Err    error
}

// ProtocolClient is a session to an automation server exposing named
// points and callable methods. The mock and the real OPC UA server
// implement the identical contract, so switching between them is a
// connection-target change, never a code change.
type ProtocolClient interface {
	Connect(ctx context.Context) error
	ReadPoint(ctx context.Context, nodeID string) (any, error)
	ReadBatch(ctx context.Context, nodeIDs []string) []PointResult
	WritePoint(ctx context.Context, nodeID string, value any) error
	CallMethod(ctx context.Context, objectID, methodID string, args ...any) ([]any, error)
	State() SessionState
	Close(ctx context.Context) error
}
