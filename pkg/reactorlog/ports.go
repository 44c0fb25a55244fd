package reactorlog

import "github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"

// Aliases for the pluggable contracts, so embedders can implement and
// inject their own without importing internal packages.
type (
	ProtocolClient = ports.ProtocolClient
	Store          = ports.Store
	Observability  = ports.Observability
	Field          = ports.Field
	PointResult    = ports.PointResult
	SessionState   = ports.SessionState
)
