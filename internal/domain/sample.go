package domain

import "time"

// Sample is one timestamped row of signal readings for a reactor,
// produced by the sampling loop once per tick. Signals that failed to
// read in that tick are simply absent from Values and persist as NULL.
type Sample struct {
	ID           int64              `json:"id,omitempty"`
	ExperimentID int64              `json:"experiment_id"`
	Reactor      string             `json:"reactor"`
	Timestamp    time.Time          `json:"ts"`
	Values       map[string]float64 `json:"values"`
}

// Value returns the reading for a signal and whether it was captured.
func (s *Sample) Value(signal string) (float64, bool) {
	v, ok := s.Values[signal]
	return v, ok
}
