package domain

import "time"

// ExperimentStatus is the lifecycle state of a logging session.
type ExperimentStatus string

const (
	StatusRunning ExperimentStatus = "running"
	StatusStopped ExperimentStatus = "stopped"
)

// Experiment is a bounded logging session for one reactor. At most one
// experiment may be running per reactor at any time; the store enforces
// this with a partial unique index so the rule survives concurrent
// processes, not just one session manager's cache.
type Experiment struct {
	ID        int64
	Reactor   string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    ExperimentStatus
}

// Open reports whether the experiment has not been closed yet. A
// crash-left-open experiment is Open with Status still running and is
// reconciled by Store.RecoverOpen on the next startup.
func (e *Experiment) Open() bool {
	return e.EndedAt == nil
}
