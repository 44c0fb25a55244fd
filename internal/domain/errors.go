package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the session manager and store.
var (
	ErrAlreadyRunning      = errors.New("an experiment is already running for this reactor")
	ErrNotRunning          = errors.New("no experiment is running for this reactor")
	ErrExperimentClosed    = errors.New("experiment is already closed")
	ErrReactorDisabled     = errors.New("reactor is disabled")
	ErrTimestampRegression = errors.New("sample timestamp precedes the reactor's latest sample")
)

// ConnectionError is a transport-level failure talking to the
// automation server. It is never fatal: the adapter absorbs it and
// retries with capped exponential backoff.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("opcua connection to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReadError is the failure of a single point read inside a batch. The
// loop tolerates it as a missing value in that tick's sample.
type ReadError struct {
	NodeID string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.NodeID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// MethodError is a failed actuator method call, surfaced only to the
// caller of that call.
type MethodError struct {
	MethodID string
	Err      error
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("call %s: %v", e.MethodID, e.Err)
}

func (e *MethodError) Unwrap() error { return e.Err }

// UnknownSignalError is a configuration defect: a signal name that the
// address map cannot resolve for a reactor. It is raised at validation
// time and excludes the affected reactor from polling.
type UnknownSignalError struct {
	Reactor string
	Signal  string
}

func (e *UnknownSignalError) Error() string {
	return fmt.Sprintf("no address for signal %q on reactor %s", e.Signal, e.Reactor)
}

// StoreError is a failed persistence operation. Appends are retried a
// bounded number of times before the sample is parked for the next
// tick; silent loss is never acceptable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
