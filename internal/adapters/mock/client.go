// Package mock is an in-memory stand-in for the automation server. It
// implements the same client contract as the real OPC UA adapter and
// pre-seeds the R0 address space, so the daemon and its tests can run
// without a server process.
package mock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
)

// Client simulates one protocol session against a fixed address space.
// Fault-injection hooks (FailPoint, SetOffline) drive the error-path
// tests for the sampling loop.
type Client struct {
	mu       sync.Mutex
	values   map[string]any
	pointErr map[string]error
	offline  bool
	state    ports.SessionState

	driftStop chan struct{}
	wg        sync.WaitGroup
}

// NewClient returns a mock session seeded with the R0 hierarchy:
// pH 7.0, DO 8.0 ppm, ten biomass channels at 0.0 and the pwm0
// ControlMethod variables.
func NewClient() *Client {
	c := &Client{
		values:   make(map[string]any),
		pointErr: make(map[string]error),
		state:    ports.StateDisconnected,
	}
	c.values["ns=2;i=3"] = 7.0  // R0:ph:pH
	c.values["ns=2;i=4"] = 25.0 // R0:ph:oC
	c.values["ns=2;i=6"] = 8.0  // R0:do:ppm
	c.values["ns=2;i=7"] = 25.0 // R0:do:oC
	for i := 9; i <= 18; i++ {
		c.values[fmt.Sprintf("ns=2;i=%d", i)] = 0.0 // R0:biomass:415..nir
	}
	c.values["ns=2;i=23"] = "PWM" // method selector, non-numeric
	c.values["ns=2;i=24"] = 0.0   // time_on
	c.values["ns=2;i=25"] = 0.0   // time_off
	c.values["ns=2;i=26"] = 0.0   // lb
	c.values["ns=2;i=27"] = 100.0 // ub
	c.values["ns=2;i=28"] = 50.0  // setpoint
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		c.state = ports.StateDisconnected
		return &domain.ConnectionError{Endpoint: "mock", Err: errors.New("server offline")}
	}
	c.state = ports.StateConnected
	return nil
}

func (c *Client) State() ports.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ReadPoint(ctx context.Context, nodeID string) (any, error) {
	res := c.ReadBatch(ctx, []string{nodeID})
	return res[0].Value, res[0].Err
}

func (c *Client) ReadBatch(ctx context.Context, nodeIDs []string) []ports.PointResult {
	out := make([]ports.PointResult, len(nodeIDs))

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, id := range nodeIDs {
		out[i].NodeID = id
		if c.offline || c.state != ports.StateConnected {
			out[i].Err = &domain.ConnectionError{Endpoint: "mock", Err: errors.New("server offline")}
			continue
		}
		if err, ok := c.pointErr[id]; ok {
			out[i].Err = &domain.ReadError{NodeID: id, Err: err}
			continue
		}
		v, ok := c.values[id]
		if !ok {
			out[i].Err = &domain.ReadError{NodeID: id, Err: errors.New("BadNodeIdUnknown")}
			continue
		}
		out[i].Value = v
	}
	return out
}

func (c *Client) WritePoint(ctx context.Context, nodeID string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return &domain.ConnectionError{Endpoint: "mock", Err: errors.New("server offline")}
	}
	if _, ok := c.values[nodeID]; !ok {
		return &domain.ReadError{NodeID: nodeID, Err: errors.New("BadNodeIdUnknown")}
	}
	c.values[nodeID] = value
	return nil
}

func (c *Client) CallMethod(ctx context.Context, objectID, methodID string, args ...any) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return nil, &domain.MethodError{MethodID: methodID, Err: errors.New("server offline")}
	}
	switch methodID {
	case "ns=2;i=232": // set_pairing
		return []any{true}, nil
	case "ns=2;i=235": // unpair
		return []any{true}, nil
	default:
		return nil, &domain.MethodError{MethodID: methodID, Err: errors.New("BadMethodInvalid")}
	}
}

func (c *Client) Close(ctx context.Context) error {
	c.StopDrift()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ports.StateDisconnected
	return nil
}

// SetValue overrides a point, for seeding test scenarios.
func (c *Client) SetValue(nodeID string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[nodeID] = value
}

// FailPoint makes reads of one point fail until cleared with a nil err.
func (c *Client) FailPoint(nodeID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.pointErr, nodeID)
		return
	}
	c.pointErr[nodeID] = err
}

// SetOffline simulates the server going away (true) or coming back
// (false). While offline every call fails with a ConnectionError and
// the session reports itself as reconnecting.
func (c *Client) SetOffline(offline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = offline
	if offline {
		c.state = ports.StateReconnecting
	} else {
		c.state = ports.StateConnected
	}
}

// StartDrift nudges the simulated sensors on an interval the way the
// lab's mock server does: biomass creeps upward, pH and DO jitter
// around their setpoints.
func (c *Client) StartDrift(interval time.Duration) {
	c.mu.Lock()
	if c.driftStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.driftStop = stop
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.drift()
			}
		}
	}()
}

// StopDrift halts the simulation loop, if running.
func (c *Client) StopDrift() {
	c.mu.Lock()
	stop := c.driftStop
	c.driftStop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		c.wg.Wait()
	}
}

func (c *Client) drift() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 9; i <= 18; i++ {
		id := fmt.Sprintf("ns=2;i=%d", i)
		if v, ok := c.values[id].(float64); ok {
			c.values[id] = v + rand.Float64()*0.2
		}
	}
	c.values["ns=2;i=3"] = 7.0 + (rand.Float64()-0.5)*0.02
	c.values["ns=2;i=6"] = 8.0 + (rand.Float64()-0.5)*0.1
}

var _ ports.ProtocolClient = (*Client)(nil)
