package opcua

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	ReconnectInitial time.Duration `yaml:"reconnect_initial"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "Reactors Sampler"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	return nil
}

// Client owns one OPC UA session. Read failures degrade the session and
// trigger a background redial with capped exponential backoff that only
// gives up when the client is closed; a lab experiment must survive
// transient server restarts.
type Client struct {
	cfg    Config
	state  atomic.Int32
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup

	mu           sync.Mutex
	client       *opcua.Client
	reconnecting bool
}

func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

func (c *Client) State() ports.SessionState {
	return ports.SessionState(c.state.Load())
}

func (c *Client) setState(s ports.SessionState) {
	c.state.Store(int32(s))
}

// Connect performs a single dial attempt. Once a session exists the
// client keeps it alive on its own; callers that want the initial dial
// retried wrap Connect in their own loop.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(ports.StateConnecting)
	cli, err := c.dial(ctx)
	if err != nil {
		c.setState(ports.StateDisconnected)
		return &domain.ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
	}

	c.mu.Lock()
	c.client = cli
	c.mu.Unlock()
	c.setState(ports.StateConnected)
	return nil
}

func (c *Client) dial(ctx context.Context) (*opcua.Client, error) {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(c.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(c.cfg.SecurityPolicy)),
		opcua.ApplicationName(c.cfg.ApplicationName),
		opcua.RequestTimeout(c.cfg.RequestTimeout),
	}
	if c.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(c.cfg.Username, c.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}

	cli, err := opcua.NewClient(c.cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := cli.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}
	return cli, nil
}

func (c *Client) current() *opcua.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// ReadPoint reads a single point's value.
func (c *Client) ReadPoint(ctx context.Context, nodeID string) (any, error) {
	res := c.ReadBatch(ctx, []string{nodeID})
	return res[0].Value, res[0].Err
}

// ReadBatch reads the given points in one request. Each point's outcome
// is reported independently so one bad address does not blank the rest
// of the batch; only a transport failure errors every entry.
func (c *Client) ReadBatch(ctx context.Context, nodeIDs []string) []ports.PointResult {
	out := make([]ports.PointResult, len(nodeIDs))
	for i, id := range nodeIDs {
		out[i].NodeID = id
	}

	cli := c.current()
	if cli == nil || c.State() == ports.StateReconnecting || c.State() == ports.StateDisconnected {
		err := &domain.ConnectionError{Endpoint: c.cfg.Endpoint, Err: errors.New("session not connected")}
		for i := range out {
			out[i].Err = err
		}
		return out
	}

	nodes := make([]*ua.ReadValueID, 0, len(nodeIDs))
	for i, id := range nodeIDs {
		nid, err := ua.ParseNodeID(id)
		if err != nil {
			out[i].Err = &domain.ReadError{NodeID: id, Err: err}
			continue
		}
		nodes = append(nodes, &ua.ReadValueID{NodeID: nid, AttributeID: ua.AttributeIDValue})
	}
	if len(nodes) == 0 {
		return out
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := cli.Read(rctx, &ua.ReadRequest{
		NodesToRead:        nodes,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	})
	if err != nil {
		cerr := &domain.ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
		for i := range out {
			if out[i].Err == nil {
				out[i].Err = cerr
			}
		}
		c.markDegraded(err)
		return out
	}

	ri := 0
	for i := range out {
		if out[i].Err != nil {
			continue // unparseable NodeId, no request was issued
		}
		if ri >= len(resp.Results) {
			out[i].Err = &domain.ReadError{NodeID: out[i].NodeID, Err: errors.New("missing result")}
			continue
		}
		res := resp.Results[ri]
		ri++
		if res.Status != ua.StatusOK {
			out[i].Err = &domain.ReadError{NodeID: out[i].NodeID, Err: res.Status}
			continue
		}
		if res.Value == nil {
			out[i].Err = &domain.ReadError{NodeID: out[i].NodeID, Err: errors.New("null variant")}
			continue
		}
		out[i].Value = res.Value.Value()
	}
	return out
}

// WritePoint writes a value to a point. Used by the display's own
// session for live control; the sampling loop never writes.
func (c *Client) WritePoint(ctx context.Context, nodeID string, value any) error {
	cli := c.current()
	if cli == nil {
		return &domain.ConnectionError{Endpoint: c.cfg.Endpoint, Err: errors.New("session not connected")}
	}
	nid, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return fmt.Errorf("parse node id %q: %w", nodeID, err)
	}
	variant, err := ua.NewVariant(value)
	if err != nil {
		return fmt.Errorf("variant for %q: %w", nodeID, err)
	}

	wctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := cli.Write(wctx, &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      nid,
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        variant,
			},
		}},
	})
	if err != nil {
		c.markDegraded(err)
		return &domain.ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	if len(resp.Results) > 0 && resp.Results[0] != ua.StatusOK {
		return fmt.Errorf("write %s: %s", nodeID, resp.Results[0])
	}
	return nil
}

// CallMethod invokes a method on an object node (actuator pairing
// operations). Failures surface to this caller only, never to the loop.
func (c *Client) CallMethod(ctx context.Context, objectID, methodID string, args ...any) ([]any, error) {
	cli := c.current()
	if cli == nil {
		return nil, &domain.MethodError{MethodID: methodID, Err: errors.New("session not connected")}
	}
	oid, err := ua.ParseNodeID(objectID)
	if err != nil {
		return nil, &domain.MethodError{MethodID: methodID, Err: err}
	}
	mid, err := ua.ParseNodeID(methodID)
	if err != nil {
		return nil, &domain.MethodError{MethodID: methodID, Err: err}
	}
	in := make([]*ua.Variant, 0, len(args))
	for _, a := range args {
		v, err := ua.NewVariant(a)
		if err != nil {
			return nil, &domain.MethodError{MethodID: methodID, Err: err}
		}
		in = append(in, v)
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	res, err := cli.Call(cctx, &ua.CallMethodRequest{
		ObjectID:       oid,
		MethodID:       mid,
		InputArguments: in,
	})
	if err != nil {
		c.markDegraded(err)
		return nil, &domain.MethodError{MethodID: methodID, Err: err}
	}
	if res.StatusCode != ua.StatusOK {
		return nil, &domain.MethodError{MethodID: methodID, Err: res.StatusCode}
	}
	out := make([]any, 0, len(res.OutputArguments))
	for _, v := range res.OutputArguments {
		out = append(out, v.Value())
	}
	return out, nil
}

// markDegraded flags the session after a transport-level failure and
// kicks the background redial if one is not already running.
func (c *Client) markDegraded(err error) {
	if c.State() == ports.StateConnected {
		c.setState(ports.StateDegraded)
		log.Printf("opcua: session degraded: %v", err)
	}

	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	c.setState(ports.StateReconnecting)

	old := c.current()
	if old != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		_ = old.Close(closeCtx)
		cancel()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitial
	bo.MaxInterval = c.cfg.ReconnectMax
	bo.MaxElapsedTime = 0 // unlimited retries

	for {
		wait := bo.NextBackOff()
		select {
		case <-c.ctx.Done():
			c.setState(ports.StateDisconnected)
			return
		case <-time.After(wait):
		}

		cli, err := c.dial(c.ctx)
		if err != nil {
			log.Printf("opcua: reconnect to %s failed after %s backoff: %v", c.cfg.Endpoint, wait.Round(time.Millisecond), err)
			continue
		}

		c.mu.Lock()
		c.client = cli
		c.reconnecting = false
		c.mu.Unlock()
		c.setState(ports.StateConnected)
		log.Printf("opcua: reconnected to %s", c.cfg.Endpoint)
		return
	}
}

// Close releases the session and stops any in-flight reconnection.
func (c *Client) Close(ctx context.Context) error {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	cli := c.client
	c.client = nil
	c.mu.Unlock()

	c.setState(ports.StateDisconnected)
	if cli == nil {
		return nil
	}
	if err := cli.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.ProtocolClient = (*Client)(nil)
