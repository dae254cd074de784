// Package engine implements Component F, the single-worker CoAP request
// engine that owns the DTLS socket, per spec.md §4.F. It is the device
// SDK's equivalent of matrix-org/lb's mobile.dtlsClients cache and
// cmd/coap/main.go's dial-and-send flow, reshaped from "dial once per
// request, proxy HTTP through it" into "dial once per client lifetime, run
// a single worker goroutine multiplexing a mailbox against the socket."
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/edgefleet/coap-sdk/config"
	"github.com/edgefleet/coap-sdk/credential"
	"github.com/edgefleet/coap-sdk/internal/coapwire"
	"github.com/edgefleet/coap-sdk/internal/mailbox"
	"github.com/edgefleet/coap-sdk/internal/observe"
	"github.com/edgefleet/coap-sdk/internal/pending"
	"github.com/edgefleet/coap-sdk/internal/token"
	"github.com/edgefleet/coap-sdk/internal/transport"
	"github.com/edgefleet/coap-sdk/logx"
	"github.com/edgefleet/coap-sdk/status"
)

// EventKind distinguishes the two events the worker ever reports to user
// code, per spec.md §4.F's teardown/connect behavior.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
)

type Event struct {
	Kind EventKind
}

// EventFunc receives connect/disconnect notifications. Called on the
// worker goroutine; must return quickly.
type EventFunc func(Event)

// Client is the single instance spec.md §3 describes: one DTLS session, one
// request mailbox, one worker goroutine, one observation table.
type Client struct {
	cfg    config.Config
	cred   credential.Credential
	dialer transport.Dialer
	logger logx.Logger

	mbox    *mailbox.Mailbox[*coapwire.Request]
	tokens  *token.Allocator
	pending *pending.Tracker
	obs     *observe.Registry

	onEvent EventFunc

	state     atomic.Int32
	connected atomic.Bool
	running   atomic.Bool

	runGate  chan struct{}
	stopReq  chan struct{}
	workerWG sync.WaitGroup

	sock      transport.Socket
	nextMsgID uint16

	lastTraffic time.Time
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithDialer overrides the transport dialer, used by tests to inject a fake
// DTLS socket instead of dialing pion/dtls for real.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger attaches a Logger; defaults to a no-op logger.
func WithLogger(l logx.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEventCallback registers the connect/disconnect event callback.
func WithEventCallback(fn EventFunc) Option {
	return func(c *Client) { c.onEvent = fn }
}

// New constructs a Client. It does not start the worker; call Start.
func New(cfg config.Config, cred credential.Credential, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		cred:      cred,
		logger:    logx.NopLogger{},
		mbox:      mailbox.New[*coapwire.Request](cfg.RequestQueueMaxItems),
		tokens:    token.NewAllocator(),
		pending:   pending.New(cfg.ACKTimeout, cfg.RandomFactor, cfg.MaxRetransmits),
		obs:       observe.New(cfg.MaxNumObservations),
		runGate:   make(chan struct{}, 1),
		stopReq:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	if c.dialer == nil {
		c.dialer = transport.DTLSDialer{Cred: cred}
	}
	c.state.Store(int32(StateIdle))
	return c
}

// Start posts to the run gate and launches the worker goroutine if it is
// not already running, per spec.md §4.F: "start posts to the run gate."
func (c *Client) Start() {
	if !c.running.CAS(false, true) {
		return
	}
	c.workerWG.Add(1)
	go c.run()
	select {
	case c.runGate <- struct{}{}:
	default:
	}
}

// Stop takes the run gate and spins until the worker reports not running,
// allowing the current loop iteration to finish, per spec.md §4.F.
func (c *Client) Stop() {
	select {
	case c.stopReq <- struct{}{}:
	default:
	}
	c.workerWG.Wait()
}

// Destroy stops the worker (if needed). It only calls Stop; the mailbox is
// not closed and no other resource is released explicitly.
func (c *Client) Destroy() {
	c.Stop()
}

// IsConnected is a cross-thread-safe atomic read, per spec.md §9 ("treat
// cross-thread reads (e.g. is_connected) as atomic loads of booleans").
func (c *Client) IsConnected() bool { return c.connected.Load() }

// IsRunning reports whether the worker goroutine is alive.
func (c *Client) IsRunning() bool { return c.running.Load() }

// State returns the worker's current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// enqueue validates and pushes r onto the mailbox. Programming errors
// (path too long) and queue-full are returned synchronously without
// enqueuing anything, per spec.md §7 bands (1) and (2).
func (c *Client) enqueue(r *coapwire.Request) error {
	if len(r.Path) > c.cfg.MaxPathLen {
		return status.New(status.InvalidFormat, r.FullPath())
	}
	if r.Token == nil && r.Type != coapwire.TypeObserveRelease {
		r.Token = c.tokens.Next()
	}
	if r.Deadline.IsZero() {
		r.Deadline = time.Now().Add(c.cfg.ResponseTimeout)
	}
	if err := c.mbox.Push(r); err != nil {
		return status.Wrap(status.QueueFull, r.FullPath(), err)
	}
	return nil
}

// doAsync is the shared path for every fire-and-forget feature-API call.
func (c *Client) doAsync(r *coapwire.Request) error {
	return c.enqueue(r)
}

// doSync enqueues r with a completion handshake and blocks until the
// worker signals a result or ctx is done, per spec.md §9's sync-over-async
// design note.
func (c *Client) doSync(ctx context.Context, r *coapwire.Request) (*coapwire.Response, error) {
	w := coapwire.NewSync(r)
	if err := c.enqueue(r); err != nil {
		return nil, err
	}
	return w.Wait(ctx)
}
