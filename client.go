package coapsdk

import (
	"context"

	"github.com/plgd-dev/go-coap/v2/message"

	"github.com/edgefleet/coap-sdk/config"
	"github.com/edgefleet/coap-sdk/credential"
	"github.com/edgefleet/coap-sdk/internal/blockwise"
	"github.com/edgefleet/coap-sdk/internal/coapwire"
	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/logx"
)

// MediaType re-exports go-coap's content-format identifiers so callers of
// this package never need to import internal/coapwire or go-coap directly.
type MediaType = message.MediaType

const (
	MediaTypeJSON   = message.AppJSON
	MediaTypeCBOR   = message.AppCBOR
	MediaTypeOctets = message.AppOctets
)

// ResponseFunc is the callback shape for async requests and observations.
type ResponseFunc = coapwire.ResponseFunc

// BlockWriteFunc receives one downloaded block; isLast marks the final
// chunk of a blockwise transfer.
type BlockWriteFunc = coapwire.BlockWriteFunc

// BlockReadFunc supplies one block to upload, given its index.
type BlockReadFunc = coapwire.BlockReadFunc

// Response is a decoded CoAP response payload plus content format.
type Response = coapwire.Response

// SZX is a blockwise transfer's negotiated block size exponent.
type SZX = blockwise.SZX

// Client is the device-side SDK entry point: one DTLS session, one request
// engine, one observation table, per spec.md §3. Construct with New, call
// Start to bring the worker goroutine up, and Destroy when done with it.
// Feature packages (lightdb, stream, logging, rpc, settings, location,
// gateway, ota) each wrap the *engine.Client returned by Engine, not a
// *Client.
type Client struct {
	eng *engine.Client
}

// Option configures a Client at construction time.
type Option func(*engine.Client)

// WithLogger attaches a Logger; defaults to a no-op logger.
func WithLogger(l logx.Logger) Option {
	return func(c *engine.Client) { engine.WithLogger(l)(c) }
}

// WithEventCallback registers the connect/disconnect event callback.
func WithEventCallback(fn EventFunc) Option {
	return func(c *engine.Client) {
		engine.WithEventCallback(func(ev engine.Event) { fn(Event{Kind: EventKind(ev.Kind)}) })(c)
	}
}

// New constructs a Client bound to cfg and cred. It does not start the
// worker goroutine or dial the server; call Start for that.
func New(cfg config.Config, cred credential.Credential, opts ...Option) *Client {
	engOpts := make([]engine.Option, 0, len(opts))
	for _, o := range opts {
		engOpts = append(engOpts, engine.Option(o))
	}
	return &Client{eng: engine.New(cfg, cred, engOpts...)}
}

// Start launches the worker goroutine and begins connecting, per spec.md
// §4.F. Safe to call once; subsequent calls are no-ops while running.
func (c *Client) Start() { c.eng.Start() }

// Stop signals the worker to drain and blocks until it exits.
func (c *Client) Stop() { c.eng.Stop() }

// Destroy stops the worker and releases the client's resources.
func (c *Client) Destroy() { c.eng.Destroy() }

// IsConnected reports whether the DTLS session is currently established.
func (c *Client) IsConnected() bool { return c.eng.IsConnected() }

// IsRunning reports whether the worker goroutine is alive.
func (c *Client) IsRunning() bool { return c.eng.IsRunning() }

// Get issues a synchronous GET under prefix+path.
func (c *Client) Get(ctx context.Context, prefix, path string, accept MediaType) (*Response, error) {
	return c.eng.Get(ctx, prefix, path, accept)
}

// GetAsync issues a fire-and-forget GET.
func (c *Client) GetAsync(prefix, path string, accept MediaType, onResp ResponseFunc) error {
	return c.eng.GetAsync(prefix, path, accept, onResp)
}

// Post issues a synchronous POST with the given payload and content format.
func (c *Client) Post(ctx context.Context, prefix, path string, contentFormat MediaType, payload []byte) (*Response, error) {
	return c.eng.Post(ctx, prefix, path, contentFormat, payload)
}

// PostAsync issues a fire-and-forget POST.
func (c *Client) PostAsync(prefix, path string, contentFormat MediaType, payload []byte, onResp ResponseFunc) error {
	return c.eng.PostAsync(prefix, path, contentFormat, payload, onResp)
}

// Delete issues a synchronous DELETE.
func (c *Client) Delete(ctx context.Context, prefix, path string) (*Response, error) {
	return c.eng.Delete(ctx, prefix, path)
}

// Observe registers a server-push subscription under prefix+path.
func (c *Client) Observe(prefix, path string, accept MediaType, onNotify ResponseFunc) error {
	return c.eng.Observe(prefix, path, accept, onNotify)
}

// ObserveRelease cancels an active observation; a release for an unknown
// prefix+path is a silent no-op.
func (c *Client) ObserveRelease(prefix, path string) error {
	return c.eng.ObserveRelease(prefix, path)
}

// Engine returns the underlying request engine for feature packages
// (lightdb.New, rpc.New, ota.New, ...) that are constructed from it
// directly rather than from this wrapper.
func (c *Client) Engine() *engine.Client { return c.eng }
