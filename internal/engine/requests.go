package engine

import (
	"context"

	"github.com/plgd-dev/go-coap/v2/message"

	coapblockwise "github.com/edgefleet/coap-sdk/internal/blockwise"
	"github.com/edgefleet/coap-sdk/internal/coapwire"
)

// Get issues a synchronous GET and returns the decoded response, blocking
// the calling goroutine (not the worker) until it arrives or ctx expires.
func (c *Client) Get(ctx context.Context, prefix, path string, accept message.MediaType) (*coapwire.Response, error) {
	return c.doSync(ctx, &coapwire.Request{
		Type:       coapwire.TypeGet,
		PathPrefix: prefix,
		Path:       path,
		Accept:     accept,
	})
}

// GetAsync issues a fire-and-forget GET, invoking onResp on the worker
// goroutine when the response (or a terminal error) arrives.
func (c *Client) GetAsync(prefix, path string, accept message.MediaType, onResp coapwire.ResponseFunc) error {
	return c.doAsync(&coapwire.Request{
		Type:       coapwire.TypeGet,
		PathPrefix: prefix,
		Path:       path,
		Accept:     accept,
		OnResponse: onResp,
	})
}

// Post issues a synchronous POST with the given payload and content format.
func (c *Client) Post(ctx context.Context, prefix, path string, contentFormat message.MediaType, payload []byte) (*coapwire.Response, error) {
	return c.doSync(ctx, &coapwire.Request{
		Type:          coapwire.TypePost,
		PathPrefix:    prefix,
		Path:          path,
		ContentFormat: contentFormat,
		Payload:       payload,
	})
}

// PostAsync issues a fire-and-forget POST.
func (c *Client) PostAsync(prefix, path string, contentFormat message.MediaType, payload []byte, onResp coapwire.ResponseFunc) error {
	return c.doAsync(&coapwire.Request{
		Type:          coapwire.TypePost,
		PathPrefix:    prefix,
		Path:          path,
		ContentFormat: contentFormat,
		Payload:       payload,
		OnResponse:    onResp,
	})
}

// Delete issues a synchronous DELETE.
func (c *Client) Delete(ctx context.Context, prefix, path string) (*coapwire.Response, error) {
	return c.doSync(ctx, &coapwire.Request{
		Type:       coapwire.TypeDelete,
		PathPrefix: prefix,
		Path:       path,
	})
}

// GetBlock issues a single Block2 GET for blockIndex at the given block
// size, invoking onBlock with the returned chunk, and returns the decoded
// response so the caller can read back the server's actual negotiated SZX
// (Response.SZX/HasBlockOption) and feed it to an internal/blockwise
// Download, per spec.md §4.E step 2. Callers (the ota package) drive a full
// download by calling this repeatedly with an advancing index, per spec.md
// §4.E/§4.G: block cursor ownership lives with the feature layer, not the
// engine.
func (c *Client) GetBlock(ctx context.Context, prefix, path string, blockIndex uint32, szx coapblockwise.SZX, onBlock coapwire.BlockWriteFunc) (*coapwire.Response, error) {
	r := &coapwire.Request{
		Type:         coapwire.TypeGetBlock,
		PathPrefix:   prefix,
		Path:         path,
		BlockIndex:   blockIndex,
		BlockSZX:     szx,
		OnBlockWrite: onBlock,
	}
	return c.doSync(ctx, r)
}

// PostBlock issues a single Block1 POST for blockIndex, reading the chunk
// to send from onRead, and returns the decoded response so the caller can
// read back the server's actual negotiated SZX and feed it to an
// internal/blockwise Upload, per spec.md §4.E.
func (c *Client) PostBlock(ctx context.Context, prefix, path string, blockIndex uint32, szx coapblockwise.SZX, contentFormat message.MediaType, onRead coapwire.BlockReadFunc) (*coapwire.Response, error) {
	data, isLast, err := onRead(blockIndex)
	if err != nil {
		return nil, err
	}
	r := &coapwire.Request{
		Type:          coapwire.TypePostBlock,
		PathPrefix:    prefix,
		Path:          path,
		BlockIndex:    blockIndex,
		BlockSZX:      szx,
		ContentFormat: contentFormat,
		Payload:       data,
	}
	if !isLast {
		r.OnBlockRead = onRead
	}
	return c.doSync(ctx, r)
}

// PostChild behaves like Post but also stamps the request with the
// gateway's child-id CoAP option (coapwire.Request.ChildID), so the cloud
// knows which child device a relayed frame came from, per
// original_source/src/gateway.c's uplink addressing.
func (c *Client) PostChild(ctx context.Context, prefix, path, childID string, contentFormat message.MediaType, payload []byte) (*coapwire.Response, error) {
	return c.doSync(ctx, &coapwire.Request{
		Type:          coapwire.TypePost,
		PathPrefix:    prefix,
		Path:          path,
		ChildID:       childID,
		ContentFormat: contentFormat,
		Payload:       payload,
	})
}

// PostBlockChild is PostBlock plus the child-id option, used by the gateway
// package's blockwise uplink relay.
func (c *Client) PostBlockChild(ctx context.Context, prefix, path, childID string, blockIndex uint32, szx coapblockwise.SZX, contentFormat message.MediaType, onRead coapwire.BlockReadFunc) (*coapwire.Response, error) {
	data, isLast, err := onRead(blockIndex)
	if err != nil {
		return nil, err
	}
	r := &coapwire.Request{
		Type:          coapwire.TypePostBlock,
		PathPrefix:    prefix,
		Path:          path,
		ChildID:       childID,
		BlockIndex:    blockIndex,
		BlockSZX:      szx,
		ContentFormat: contentFormat,
		Payload:       data,
	}
	if !isLast {
		r.OnBlockRead = onRead
	}
	return c.doSync(ctx, r)
}

// Observe registers a server-push subscription. onNotify fires on the
// worker goroutine once per notification, including the first (synchronous)
// response, per spec.md §4.D.
func (c *Client) Observe(prefix, path string, accept message.MediaType, onNotify coapwire.ResponseFunc) error {
	r := &coapwire.Request{
		Type:       coapwire.TypeObserve,
		PathPrefix: prefix,
		Path:       path,
		Accept:     accept,
		OnResponse: onNotify,
	}
	if err := c.obs.Register(r); err != nil {
		return err
	}
	if err := c.enqueue(r); err != nil {
		c.obs.Unregister(prefix, path)
		return err
	}
	return nil
}

// ObserveRelease cancels an active observation. A release for an unknown
// prefix+path is a silent no-op, per spec.md §8.
func (c *Client) ObserveRelease(prefix, path string) error {
	slot, ok := c.obs.ByPrefixPath(prefix, path)
	if !ok {
		return nil
	}
	c.obs.Unregister(prefix, path)
	return c.enqueue(&coapwire.Request{
		Type:         coapwire.TypeObserveRelease,
		PathPrefix:   prefix,
		Path:         path,
		ObserveToken: slot.Request.Token,
	})
}
