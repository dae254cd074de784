// Package gateway implements the multi-device gateway feature API: a
// gateway device relays uplink frames from child devices to .pouch and
// receives an optional downlink frame in response, grounded on
// original_source/src/gateway.c's uplink/downlink framing. The child-id
// CoAP option used by gateway.c to address which child device a frame
// belongs to is supplemented here since spec.md's table omits it.
package gateway

import (
	"context"

	"github.com/plgd-dev/go-coap/v2/message"

	"github.com/edgefleet/coap-sdk/internal/blockwise"
	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/internal/paths"
)

// Gateway relays CoAP "pouch" frames between child devices and the cloud.
type Gateway struct {
	engine       *engine.Client
	maxBlockSize int
}

// New wraps client, negotiating blockwise uplinks above maxBlockSize bytes.
func New(client *engine.Client, maxBlockSize int) *Gateway {
	return &Gateway{engine: client, maxBlockSize: maxBlockSize}
}

// Relay posts one child device's uplink frame to .pouch and returns any
// downlink frame the cloud responds with for that child. The child is
// addressed with the child-id CoAP option (coapwire.Request.ChildID), per
// original_source/src/gateway.c's uplink framing; the path itself never
// carries the child address.
func (g *Gateway) Relay(ctx context.Context, childID string, frame []byte) ([]byte, error) {
	if len(frame) <= g.maxBlockSize {
		resp, err := g.engine.PostChild(ctx, paths.Pouch, "", childID, message.AppOctets, frame)
		if err != nil {
			return nil, err
		}
		return resp.Payload, nil
	}
	return g.relayBlockwise(ctx, childID, frame)
}

func (g *Gateway) relayBlockwise(ctx context.Context, childID string, frame []byte) ([]byte, error) {
	up := blockwise.NewUpload(nil, blockwise.SZXForSize(g.maxBlockSize))

	var downlink []byte
	offset := 0
	for offset < len(frame) {
		size := blockwise.Size(up.SZX())
		end := offset + size
		if end > len(frame) {
			end = len(frame)
		}
		chunk := frame[offset:end]
		isLast := end == len(frame)

		resp, err := g.engine.PostBlockChild(ctx, paths.Pouch, "", childID, up.NextIndex(), up.SZX(), message.AppOctets, func(uint32) ([]byte, bool, error) {
			return chunk, isLast, nil
		})
		if err != nil {
			return nil, err
		}

		offset = end
		if isLast {
			downlink = resp.Payload
		}
		if resp.HasBlockOption {
			up.Shrink(resp.SZX)
		} else {
			up.Advance()
		}
	}
	return downlink, nil
}
