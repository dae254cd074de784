// Package stream implements the LightDB stream feature API (path prefix
// .s/), an append-only, ack-only sibling of lightdb, grounded on
// original_source/src/lightdb_stream.c. Payloads over the engine's
// negotiated blockwise size are sent as a Block1 upload instead of a single
// POST, matching lightdb_stream.c's delegation to the blockwise uploader
// for large samples.
package stream

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/plgd-dev/go-coap/v2/message"

	"github.com/edgefleet/coap-sdk/internal/blockwise"
	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/internal/paths"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const prefix = paths.LightDBStream

// Stream is a LightDB stream handle bound to a connected engine client.
type Stream struct {
	engine       *engine.Client
	maxBlockSize int
}

// New wraps client for stream writes, negotiating blockwise uploads above
// maxBlockSize bytes (config.Config.BlockwiseUploadMaxBlockSize).
func New(client *engine.Client, maxBlockSize int) *Stream {
	return &Stream{engine: client, maxBlockSize: maxBlockSize}
}

// SetJSON appends a JSON-marshalable sample at path.
func (s *Stream) SetJSON(ctx context.Context, path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.send(ctx, path, message.AppJSON, data)
}

// SetCBOR appends a CBOR-marshalable sample at path.
func (s *Stream) SetCBOR(ctx context.Context, path string, value interface{}) error {
	data, err := cbor.Marshal(value)
	if err != nil {
		return err
	}
	return s.send(ctx, path, message.AppCBOR, data)
}

// SetOctets appends a raw byte payload at path.
func (s *Stream) SetOctets(ctx context.Context, path string, data []byte) error {
	return s.send(ctx, path, message.AppOctets, data)
}

func (s *Stream) send(ctx context.Context, path string, format message.MediaType, data []byte) error {
	if len(data) <= s.maxBlockSize {
		_, err := s.engine.Post(ctx, prefix, path, format, data)
		return err
	}
	return s.sendBlockwise(ctx, path, format, data)
}

func (s *Stream) sendBlockwise(ctx context.Context, path string, format message.MediaType, data []byte) error {
	up := blockwise.NewUpload(nil, blockwise.SZXForSize(s.maxBlockSize))

	offset := 0
	for offset < len(data) {
		size := blockwise.Size(up.SZX())
		end := offset + size
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		isLast := end == len(data)

		resp, err := s.engine.PostBlock(ctx, prefix, path, up.NextIndex(), up.SZX(), format, func(uint32) ([]byte, bool, error) {
			return chunk, isLast, nil
		})
		if err != nil {
			return err
		}

		offset = end
		if resp.HasBlockOption {
			up.Shrink(resp.SZX)
		} else {
			up.Advance()
		}
	}
	return nil
}
