package coapwire

import (
	"bytes"
	"context"
	"fmt"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"
	"github.com/plgd-dev/go-coap/v2/udp/message/pool"

	coapblockwise "github.com/edgefleet/coap-sdk/internal/blockwise"
)

// OptionChildID is a private-use CoAP option number carrying the gateway
// child-device address, the same way matrix-org/lb's coap.go mints
// OptionIDAccessToken = message.OptionID(256) for a protocol-specific
// option go-coap/v2 doesn't define.
var OptionChildID = message.OptionID(2048)

var requestCodes = map[Type]codes.Code{
	TypeGet:            codes.GET,
	TypeGetBlock:       codes.GET,
	TypePost:           codes.POST,
	TypePostBlock:      codes.POST,
	TypeDelete:         codes.DELETE,
	TypeObserve:        codes.GET,
	TypeObserveRelease: codes.GET,
}

// BuildPacket converts a Request into a pool.Message ready to be written to
// the DTLS socket, the direct counterpart of matrix-org/lb's coap_http.go
// HTTPRequestToCoAP, minus the HTTP intermediary: this engine builds CoAP
// packets straight from the feature APIs' already-CoAP-shaped requests.
// Callers must release the returned message with pool.ReleaseMessage once
// it has been written, per go-coap/v2's pool.Message contract (see
// cmd/coap/main.go's defer pool.ReleaseMessage(coapres)).
func BuildPacket(ctx context.Context, r *Request) (*pool.Message, error) {
	if r.Type == TypeEmpty {
		msg := pool.AcquireMessage(ctx)
		msg.SetType(udpmessage.Confirmable)
		msg.SetCode(codes.DELETE)
		msg.SetToken(r.Token)
		return msg, nil
	}

	code, ok := requestCodes[r.Type]
	if !ok {
		return nil, fmt.Errorf("coapwire: unknown request type %s", r.Type)
	}

	msg := pool.AcquireMessage(ctx)
	msg.SetType(udpmessage.Confirmable)
	msg.SetCode(code)
	msg.SetToken(r.Token)
	msg.SetPath(r.FullPath())

	if len(r.Payload) > 0 {
		msg.SetBody(bytes.NewReader(r.Payload))
		msg.SetContentFormat(r.ContentFormat)
	}
	if r.Accept != 0 {
		msg.SetOptionUint32(message.Accept, uint32(r.Accept))
	}
	if r.ChildID != "" {
		msg.SetOptionString(OptionChildID, r.ChildID)
	}

	switch r.Type {
	case TypeObserve:
		msg.SetObserve(0)
	case TypeObserveRelease:
		msg.SetObserve(1)
		msg.SetToken(r.ObserveToken)
	case TypeGetBlock:
		msg.SetBlock2(r.BlockIndex, false, uint32(r.BlockSZX))
	case TypePostBlock:
		more := r.OnBlockRead != nil
		msg.SetBlock1(r.BlockIndex, more, uint32(r.BlockSZX))
	}

	return msg, nil
}

// DecodeResponse converts a received pool.Message into a Response. Non-2.xx
// codes surface to the caller as a status.CoapResponse error; see
// status.FromCoAPCode, used by the engine when dispatching the response.
func DecodeResponse(msg *pool.Message) *Response {
	resp := &Response{
		Code:    msg.Code(),
		Observe: -1,
	}
	if format, err := msg.ContentFormat(); err == nil {
		resp.Format = format
	}
	if body := msg.Body(); body != nil {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(body)
		resp.Payload = buf.Bytes()
	}
	if seq, err := msg.Options().Observe(); err == nil {
		resp.Observe = int64(seq)
	}
	if raw, err := msg.Options().GetUint32(message.Block2); err == nil {
		if _, szx, more, err := message.DecodeBlockOption(raw); err == nil {
			resp.More = more
			resp.SZX = coapblockwise.SZX(szx)
			resp.HasBlockOption = true
		}
	} else if raw, err := msg.Options().GetUint32(message.Block1); err == nil {
		if _, szx, more, err := message.DecodeBlockOption(raw); err == nil {
			resp.More = more
			resp.SZX = coapblockwise.SZX(szx)
			resp.HasBlockOption = true
		}
	}
	return resp
}

// EncodePacket serializes msg into a wire datagram the same way
// matrix-org/lb's cmd/proxy/proxy_test.go builds fake responses (output,
// err := msg.Marshal()). The engine writes the returned bytes straight to
// the DTLS socket.
func EncodePacket(msg *pool.Message) ([]byte, error) {
	return msg.Marshal()
}

// DecodePacket parses a received datagram into a pool.Message, the same
// input.Unmarshal(data) call cmd/proxy/proxy_test.go uses to inspect a
// captured write. Callers must release the result with pool.ReleaseMessage
// once done, same as messages built by BuildPacket.
func DecodePacket(ctx context.Context, data []byte) (*pool.Message, error) {
	msg := pool.AcquireMessage(ctx)
	_, err := msg.Unmarshal(data)
	if err != nil {
		pool.ReleaseMessage(msg)
		return nil, err
	}
	return msg, nil
}

