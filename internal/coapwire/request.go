// Package coapwire defines the request-message data model of spec.md §3
// ("Request message") and translates it to and from CoAP wire packets using
// github.com/plgd-dev/go-coap/v2's message/codes/pool types, the same
// packages matrix-org/lb's coap.go and coap_http.go use for HTTP<->CoAP
// translation. Here the translation runs the other way: feature-API calls
// (already CoAP-shaped, not HTTP) become wire packets the engine sends.
package coapwire

import (
	"time"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"

	coapblockwise "github.com/edgefleet/coap-sdk/internal/blockwise"
)

// Type tags the eight request shapes spec.md §3 enumerates.
type Type int

const (
	TypeEmpty Type = iota
	TypeGet
	TypeGetBlock
	TypePost
	TypePostBlock
	TypeDelete
	TypeObserve
	TypeObserveRelease
)

func (t Type) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeGet:
		return "get"
	case TypeGetBlock:
		return "get-block"
	case TypePost:
		return "post"
	case TypePostBlock:
		return "post-block"
	case TypeDelete:
		return "delete"
	case TypeObserve:
		return "observe"
	case TypeObserveRelease:
		return "observe-release"
	default:
		return "unknown"
	}
}

// Response is the decoded counterpart delivered to a request's callback.
type Response struct {
	Code    codes.Code
	Format  message.MediaType
	Payload []byte
	// Observe is set when the response carries an Observe option sequence
	// number (a notification), -1 otherwise.
	Observe int64
	// More reports a Block1/Block2 option's "more blocks follow" bit, for
	// callers driving a blockwise transfer one request at a time.
	More bool
	// SZX is the block size the server actually used, valid only when
	// HasBlockOption is true. Callers compare it against the size they
	// requested to detect a server-initiated shrink, per spec.md §4.E step
	// 2's renegotiation rule.
	SZX coapblockwise.SZX
	// HasBlockOption reports whether the response carried a Block1 or
	// Block2 option at all (a non-blockwise response leaves SZX/More at
	// their zero values).
	HasBlockOption bool
}

// ResponseFunc is invoked by the worker thread with the decoded response or
// a non-nil error (Timeout, Nack, CoapResponse, Io). It must return
// quickly: spec.md §4.E: "the caller's callback runs on the worker thread
// and must return quickly."
type ResponseFunc func(resp *Response, err error)

// BlockWriteFunc delivers one downloaded block. offset is index*negotiated
// size, matching the bootloader block-write hook shape from §4.G.
type BlockWriteFunc func(index uint32, szx coapblockwise.SZX, data []byte, isLast bool) error

// BlockReadFunc supplies the next upload chunk for a Block1 transfer.
type BlockReadFunc func(index uint32) (data []byte, isLast bool, err error)

// Request is the tagged-union message model of spec.md §3. PathPrefix is
// not copied (the caller must keep it alive, mirroring the C SDK's
// `&'static`-style prefix pointer); Path is copied and length-bounded.
type Request struct {
	Type Type

	PathPrefix string
	Path       string

	Token []byte

	ContentFormat message.MediaType
	Accept        message.MediaType
	Payload       []byte

	BlockIndex uint32
	BlockSZX   coapblockwise.SZX

	OnResponse   ResponseFunc
	OnBlockWrite BlockWriteFunc
	OnBlockRead  BlockReadFunc

	// ObserveToken, when set on an ObserveRelease request, names the token
	// of the observation being cancelled (it is not freshly allocated).
	ObserveToken []byte

	// ChildID addresses which child device, behind a gateway, a request
	// belongs to. Empty for every non-gateway request. Carried on the wire
	// as the child-id CoAP option (see BuildPacket), grounded on
	// original_source/src/gateway.c's uplink/downlink child addressing.
	ChildID string

	// Deadline is the absolute age-out instant, per spec.md §4.C: "if the
	// request's deadline has passed before transmission, the worker drops
	// it... without hitting the wire."
	Deadline time.Time

	// sync holds the completion handshake for synchronous callers, nil for
	// fire-and-forget async requests.
	sync *syncWaiter
}

// FullPath concatenates PathPrefix and Path, bounded by maxLen at the
// caller's responsibility (checked synchronously before enqueue, per
// spec.md §7 band (1): programming errors are returned synchronously).
func (r *Request) FullPath() string {
	return r.PathPrefix + r.Path
}

// Confirmable reports whether the worker tracks this request in the
// pending table for ACK matching and retransmission: every type except
// TypeEmpty. BuildPacket still marks a TypeEmpty packet as confirmable on
// the wire; it is just never retransmitted.
func (r *Request) Confirmable() bool {
	return r.Type != TypeEmpty
}
