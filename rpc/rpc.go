// Package rpc implements the cloud-to-device remote procedure call feature
// API: the device observes .rpc/ for invocations and replies on .rpc/status,
// grounded on original_source/src/rpc.c's method-table dispatch and
// test/test_golioth_rpc.c's seed scenarios (a registered "double" method,
// and NOT_FOUND for an unregistered one).
package rpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message"

	"github.com/edgefleet/coap-sdk/internal/coapwire"
	"github.com/edgefleet/coap-sdk/internal/engine"
	"github.com/edgefleet/coap-sdk/internal/paths"
)

// StatusCode mirrors rpc.c's golioth_rpc_status_t, itself modeled on
// Google's standard gRPC status codes.
type StatusCode int

const (
	StatusOK          StatusCode = 0
	StatusUnavailable StatusCode = 14 // NOT_FOUND in this SDK's vocabulary
)

// Params is the raw CBOR array of positional arguments passed to a method.
type Params = cbor.RawMessage

// Handler executes one RPC method call and returns a CBOR-marshalable
// detail object plus a status code.
type Handler func(params Params) (detail interface{}, status StatusCode, err error)

type invocation struct {
	Method string `cbor:"method"`
	ID     string `cbor:"id"`
	Params Params `cbor:"params"`
}

type reply struct {
	ID         string      `cbor:"id"`
	Detail     interface{} `cbor:"detail,omitempty"`
	StatusCode StatusCode  `cbor:"statusCode"`
}

// Server dispatches inbound RPC invocations to registered handlers, bounded
// by capacity (config.Config.RPCMaxNumMethods).
type Server struct {
	engine   *engine.Client
	capacity int
	methods  map[string]Handler
}

// New wraps client, observing .rpc/ once Start is called.
func New(client *engine.Client, capacity int) *Server {
	return &Server{engine: client, capacity: capacity, methods: make(map[string]Handler)}
}

// ErrCapacity is returned by Register once the method table is full.
type ErrCapacity struct{ Capacity int }

func (e *ErrCapacity) Error() string {
	return fmt.Sprintf("rpc: method table full (capacity %d)", e.Capacity)
}

// Register adds a handler for name, replacing any existing registration.
func (s *Server) Register(name string, h Handler) error {
	if _, exists := s.methods[name]; !exists && len(s.methods) >= s.capacity {
		return &ErrCapacity{Capacity: s.capacity}
	}
	s.methods[name] = h
	return nil
}

// Start begins observing .rpc/ for invocations.
func (s *Server) Start() error {
	return s.engine.Observe(paths.RPC, "", message.AppCBOR, s.onInvoke)
}

func (s *Server) onInvoke(resp *coapwire.Response, err error) {
	if err != nil {
		return
	}
	var inv invocation
	if err := cbor.Unmarshal(resp.Payload, &inv); err != nil {
		return
	}

	h, ok := s.methods[inv.Method]
	if !ok {
		s.reply(reply{ID: inv.ID, StatusCode: StatusUnavailable})
		return
	}

	detail, status, err := h(inv.Params)
	if err != nil {
		s.reply(reply{ID: inv.ID, StatusCode: StatusUnavailable})
		return
	}
	s.reply(reply{ID: inv.ID, Detail: detail, StatusCode: status})
}

func (s *Server) reply(r reply) {
	data, err := cbor.Marshal(r)
	if err != nil {
		return
	}
	_ = s.engine.PostAsync(paths.RPC, "status", message.AppCBOR, data, nil)
}
