package rpc

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"
	"github.com/plgd-dev/go-coap/v2/udp/message/pool"

	"github.com/edgefleet/coap-sdk/config"
	"github.com/edgefleet/coap-sdk/credential"
	"github.com/edgefleet/coap-sdk/internal/engine"
)

func testServer(t *testing.T) (*Server, *fakeSocket) {
	t.Helper()
	cfg := config.Default()
	cfg.KeepaliveInterval = time.Hour
	dialer := newFakeDialer()
	client := engine.New(cfg, credential.NewPSK("id", "secret"), engine.WithDialer(dialer))
	client.Start()
	t.Cleanup(client.Destroy)

	var sock *fakeSocket
	select {
	case sock = <-dialer.dialed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dial")
	}

	s := New(client, cfg.RPCMaxNumMethods)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s, sock
}

func pushInvocation(t *testing.T, sock *fakeSocket, observeReq []byte, inv invocation) {
	t.Helper()
	req := pool.AcquireMessage(context.Background())
	if _, err := req.Unmarshal(observeReq); err != nil {
		t.Fatalf("Unmarshal observe request: %v", err)
	}
	defer pool.ReleaseMessage(req)

	payload, err := cbor.Marshal(inv)
	if err != nil {
		t.Fatalf("Marshal invocation: %v", err)
	}

	resp := pool.AcquireMessage(context.Background())
	defer pool.ReleaseMessage(resp)
	resp.SetType(udpmessage.Acknowledgement)
	resp.SetCode(codes.Content)
	resp.SetMessageID(req.MessageID())
	resp.SetToken(req.Token())
	resp.SetBody(bytes.NewReader(payload))
	resp.SetContentFormat(message.AppCBOR)

	data, err := resp.Marshal()
	if err != nil {
		t.Fatalf("Marshal response: %v", err)
	}
	sock.push(data)
}

func waitForReply(t *testing.T, sock *fakeSocket) reply {
	t.Helper()
	select {
	case data := <-sock.writes:
		req := pool.AcquireMessage(context.Background())
		defer pool.ReleaseMessage(req)
		if _, err := req.Unmarshal(data); err != nil {
			t.Fatalf("Unmarshal reply POST: %v", err)
		}
		buf := new(bytes.Buffer)
		if body := req.Body(); body != nil {
			_, _ = buf.ReadFrom(body)
		}
		var r reply
		if err := cbor.Unmarshal(buf.Bytes(), &r); err != nil {
			t.Fatalf("Unmarshal reply body: %v", err)
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reply POST")
		return reply{}
	}
}

func TestDoubleMethodHappyPath(t *testing.T) {
	s, sock := testServer(t)
	if err := s.Register("double", func(params Params) (interface{}, StatusCode, error) {
		var args []int
		if err := cbor.Unmarshal(params, &args); err != nil || len(args) != 1 {
			return nil, StatusUnavailable, err
		}
		return map[string]int{"value": args[0] * 2}, StatusOK, nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	observeReq := <-sock.writes
	params, err := cbor.Marshal([]int{21})
	if err != nil {
		t.Fatalf("Marshal params: %v", err)
	}
	pushInvocation(t, sock, observeReq, invocation{Method: "double", ID: "req-1", Params: params})

	r := waitForReply(t, sock)
	if r.ID != "req-1" || r.StatusCode != StatusOK {
		t.Fatalf("reply = %+v, want ID=req-1 StatusCode=StatusOK", r)
	}
}

func TestUnknownMethodReturnsUnavailable(t *testing.T) {
	_, sock := testServer(t)

	observeReq := <-sock.writes
	pushInvocation(t, sock, observeReq, invocation{Method: "no-such-method", ID: "req-2"})

	r := waitForReply(t, sock)
	if r.ID != "req-2" || r.StatusCode != StatusUnavailable {
		t.Fatalf("reply = %+v, want ID=req-2 StatusCode=StatusUnavailable (14)", r)
	}
}
