package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"
	"github.com/plgd-dev/go-coap/v2/udp/message/pool"

	"github.com/edgefleet/coap-sdk/config"
	"github.com/edgefleet/coap-sdk/credential"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.KeepaliveInterval = time.Hour // keep the keepalive probe out of the way of assertions
	cfg.ResponseTimeout = 2 * time.Second
	cfg.ACKTimeout = 50 * time.Millisecond
	cfg.MaxRetransmits = 2
	return cfg
}

func newTestClient(t *testing.T, dialer *fakeDialer) *Client {
	t.Helper()
	c := New(testConfig(), credential.NewPSK("id", "secret"), WithDialer(dialer))
	c.Start()
	t.Cleanup(c.Destroy)
	return c
}

func waitForDial(t *testing.T, d *fakeDialer) *fakeSocket {
	t.Helper()
	return waitForDialWithin(t, d, time.Second)
}

// waitForDialWithin is used after forcing a disconnect, since run() sleeps a
// fixed second (worker.go's drainStopDuring(time.Second)) before redialing.
func waitForDialWithin(t *testing.T, d *fakeDialer, timeout time.Duration) *fakeSocket {
	t.Helper()
	select {
	case s := <-d.dialed:
		return s
	case <-time.After(timeout):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

func waitForWrite(t *testing.T, s *fakeSocket) []byte {
	t.Helper()
	return waitForWriteWithin(t, s, time.Second)
}

func waitForWriteWithin(t *testing.T, s *fakeSocket, timeout time.Duration) []byte {
	t.Helper()
	select {
	case data := <-s.writes:
		return data
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a write")
		return nil
	}
}

func decodeRequest(t *testing.T, data []byte) *pool.Message {
	t.Helper()
	msg := pool.AcquireMessage(context.Background())
	if _, err := msg.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal request: %v", err)
	}
	return msg
}

func buildResponse(t *testing.T, req *pool.Message, code codes.Code, format message.MediaType, payload []byte) []byte {
	t.Helper()
	msg := pool.AcquireMessage(context.Background())
	defer pool.ReleaseMessage(msg)
	msg.SetType(udpmessage.Acknowledgement)
	msg.SetCode(code)
	msg.SetMessageID(req.MessageID())
	msg.SetToken(req.Token())
	if len(payload) > 0 {
		msg.SetBody(bytes.NewReader(payload))
		msg.SetContentFormat(format)
	}
	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal response: %v", err)
	}
	return data
}

func TestGetRoundTrip(t *testing.T) {
	dialer := newFakeDialer()
	c := newTestClient(t, dialer)
	sock := waitForDial(t, dialer)

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.Get(context.Background(), ".d/", "temp", message.AppJSON)
		done <- result{resp, err}
	}()

	reqData := waitForWrite(t, sock)
	req := decodeRequest(t, reqData)
	if req.Code() != codes.GET {
		t.Fatalf("request code = %v, want GET", req.Code())
	}
	path, _ := req.Options().Path()
	if path != ".d/temp" {
		t.Fatalf("request path = %q, want %q", path, ".d/temp")
	}

	sock.push(buildResponse(t, req, codes.Content, message.AppJSON, []byte("42")))

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Get returned error: %v", r.err)
		}
		if string(r.resp.Payload) != "42" {
			t.Fatalf("payload = %q, want %q", r.resp.Payload, "42")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Get to resolve")
	}
}

func TestGetTimesOutAfterRetransmitsExhausted(t *testing.T) {
	dialer := newFakeDialer()
	c := newTestClient(t, dialer)
	sock := waitForDial(t, dialer)
	_ = sock // the fake server never responds, forcing retransmits then timeout

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Get(ctx, ".d/", "temp", message.AppJSON)
	if err == nil {
		t.Fatal("Get should fail once retries are exhausted without a response")
	}
}

func TestObservationsSurviveReconnect(t *testing.T) {
	dialer := newFakeDialer()
	c := newTestClient(t, dialer)
	sock1 := waitForDial(t, dialer)

	notifications := make(chan []byte, 4)
	if err := c.Observe(".d/", "temp", message.AppJSON, func(resp *Response, err error) {
		if err == nil {
			notifications <- resp.Payload
		}
	}); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	reqData := waitForWrite(t, sock1)
	req := decodeRequest(t, reqData)
	sock1.push(buildResponse(t, req, codes.Content, message.AppJSON, []byte("1")))

	select {
	case payload := <-notifications:
		if string(payload) != "1" {
			t.Fatalf("first notification = %q, want %q", payload, "1")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the first notification")
	}

	// Drop the connection; the worker should reconnect and re-issue the
	// observation with a fresh token, per spec.md §4.D.
	sock1.Close()

	sock2 := waitForDialWithin(t, dialer, 3*time.Second)
	reqData2 := waitForWriteWithin(t, sock2, 2*time.Second)
	req2 := decodeRequest(t, reqData2)
	if bytes.Equal(req2.Token(), req.Token()) {
		t.Fatal("re-registered observation should carry a fresh token")
	}
	sock2.push(buildResponse(t, req2, codes.Content, message.AppJSON, []byte("2")))

	select {
	case payload := <-notifications:
		if string(payload) != "2" {
			t.Fatalf("second notification = %q, want %q", payload, "2")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the post-reconnect notification")
	}
}
