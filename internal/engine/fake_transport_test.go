package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/edgefleet/coap-sdk/internal/transport"
)

// fakeSocket is an in-memory transport.Socket standing in for a real DTLS
// connection, mirroring matrix-org/lb's cmd/proxy/proxy_test.go
// channelPacketConn: one channel carries bytes the engine writes out, the
// other carries bytes a fake "server" goroutine pushes back in.
type fakeSocket struct {
	writes chan []byte

	mu     sync.Mutex
	reads  chan []byte
	closed bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		writes: make(chan []byte, 16),
		reads:  make(chan []byte, 16),
	}
}

func (s *fakeSocket) WritePacket(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case s.writes <- cp:
		return nil
	default:
		return errors.New("fakeSocket: writes buffer full")
	}
}

func (s *fakeSocket) ReadPacket(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-s.reads:
		if !ok {
			return nil, errors.New("fakeSocket: closed")
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.reads)
	}
	return nil
}

// push delivers data to the engine as an inbound datagram. No-op once the
// socket has been closed, since a fake "server" may race the engine's
// teardown in tests that stop the client mid-flight.
func (s *fakeSocket) push(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.reads <- data:
	default:
	}
}

// fakeDialer hands out fakeSockets and records every dial, letting tests
// observe reconnects (spec.md §4.D's re-observe-on-reconnect behavior).
type fakeDialer struct {
	mu      sync.Mutex
	dialed  chan *fakeSocket
	failNext bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeSocket, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, addr string) (transport.Socket, error) {
	d.mu.Lock()
	fail := d.failNext
	d.failNext = false
	d.mu.Unlock()
	if fail {
		return nil, errors.New("fakeDialer: forced dial failure")
	}
	sock := newFakeSocket()
	d.dialed <- sock
	return sock, nil
}
