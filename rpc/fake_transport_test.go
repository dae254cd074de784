package rpc

import (
	"context"
	"errors"
	"sync"

	"github.com/edgefleet/coap-sdk/internal/transport"
)

// fakeSocket/fakeDialer mirror internal/engine's test doubles (grounded on
// matrix-org/lb's cmd/proxy/proxy_test.go channelPacketConn); duplicated
// here since the engine's versions are unexported in another package.
type fakeSocket struct {
	writes chan []byte

	mu     sync.Mutex
	reads  chan []byte
	closed bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{writes: make(chan []byte, 16), reads: make(chan []byte, 16)}
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

type fakeDialer struct {
	dialed chan *fakeSocket
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeSocket, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, addr string) (transport.Socket, error) {
	sock := newFakeSocket()
	d.dialed <- sock
	return sock, nil
}
