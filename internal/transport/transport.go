// Package transport owns the raw DTLS 1.2 socket the engine multiplexes
// against its mailbox (spec.md §4.F: "Owns DTLS socket; pumps request
// queue"). It is deliberately a thin wrapper around pion/dtls/v2 rather
// than go-coap/v2's higher-level UDP client, because the engine needs to
// build and parse its own CoAP datagrams (component F drives its own
// pending/retransmit/observe/blockwise state machines) instead of
// delegating request/response correlation to a library client, the way
// matrix-org/lb's cmd/coap/main.go and mobile/client.go do for their
// proxy use case.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	piondtls "github.com/pion/dtls/v2"

	"github.com/edgefleet/coap-sdk/credential"
)

// Socket is the minimal duplex-datagram interface the engine needs. A real
// Socket is backed by a *piondtls.Conn; tests substitute an in-memory fake
// feeding canned CoAP datagrams, mirroring the original C SDK's
// tests/unit_tests/fakes/coap_client_fake.c.
type Socket interface {
	// WritePacket sends one datagram.
	WritePacket(b []byte) error
	// ReadPacket blocks until a datagram arrives, ctx is done, or the
	// socket errors. It returns the datagram or a non-nil error.
	ReadPacket(ctx context.Context) ([]byte, error)
	// Close releases the underlying connection.
	Close() error
}

// Dialer creates Sockets against a server address. Production code uses
// DTLSDialer; tests inject a fake.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Socket, error)
}

// DTLSDialer dials a DTLS 1.2 session using pion/dtls/v2, selecting PSK or
// X.509 key exchange from the supplied credential, per spec.md §3/§6.
type DTLSDialer struct {
	Cred               credential.Credential
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration
}

func (d DTLSDialer) Dial(ctx context.Context, addr string) (Socket, error) {
	cfg := &piondtls.Config{
		InsecureSkipVerify: d.InsecureSkipVerify,
	}
	switch d.Cred.Kind {
	case credential.PSK:
		cfg.PSK = func(hint []byte) ([]byte, error) {
			return d.Cred.PSKSecret, nil
		}
		cfg.PSKIdentityHint = d.Cred.PSKIdentity
		cfg.CipherSuites = []piondtls.CipherSuiteID{
			piondtls.TLS_PSK_WITH_AES_128_CCM_8,
			piondtls.TLS_PSK_WITH_AES_128_GCM_SHA256,
		}
	case credential.X509:
		cert, err := tls.X509KeyPair(d.Cred.ClientCert, d.Cred.ClientKey)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := piondtls.DialWithContext(dialCtx, "udp", raddr, cfg)
	if err != nil {
		return nil, err
	}
	return &dtlsSocket{conn: conn}, nil
}

type dtlsSocket struct {
	conn *piondtls.Conn
}

const maxDatagramSize = 2048

func (s *dtlsSocket) WritePacket(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

func (s *dtlsSocket) ReadPacket(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(dl)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, maxDatagramSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *dtlsSocket) Close() error {
	return s.conn.Close()
}
