// Package config holds the enumerated configuration options from spec.md
// §6. Mirroring matrix-org/lb's mobile.ConnectionParams, configuration is a
// plain struct literal with documented defaults rather than a file format or
// env-parsing library - the teacher itself never reaches for viper/env for
// this kind of tuning knob, so neither do we (see DESIGN.md).
package config

import "time"

// Config bundles every tunable named in spec.md §6's configuration table.
type Config struct {
	// MaxPathLen bounds any request path (not counting the path prefix).
	MaxPathLen int
	// RequestQueueMaxItems is the mailbox capacity (component A).
	RequestQueueMaxItems int
	// RequestQueueTimeout is a wait-slice setting for the worker's
	// mailbox/socket multiplexing. No package reads it: the worker's wait is
	// bounded by the next retransmit deadline and the keepalive interval.
	RequestQueueTimeout time.Duration
	// ResponseTimeout is the default per-request age-out deadline.
	ResponseTimeout time.Duration
	// KeepaliveInterval is the idle interval before an empty DELETE probe
	// is sent. Zero disables keepalive probing.
	KeepaliveInterval time.Duration
	// BlockwiseDownloadMaxBlockSize is the preferred Block2 size, 16..1024.
	BlockwiseDownloadMaxBlockSize int
	// BlockwiseUploadMaxBlockSize is the preferred Block1 size, 16..1024.
	BlockwiseUploadMaxBlockSize int
	// MaxNumObservations is the observation-slot table capacity.
	MaxNumObservations int
	// FWUpdateRollbackTimer bounds how long a pending-verify boot waits for
	// "connected" before rolling back.
	FWUpdateRollbackTimer time.Duration
	// FWUpdateObservationRetryMaxDelay is a cap for a retry-to-observe
	// backoff. No package reads it: ota.Updater registers its manifest
	// observation once and does not retry a failed registration.
	FWUpdateObservationRetryMaxDelay time.Duration
	// OTAManifestPollInterval periodically re-polls the manifest path even
	// while the observation holds. Zero disables the poll.
	OTAManifestPollInterval time.Duration
	// OTAMaxNumComponents bounds components accepted per manifest.
	OTAMaxNumComponents int
	// RPCMaxNumMethods bounds registered RPC handler capacity.
	RPCMaxNumMethods int

	// ACKTimeout and RandomFactor parameterize the CON retransmit backoff
	// of spec.md §4.C (defaults 2s / 1.5).
	ACKTimeout  time.Duration
	RandomFactor float64
	// MaxRetransmits is the number of retries after the first transmission
	// (default 3, for 4 total transmissions, per spec.md §8).
	MaxRetransmits int

	// ServerAddress is the DTLS server host:port. Spec.md §6 treats the URI
	// as a compile-time constant; here it is a field so tests can point at
	// an in-process fake.
	ServerAddress string
}

// Default returns the configuration defaults named throughout spec.md.
func Default() Config {
	return Config{
		MaxPathLen:                       256,
		RequestQueueMaxItems:             16,
		RequestQueueTimeout:              100 * time.Millisecond,
		ResponseTimeout:                  10 * time.Second,
		KeepaliveInterval:                9 * time.Second,
		BlockwiseDownloadMaxBlockSize:    1024,
		BlockwiseUploadMaxBlockSize:      1024,
		MaxNumObservations:               8,
		FWUpdateRollbackTimer:            30 * time.Second,
		FWUpdateObservationRetryMaxDelay: 30 * time.Second,
		OTAManifestPollInterval:          0,
		OTAMaxNumComponents:              2,
		RPCMaxNumMethods:                 10,
		ACKTimeout:                       2 * time.Second,
		RandomFactor:                     1.5,
		MaxRetransmits:                   3,
		ServerAddress:                    "coap.golioth.io:5684",
	}
}
