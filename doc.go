// Package coapsdk is a device-side CoAP/DTLS SDK for Golioth's IoT cloud:
// one Client owns a DTLS 1.2 session and a single worker goroutine that
// serializes all request, response, observation and retransmission
// traffic, with an OTA firmware-update engine layered on top.
//
// Package layout follows matrix-org/lb's: a small set of flat feature
// packages (lightdb, stream, logging, rpc, settings, location, gateway,
// ota, bootloader) at or near the root, with internal/ holding the
// engine's private mechanics (mailbox, token allocator, pending-request
// tracker, observation registry, blockwise transfer, wire codec, and the
// worker itself) and cmd/ holding runnable examples.
//
// Client in this package is a thin wrapper over internal/engine.Client:
// application code normally constructs one Client with New, calls Start,
// and then hands client.Engine() to whichever feature packages it needs
// (lightdb.New, stream.New, rpc.New, settings.New, ota.New, ...). Engine()
// exists because those packages predate this wrapper and are grounded
// directly on internal/engine; Client itself covers the request primitives
// an application is likely to use without a feature package at all.
package coapsdk
