package coapsdk

import "github.com/edgefleet/coap-sdk/internal/engine"

// EventKind distinguishes the two events the worker ever reports to user
// code: the DTLS session coming up or going down.
type EventKind int

const (
	EventConnected   EventKind = EventKind(engine.EventConnected)
	EventDisconnected EventKind = EventKind(engine.EventDisconnected)
)

// Event is delivered to an EventFunc registered with WithEventCallback.
type Event struct {
	Kind EventKind
}

// EventFunc receives connect/disconnect notifications. Called on the
// worker goroutine; it must return quickly and must not call back into the
// Client synchronously.
type EventFunc func(Event)
