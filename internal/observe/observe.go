// Package observe implements Component D: a fixed-size table of active
// server-push subscriptions, re-established on reconnect, per spec.md §4.D.
//
// Grounded on matrix-org/lb's coap_observe.go Observations type, which
// keys a registration table by "remote-addr/path@token" and guards it with
// a mutex (addRegistration/removeRegistration/getRegistration). That type
// runs on a CoAP *server* tracking clients observing it; this package is
// its mirror image, a CoAP *client* tracking its own outstanding
// observations of a server, but keeps the same invariant the teacher
// enforces: "if an entry with a matching endpoint/token pair is already
// present... the server MUST NOT add a new entry" (here: never two slots
// for the same prefix+path, per spec.md §3).
package observe

import (
	"fmt"
	"sync"

	"github.com/edgefleet/coap-sdk/internal/coapwire"
)

// Slot is one active observation, storing the full originating request
// (including its callback and token) inline, per spec.md §3: "Each used
// slot stores the full request... so the engine can (a) route async
// notifications to the right callback and (b) re-issue the observe after
// reconnect."
type Slot struct {
	Request *coapwire.Request
}

func key(prefix, path string) string {
	return prefix + path
}

// Registry is the fixed-capacity observation table. Every method holds the
// registry's mutex, so Register/Unregister from caller goroutines (via
// engine Observe/ObserveRelease) and lookups and Snapshot from the worker
// do not race on the table itself. The *coapwire.Request values in the
// slots are shared, not copied, and are not guarded by the mutex.
type Registry struct {
	capacity int

	mu    sync.Mutex
	slots map[string]*Slot // (prefix+path) -> slot
}

// New builds a registry with the given slot capacity (spec.md's
// MaxNumObservations).
func New(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		slots:    make(map[string]*Slot),
	}
}

// ErrFull is returned by Register when the table is at capacity.
type ErrFull struct{ Capacity int }

func (e *ErrFull) Error() string {
	return fmt.Sprintf("observe: registry full (capacity %d)", e.Capacity)
}

// ErrDuplicate is returned by Register when an entry for the same
// prefix+path already exists, per spec.md §3: "Observation table never
// contains two entries with the same path prefix + path."
type ErrDuplicate struct{ Prefix, Path string }

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("observe: already observing %s%s", e.Prefix, e.Path)
}

// Register allocates a slot for r, which must be a TypeObserve request.
func (reg *Registry) Register(r *coapwire.Request) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	k := key(r.PathPrefix, r.Path)
	if _, exists := reg.slots[k]; exists {
		return &ErrDuplicate{Prefix: r.PathPrefix, Path: r.Path}
	}
	if len(reg.slots) >= reg.capacity {
		return &ErrFull{Capacity: reg.capacity}
	}
	reg.slots[k] = &Slot{Request: r}
	return nil
}

// Unregister removes the slot for prefix+path. A cancel on an unknown
// path+prefix is a no-op that does not mutate the registry, per spec.md
// §8's boundary behavior for unknown tokens.
func (reg *Registry) Unregister(prefix, path string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.slots, key(prefix, path))
}

// ByToken finds the slot whose request currently holds token. Used by the
// engine to dispatch an inbound notification to the right callback (spec.md
// §4.D: "Every inbound response whose token matches an observation
// triggers the slot's callback, one copy per notification, never fanned
// out to multiple slots").
func (reg *Registry) ByToken(token []byte) (*Slot, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, s := range reg.slots {
		if tokenEqual(s.Request.Token, token) {
			return s, true
		}
	}
	return nil, false
}

// ByPrefixPath finds the slot registered for an exact prefix+path pair,
// used by ObserveRelease to recover the token to cancel.
func (reg *Registry) ByPrefixPath(prefix, path string) (*Slot, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	s, ok := reg.slots[key(prefix, path)]
	return s, ok
}

func tokenEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of all registered slots, used when reconnecting
// to re-issue every observe with a fresh token. Observations persist across
// a disconnect; only the token is overwritten (spec.md §3, §4.D).
func (reg *Registry) Snapshot() []*Slot {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Slot, 0, len(reg.slots))
	for _, s := range reg.slots {
		out = append(out, s)
	}
	return out
}

// Rekey overwrites a slot's request token, e.g. when re-registering after
// reconnect with a freshly allocated token.
func (reg *Registry) Rekey(prefix, path string, token []byte) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if s, ok := reg.slots[key(prefix, path)]; ok {
		s.Request.Token = token
	}
}

// Len reports the number of active observations.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.slots)
}
