// Package pending implements Component C: tracking in-flight confirmable
// requests, matching replies by token (or by CoAP message ID for
// piggybacked empty ACKs), and driving exponential-backoff-with-jitter
// retransmission, per spec.md §4.C.
//
// matrix-org/lb never retransmits itself (go-coap's transport layer does
// that for the server side); the retransmit *policy knobs* are grounded on
// mobile/client.go's ConnectionParams (TransmissionACKTimeoutSecs,
// TransmissionMaxRetransmits) which configure exactly this behavior via
// dtls.WithTransmission - here the policy is reimplemented explicitly
// because spec.md requires the client-side pending table to drive its own
// retransmits against a hand-rolled worker loop rather than delegating to
// the transport.
package pending

import (
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/edgefleet/coap-sdk/internal/coapwire"
)

// Entry is a single in-flight confirmable request.
type Entry struct {
	Request *coapwire.Request

	FirstSent time.Time
	Timeout   time.Duration
	Retries   int

	messageID uint16

	// BlockPacket, for blockwise downloads, is a saved copy of the CoAP
	// packet prior to the Block2 option so retries can re-emit with
	// updated block state, per spec.md §3 ("Pending request").
	BlockPacket []byte
}

func (e *Entry) deadline() time.Time {
	return e.FirstSent.Add(e.Timeout)
}

// MessageID returns the CoAP message id this entry was registered under.
func (e *Entry) MessageID() uint16 { return e.messageID }

// Tracker is the pending-request table. All methods must be called from the
// single engine worker goroutine; it is not itself safe for concurrent use
// because spec.md §5 makes it worker-private state.
type Tracker struct {
	ackTimeout     time.Duration
	randomFactor   float64
	maxRetransmits int
	rng            *rand.Rand

	byToken map[string]*Entry
	byMsgID map[uint16]*Entry
}

// New builds a Tracker from the configured ACK timeout, random factor and
// max retransmit count (spec.md §4.C defaults: 2s, 1.5, 3).
func New(ackTimeout time.Duration, randomFactor float64, maxRetransmits int) *Tracker {
	return &Tracker{
		ackTimeout:     ackTimeout,
		randomFactor:   randomFactor,
		maxRetransmits: maxRetransmits,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		byToken:        make(map[string]*Entry),
		byMsgID:        make(map[uint16]*Entry),
	}
}

func tokenKey(tok []byte) string { return hex.EncodeToString(tok) }

// Add registers a freshly transmitted confirmable request, picking the
// initial randomized timeout in [ACK_TIMEOUT, ACK_TIMEOUT*RANDOM_FACTOR].
func (t *Tracker) Add(r *coapwire.Request, messageID uint16, now time.Time) *Entry {
	e := &Entry{
		Request:   r,
		FirstSent: now,
		Timeout:   t.initialTimeout(),
		Retries:   t.maxRetransmits,
		messageID: messageID,
	}
	t.byToken[tokenKey(r.Token)] = e
	t.byMsgID[messageID] = e
	return e
}

func (t *Tracker) initialTimeout() time.Duration {
	spread := float64(t.ackTimeout) * (t.randomFactor - 1)
	jitter := time.Duration(t.rng.Float64() * spread)
	return t.ackTimeout + jitter
}

// ByToken finds the pending entry for a response token, if any.
func (t *Tracker) ByToken(tok []byte) (*Entry, bool) {
	e, ok := t.byToken[tokenKey(tok)]
	return e, ok
}

// ByMessageID finds the pending entry for an empty piggybacked ACK that
// carries no token but shares the CoAP message id, per spec.md §4.C:
// "empty-body ACKs that share the CoAP message id but carry zero token
// match the outstanding request of the same id."
func (t *Tracker) ByMessageID(id uint16) (*Entry, bool) {
	e, ok := t.byMsgID[id]
	return e, ok
}

// Remove clears an entry after it is resolved (response, timeout, or
// exhaustion), freeing both index maps.
func (t *Tracker) Remove(e *Entry) {
	delete(t.byToken, tokenKey(e.Request.Token))
	delete(t.byMsgID, e.messageID)
}

// NextDeadline returns the earliest retransmit deadline across all pending
// entries, used by the engine's main-loop wake-up computation (spec.md
// §4.F step 1). ok is false if there are no pending entries.
func (t *Tracker) NextDeadline() (deadline time.Time, ok bool) {
	for _, e := range t.byToken {
		d := e.deadline()
		if !ok || d.Before(deadline) {
			deadline = d
			ok = true
		}
	}
	return deadline, ok
}

// Len reports the number of in-flight entries.
func (t *Tracker) Len() int { return len(t.byToken) }

// Drain removes and returns every pending entry, used when the socket drops
// and every in-flight request must be failed at once.
func (t *Tracker) Drain() []*Entry {
	out := make([]*Entry, 0, len(t.byToken))
	for _, e := range t.byToken {
		out = append(out, e)
	}
	t.byToken = make(map[string]*Entry)
	t.byMsgID = make(map[uint16]*Entry)
	return out
}

// TimedOut returns entries whose retransmit deadline has passed as of now.
func (t *Tracker) TimedOut(now time.Time) []*Entry {
	var out []*Entry
	for _, e := range t.byToken {
		if !now.Before(e.deadline()) {
			out = append(out, e)
		}
	}
	return out
}

// Retransmit doubles an entry's timeout and decrements its retry budget,
// per spec.md §4.C: "on timeout, double the interval and decrement
// retries." Returns false when the entry has exhausted its retries and
// must be dropped with a Timeout outcome instead.
func (t *Tracker) Retransmit(e *Entry, now time.Time) bool {
	if e.Retries <= 0 {
		return false
	}
	e.Retries--
	e.FirstSent = now
	e.Timeout *= 2
	return true
}
