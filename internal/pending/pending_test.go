package pending

import (
	"testing"
	"time"

	"github.com/edgefleet/coap-sdk/internal/coapwire"
)

func newTestTracker() *Tracker {
	return New(2*time.Second, 1.5, 3)
}

func TestAddAndLookupByTokenAndMessageID(t *testing.T) {
	tr := newTestTracker()
	r := &coapwire.Request{Type: coapwire.TypeGet, Token: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	now := time.Now()
	e := tr.Add(r, 42, now)

	got, ok := tr.ByToken(r.Token)
	if !ok || got != e {
		t.Fatalf("ByToken did not find entry")
	}
	got, ok = tr.ByMessageID(42)
	if !ok || got != e {
		t.Fatalf("ByMessageID did not find entry")
	}
	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}
}

func TestRemoveClearsBothIndices(t *testing.T) {
	tr := newTestTracker()
	r := &coapwire.Request{Token: []byte{9, 9}}
	e := tr.Add(r, 7, time.Now())
	tr.Remove(e)
	if _, ok := tr.ByToken(r.Token); ok {
		t.Fatal("entry still findable by token after Remove")
	}
	if _, ok := tr.ByMessageID(7); ok {
		t.Fatal("entry still findable by message id after Remove")
	}
}

func TestTimedOutAndRetransmit(t *testing.T) {
	tr := newTestTracker()
	r := &coapwire.Request{Token: []byte{1}}
	start := time.Now()
	e := tr.Add(r, 1, start)
	e.Timeout = 10 * time.Millisecond

	notYet := tr.TimedOut(start)
	if len(notYet) != 0 {
		t.Fatalf("TimedOut at start = %d entries, want 0", len(notYet))
	}

	later := start.Add(20 * time.Millisecond)
	timedOut := tr.TimedOut(later)
	if len(timedOut) != 1 || timedOut[0] != e {
		t.Fatalf("TimedOut after deadline did not return the entry")
	}

	oldTimeout := e.Timeout
	if ok := tr.Retransmit(e, later); !ok {
		t.Fatal("Retransmit should succeed with retries remaining")
	}
	if e.Timeout != oldTimeout*2 {
		t.Fatalf("Timeout = %v, want doubled to %v", e.Timeout, oldTimeout*2)
	}
}

func TestRetransmitExhaustion(t *testing.T) {
	tr := newTestTracker()
	r := &coapwire.Request{Token: []byte{1}}
	e := tr.Add(r, 1, time.Now())
	e.Retries = 0
	if ok := tr.Retransmit(e, time.Now()); ok {
		t.Fatal("Retransmit should fail once retries are exhausted")
	}
}

func TestNextDeadlineIsEarliest(t *testing.T) {
	tr := newTestTracker()
	base := time.Now()
	e1 := tr.Add(&coapwire.Request{Token: []byte{1}}, 1, base)
	e1.Timeout = 5 * time.Second
	e2 := tr.Add(&coapwire.Request{Token: []byte{2}}, 2, base)
	e2.Timeout = 1 * time.Second

	d, ok := tr.NextDeadline()
	if !ok {
		t.Fatal("NextDeadline reported none pending")
	}
	if !d.Equal(e2.deadline()) {
		t.Fatalf("NextDeadline = %v, want %v (the sooner entry)", d, e2.deadline())
	}
}

func TestDrainEmptiesTracker(t *testing.T) {
	tr := newTestTracker()
	tr.Add(&coapwire.Request{Token: []byte{1}}, 1, time.Now())
	tr.Add(&coapwire.Request{Token: []byte{2}}, 2, time.Now())

	drained := tr.Drain()
	if len(drained) != 2 {
		t.Fatalf("Drain returned %d entries, want 2", len(drained))
	}
	if tr.Len() != 0 {
		t.Fatalf("Len after Drain = %d, want 0", tr.Len())
	}
	if _, ok := tr.NextDeadline(); ok {
		t.Fatal("NextDeadline should report none after Drain")
	}
}
