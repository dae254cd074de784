// Package mailbox implements the bounded, multi-producer/single-consumer
// request queue of spec.md §4.A: "Producer operations are non-blocking and
// fail with 'queue full'; consumer operations may block with a timeout."
//
// matrix-org/lb's engine is server-side and never needed this; the nearest
// grounding in the pack is mobile/client.go's use of a buffered Go channel
// for observe notifications (ObserveBufferSize). A buffered channel plus a
// select/default send is the idiomatic Go rendering of the C SDK's
// ring-buffer-and-counting-semaphore mailbox: the channel's internal ring
// buffer is the bounded ring, and a select across the channel and a timer
// is the "waitable handle union" the engine needs to multiplex the mailbox
// against socket readiness in one wait.
package mailbox

import (
	"context"
	"errors"
)

// ErrFull is returned by Push when the mailbox is at capacity.
var ErrFull = errors.New("mailbox: queue full")

// Mailbox is a generic bounded FIFO queue of T. The zero value is not
// usable; construct with New.
type Mailbox[T any] struct {
	ch chan T
}

// New creates a mailbox with the given capacity. Spec.md requires capacity
// >= 16; callers are expected to pass config.Config.RequestQueueMaxItems.
func New[T any](capacity int) *Mailbox[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox[T]{ch: make(chan T, capacity)}
}

// Push enqueues item without blocking. Returns ErrFull if the mailbox is at
// capacity; the caller retains ownership of item in that case (spec.md §7:
// "the caller retains ownership of its payload... no callback will fire").
func (m *Mailbox[T]) Push(item T) error {
	select {
	case m.ch <- item:
		return nil
	default:
		return ErrFull
	}
}

// Pop blocks until an item is available, ctx is done, or the mailbox is
// closed. ok is false when ctx is done or when the mailbox was closed and
// drained.
func (m *Mailbox[T]) Pop(ctx context.Context) (item T, ok bool) {
	select {
	case item, ok = <-m.ch:
		return item, ok
	case <-ctx.Done():
		return item, false
	}
}

// Chan exposes the underlying channel read-only so the engine's main loop
// can select across it alongside socket readiness, per spec.md §4.F step 2:
// "Wait on the union of (socket readable) and (mailbox non-empty)."
func (m *Mailbox[T]) Chan() <-chan T {
	return m.ch
}

// Len reports the number of items currently queued, for diagnostics only.
func (m *Mailbox[T]) Len() int {
	return len(m.ch)
}

// Close closes the underlying channel. Only the producer side that owns the
// mailbox's lifetime (the Client) should call this, during Destroy.
func (m *Mailbox[T]) Close() {
	close(m.ch)
}
