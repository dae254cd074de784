package coapwire

import (
	"context"
	"time"
)

// syncWaiter implements the sync-over-async handshake of spec.md §9
// ("Coroutine / sync-over-async"): the caller creates the event, the worker
// signals it exactly once on completion, and the caller acknowledges
// receipt through a second semaphore before the worker frees the request.
// This prevents the worker from touching freed memory if the caller's own
// timeout fires first and it stops waiting.
type syncWaiter struct {
	done chan result
	ack  chan struct{}
}

type result struct {
	resp *Response
	err  error
}

func newSyncWaiter() *syncWaiter {
	return &syncWaiter{
		done: make(chan result, 1),
		ack:  make(chan struct{}, 1),
	}
}

// signal is called by the worker exactly once: on response, timeout, or
// drop. It never blocks (the done channel is buffered by 1), so the worker
// does not stall waiting for a caller that already gave up.
func (w *syncWaiter) signal(resp *Response, err error) {
	select {
	case w.done <- result{resp: resp, err: err}:
	default:
	}
}

// waitAck blocks (bounded by ctx) until the caller has acknowledged
// receipt, or returns immediately if the caller already will never call
// Wait (ctx already done). The worker calls this after signal before
// freeing the request's payload buffer.
func (w *syncWaiter) waitAck(ctx context.Context) {
	select {
	case <-w.ack:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		// Backstop: a caller that never retrieves the result (e.g. it
		// panicked) must not wedge the worker forever.
	}
}

// Wait blocks until the worker signals completion or ctx's deadline
// passes, then acknowledges receipt so the worker can free the request.
func (w *syncWaiter) Wait(ctx context.Context) (*Response, error) {
	select {
	case r := <-w.done:
		select {
		case w.ack <- struct{}{}:
		default:
		}
		return r.resp, r.err
	case <-ctx.Done():
		select {
		case w.ack <- struct{}{}:
		default:
		}
		return nil, ctx.Err()
	}
}

// NewSync attaches a completion handshake to r and returns the waiter the
// calling goroutine should block on.
func NewSync(r *Request) *syncWaiter {
	w := newSyncWaiter()
	r.sync = w
	return w
}

// Signal delivers the worker's outcome to r's sync waiter, if any. Safe to
// call on async requests (no-op).
func (r *Request) Signal(resp *Response, err error) {
	if r.sync != nil {
		r.sync.signal(resp, err)
	}
}

// AckWait blocks until r's sync waiter's caller has acknowledged delivery,
// per the design note's use-after-free prevention. No-op for async
// requests.
func (r *Request) AckWait(ctx context.Context) {
	if r.sync != nil {
		r.sync.waitAck(ctx)
	}
}
