package ota

import "time"

// Backoff implements the doubling-with-cap retry delay fw_update.c applies
// both to per-component download retries (60s initial, 24h cap) and to
// report resilience (5s initial, 180s cap, 5 attempts).
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff starts a backoff sequence at initial, capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{initial: initial, max: max, current: initial}
}

// Next returns the delay to wait before the next attempt, then doubles it
// for the attempt after that, capped at max.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset returns the backoff to its initial delay, called after a successful
// attempt so the next failure starts the sequence over.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// componentBackoffInitial/Max mirror fw_update.c's
// BACKOFF_DURATION_INITIAL_MS (60s) and BACKOFF_DURATION_MAX_MS (24h).
const (
	componentBackoffInitial = 60 * time.Second
	componentBackoffMax     = 24 * time.Hour
)

// resumeDelay and maxBlockResumeBeforeFail mirror fw_update.c's
// FW_UPDATE_RESUME_DELAY_S (15s) and MAX_BLOCK_RESUME_BEFORE_FAIL (15): a
// block write/transport failure is retried up to 15 times, 15s apart,
// before the whole component download is abandoned.
const (
	resumeDelay              = 15 * time.Second
	maxBlockResumeBeforeFail = 15
)
