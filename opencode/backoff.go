package opencode

import (
	"math"
	"time"
)

// Backoff default bounds.
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// Backoff computes reconnect delays. Each consecutive failure doubles the
// delay up to Max; any success resets it to Initial.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	failures int
}

// NewBackoff returns a Backoff with the given bounds, falling back to the
// defaults for zero values.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	return &Backoff{Initial: initial, Max: max}
}

// Next records a failure and returns the delay to wait before the next
// attempt: Initial * 2^(n-1) for the nth consecutive failure, capped at Max.
func (b *Backoff) Next() time.Duration {
	b.failures++
	delay := float64(b.Initial) * math.Pow(2, float64(b.failures-1))
	if delay > float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}

// Reset clears the failure count after a successful connection.
func (b *Backoff) Reset() {
	b.failures = 0
}
