// Package retry implements the two exponential backoff ladders used
// across the Runner: a network-class ladder for LLM calls and branch
// pushes, and a task-class ladder driven by the dispatcher's RetryManager.
package retry

import (
	"time"
)

// Policy is a state-free exponential backoff schedule: delay(n) =
// min(initial * base^n, max_delay). Callers own the attempt counter.
type Policy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

// NetworkDefaults returns the network-class ladder from spec §5:
// initial=1s, base=2, max=60s, max_retries=3. Used for LLM calls and
// branch pushes.
func NetworkDefaults() Policy {
	return Policy{
		MaxRetries:      3,
		InitialDelay:    time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
	}
}

// TaskDefaults returns the task-class ladder from spec §5: initial=1s,
// base=2, max=300s, max_attempts=3. Used by the dispatcher-facing
// RetryManager, keyed by retry_count rather than an in-process attempt.
func TaskDefaults() Policy {
	return Policy{
		MaxRetries:      3,
		InitialDelay:    time.Second,
		MaxDelay:        300 * time.Second,
		ExponentialBase: 2,
	}
}

// Delay returns the backoff duration before attempt n (0-indexed).
// It is monotonically non-decreasing until it saturates at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.ExponentialBase
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}

	delay := time.Duration(d)
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether attempt has used up all retries.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxRetries
}
