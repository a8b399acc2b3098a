// Package backoff provides backoff and jitter calculation for retry loops.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Linear returns step multiplied by the attempt number.
// Attempt 1 returns step, attempt 2 returns 2*step, etc.
// Attempts < 1 return step.
func Linear(attempt int, step time.Duration) time.Duration {
	if attempt < 1 {
		return step
	}
	return time.Duration(attempt) * step
}

// Jitter returns a random duration uniformly distributed in [min, max].
// Spreads simultaneous retries from concurrent callers so they don't
// hit the remote service in lockstep.
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}
