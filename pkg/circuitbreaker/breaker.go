// Package circuitbreaker implements an escalating circuit breaker for
// overloaded services.
//
// Unlike a classic open/half-open breaker, this breaker never blocks
// requests outright. It counts consecutive overload signals (503/504
// style responses) and, once the count reaches a threshold, engages and
// prescribes progressively longer waits before the next attempt. A
// breaker covers one bounded retry sequence; callers create a fresh one
// per sequence rather than resetting.
package circuitbreaker

import (
	"sync"
	"time"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	Threshold int           // consecutive overloads before engaging (default: 3)
	Base      time.Duration // wait floor once engaged (default: 60s)
	Step      time.Duration // added per consecutive overload (default: 20s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: 3,
		Base:      60 * time.Second,
		Step:      20 * time.Second,
	}
}

// Breaker tracks consecutive overload signals for a single remote service.
type Breaker struct {
	mu          sync.Mutex
	consecutive int
	threshold   int
	base        time.Duration
	step        time.Duration
}

// New creates a new circuit breaker.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Base <= 0 {
		cfg.Base = 60 * time.Second
	}
	if cfg.Step <= 0 {
		cfg.Step = 20 * time.Second
	}
	return &Breaker{
		threshold: cfg.Threshold,
		base:      cfg.Base,
		step:      cfg.Step,
	}
}

// RecordOverload records one overload signal and returns the new
// consecutive count.
func (b *Breaker) RecordOverload() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	return b.consecutive
}

// Engaged returns true once the consecutive overload count has reached
// the threshold.
func (b *Breaker) Engaged() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive >= b.threshold
}

// Backoff returns the escalated wait: base plus step per consecutive
// overload. Grows monotonically while overloads keep coming.
func (b *Breaker) Backoff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base + time.Duration(b.consecutive)*b.step
}
