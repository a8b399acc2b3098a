package circuitbreaker

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	if cfg.Threshold != 3 {
		t.Errorf("Expected Threshold 3, got %d", cfg.Threshold)
	}
	if cfg.Base != 60*time.Second {
		t.Errorf("Expected Base 60s, got %v", cfg.Base)
	}
	if cfg.Step != 20*time.Second {
		t.Errorf("Expected Step 20s, got %v", cfg.Step)
	}
}

func TestNew_WithZeroValues(t *testing.T) {
	t.Parallel()
	// Zero values should use defaults
	b := New(Config{})

	for i := 0; i < 2; i++ {
		b.RecordOverload()
	}
	if b.Engaged() {
		t.Error("Expected not engaged after 2 overloads (default threshold is 3)")
	}

	b.RecordOverload()
	if !b.Engaged() {
		t.Error("Expected engaged after 3 overloads")
	}
}

func TestBreaker_FreshBreakerStartsDisengaged(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Base: time.Minute, Step: 20 * time.Second})

	for i := 0; i < 5; i++ {
		b.RecordOverload()
	}
	if !b.Engaged() {
		t.Fatal("Expected engaged after 5 overloads")
	}

	// A new retry sequence gets a new breaker with a zero count.
	fresh := New(Config{Threshold: 3, Base: time.Minute, Step: 20 * time.Second})
	if fresh.Engaged() {
		t.Error("Expected a fresh breaker to start disengaged")
	}
	if got := fresh.RecordOverload(); got != 1 {
		t.Errorf("Expected fresh breaker count 1 after one overload, got %d", got)
	}
}

func TestBreaker_BackoffEscalates(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Base: 60 * time.Second, Step: 20 * time.Second})

	// Wait sequence must be non-decreasing as overloads accumulate
	var prev time.Duration
	for i := 1; i <= 6; i++ {
		b.RecordOverload()
		wait := b.Backoff()
		if wait < prev {
			t.Fatalf("Backoff decreased: %v after %v at overload %d", wait, prev, i)
		}
		prev = wait
	}

	// 6 consecutive overloads: 60s + 6*20s
	if prev != 180*time.Second {
		t.Errorf("Expected 180s after 6 overloads, got %v", prev)
	}
}

func TestBreaker_RecordOverloadReturnsCount(t *testing.T) {
	t.Parallel()
	b := New(DefaultConfig())

	for want := 1; want <= 4; want++ {
		if got := b.RecordOverload(); got != want {
			t.Errorf("RecordOverload() = %d, want %d", got, want)
		}
	}
}
