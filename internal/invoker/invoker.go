// Package invoker wraps remote calls in retry, backoff and
// circuit-breaking policy. Submission gets long, patient backoff
// because it is a one-shot, high-value operation; status fetches get a
// small per-tick budget because the poll loop already provides the
// outer retry cadence.
package invoker

import (
	"context"
	"log/slog"
	"time"

	"crewproxy/internal/remote"
	"crewproxy/pkg/backoff"
	"crewproxy/pkg/circuitbreaker"
)

// MetricsRecorder is an optional interface for recording retry metrics.
type MetricsRecorder interface {
	RecordSubmitRetry()
	RecordStatusRetry()
	RecordBreakerEngaged()
}

// Policy holds the retry policy. Zero values use production defaults;
// tests shrink the durations.
type Policy struct {
	SubmitMaxAttempts   int           // default: 8
	JitterMin           time.Duration // default: 1s
	JitterMax           time.Duration // default: 3s
	TimeoutBackoffStep  time.Duration // default: 8s, multiplied by attempt number
	OverloadBackoffStep time.Duration // default: 30s, multiplied by attempt number
	BreakerThreshold    int           // default: 3 consecutive overloads
	BreakerBase         time.Duration // default: 60s
	BreakerStep         time.Duration // default: 20s per consecutive overload
	StatusMaxAttempts   int           // default: 2 per poll tick
	StatusTimeoutWait   time.Duration // default: 2s
	Status503Wait       time.Duration // default: 8s
	Status504Wait       time.Duration // default: 5s
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.SubmitMaxAttempts <= 0 {
		p.SubmitMaxAttempts = 8
	}
	if p.JitterMin <= 0 {
		p.JitterMin = time.Second
	}
	if p.JitterMax <= 0 {
		p.JitterMax = 3 * time.Second
	}
	if p.TimeoutBackoffStep <= 0 {
		p.TimeoutBackoffStep = 8 * time.Second
	}
	if p.OverloadBackoffStep <= 0 {
		p.OverloadBackoffStep = 30 * time.Second
	}
	if p.BreakerThreshold <= 0 {
		p.BreakerThreshold = 3
	}
	if p.BreakerBase <= 0 {
		p.BreakerBase = 60 * time.Second
	}
	if p.BreakerStep <= 0 {
		p.BreakerStep = 20 * time.Second
	}
	if p.StatusMaxAttempts <= 0 {
		p.StatusMaxAttempts = 2
	}
	if p.StatusTimeoutWait <= 0 {
		p.StatusTimeoutWait = 2 * time.Second
	}
	if p.Status503Wait <= 0 {
		p.Status503Wait = 8 * time.Second
	}
	if p.Status504Wait <= 0 {
		p.Status504Wait = 5 * time.Second
	}
	return p
}

// Invoker executes remote calls under the retry policy.
type Invoker struct {
	client     *remote.Client
	policy     Policy
	breakerCfg circuitbreaker.Config
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// New creates an invoker around a transport client.
func New(client *remote.Client, policy Policy, metrics MetricsRecorder) *Invoker {
	policy = policy.withDefaults()
	return &Invoker{
		client: client,
		policy: policy,
		breakerCfg: circuitbreaker.Config{
			Threshold: policy.BreakerThreshold,
			Base:      policy.BreakerBase,
			Step:      policy.BreakerStep,
		},
		logger:  slog.With("component", "invoker"),
		metrics: metrics,
	}
}

// Submit kicks off a job with bounded retry. Timeouts back off linearly,
// overload responses (503/504) back off linearly until the breaker
// engages and escalates the wait. Other failures propagate immediately.
func (i *Invoker) Submit(ctx context.Context, baseURL, token string, payload any) (string, error) {
	// Overload counting is scoped to this submission: every submission
	// starts its first 503 on the linear schedule, no matter how the
	// previous one ended.
	breaker := circuitbreaker.New(i.breakerCfg)

	var lastErr error
	for attempt := 0; attempt < i.policy.SubmitMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := i.sleep(ctx, backoff.Jitter(i.policy.JitterMin, i.policy.JitterMax)); err != nil {
				return "", err
			}
		}

		handle, err := i.client.Submit(ctx, baseURL, token, payload)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		last := attempt == i.policy.SubmitMaxAttempts-1

		switch {
		case remote.IsTimeout(err):
			if last {
				return "", err
			}
			wait := backoff.Linear(attempt+1, i.policy.TimeoutBackoffStep)
			i.logger.Warn("Kickoff timed out, retrying",
				"attempt", attempt+1, "wait", wait)
			if err := i.sleep(ctx, wait); err != nil {
				return "", err
			}

		case remote.IsOverload(err):
			consecutive := breaker.RecordOverload()
			var wait time.Duration
			if breaker.Engaged() {
				wait = breaker.Backoff()
				if i.metrics != nil {
					i.metrics.RecordBreakerEngaged()
				}
				i.logger.Warn("Circuit breaker engaged, backing off",
					"consecutive", consecutive, "wait", wait)
			} else {
				wait = backoff.Linear(attempt+1, i.policy.OverloadBackoffStep)
			}
			if last {
				i.logger.Error("Kickoff retries exhausted, service overloaded",
					"attempts", i.policy.SubmitMaxAttempts)
				return "", err
			}
			i.logger.Warn("Kickoff overloaded, retrying",
				"status", remote.StatusCode(err), "attempt", attempt+1, "wait", wait)
			if err := i.sleep(ctx, wait); err != nil {
				return "", err
			}

		default:
			// Non-transient: other HTTP codes, network failures,
			// malformed responses.
			return "", err
		}

		if i.metrics != nil {
			i.metrics.RecordSubmitRetry()
		}
	}
	return "", lastErr
}

// FetchStatus retrieves a status snapshot with at most the per-tick
// retry budget.
func (i *Invoker) FetchStatus(ctx context.Context, baseURL, token, handle string) (*remote.Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < i.policy.StatusMaxAttempts; attempt++ {
		snap, err := i.client.FetchStatus(ctx, baseURL, token, handle)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		last := attempt == i.policy.StatusMaxAttempts-1

		switch {
		case remote.IsTimeout(err):
			if last {
				return nil, err
			}
			i.logger.Warn("Status fetch timed out, retrying", "handle", handle, "attempt", attempt+1)
			if err := i.sleep(ctx, i.policy.StatusTimeoutWait); err != nil {
				return nil, err
			}

		case remote.IsOverload(err):
			if last {
				return nil, err
			}
			wait := i.policy.Status503Wait
			if remote.StatusCode(err) == 504 {
				wait = i.policy.Status504Wait
			}
			i.logger.Warn("Status fetch overloaded, retrying",
				"handle", handle, "status", remote.StatusCode(err), "wait", wait)
			if err := i.sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			return nil, err
		}

		if i.metrics != nil {
			i.metrics.RecordStatusRetry()
		}
	}
	return nil, lastErr
}

// sleep waits for d or until the context is done.
func (i *Invoker) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
