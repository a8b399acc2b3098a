package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crewproxy/internal/invoker"
	"crewproxy/internal/observability"
	"crewproxy/internal/registry"
)

// Config holds orchestrator tuning. Zero values use production
// defaults: 20 poll ticks of 10 seconds each, a 200 second wait budget.
type Config struct {
	PollInterval time.Duration
	MaxTicks     int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.MaxTicks <= 0 {
		c.MaxTicks = 20
	}
	return c
}

// Orchestrator is the public entry point of the core: synchronous
// submit-and-await, and resume for jobs that outlived their original
// request. All lifecycle state flows through the registry.
type Orchestrator struct {
	invoker      *invoker.Invoker
	store        registry.Store
	metrics      *observability.Metrics
	logger       *slog.Logger
	pollInterval time.Duration
	maxTicks     int
}

// New creates an orchestrator.
func New(inv *invoker.Invoker, store registry.Store, metrics *observability.Metrics, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		invoker:      inv,
		store:        store,
		metrics:      metrics,
		logger:       slog.With("component", "orchestrator"),
		pollInterval: cfg.PollInterval,
		maxTicks:     cfg.MaxTicks,
	}
}

// SubmitAndAwait kicks off a job and polls until it finishes or the
// wait budget expires. A budget expiry is not an error: the job is
// suspended as TIMEOUT and the handle is returned so the caller can
// resume later.
func (o *Orchestrator) SubmitAndAwait(ctx context.Context, sub Submission) Outcome {
	start := time.Now()
	logger := o.logger.With("apiType", sub.APIType)

	handle, err := o.invoker.Submit(ctx, sub.BaseURL, sub.Token, sub.Payload)
	if err != nil {
		// No handle exists yet, so nothing is persisted.
		logger.Error("Kickoff failed", "error", err)
		o.recordSubmission(ctx, sub.APIType, "submit_failed", start)
		return Outcome{Success: false, Error: "API request failed: " + friendlyError(err)}
	}

	logger.Info("Kickoff accepted", "handle", handle)

	rec := registry.Record{
		Status:       registry.StatusPending,
		CreatedAt:    time.Now().UTC(),
		APIType:      sub.APIType,
		SubmissionID: sub.SubmissionID,
		BaseURL:      sub.BaseURL,
		Token:        sub.Token,
	}
	if err := o.store.Put(handle, rec); err != nil {
		logger.Error("Failed to register job", "handle", handle, "error", err)
	}

	if o.metrics != nil {
		o.metrics.RecordJobActive(ctx, 1)
		defer o.metrics.RecordJobActive(ctx, -1)
	}

	out := o.await(ctx, handle, sub.BaseURL, sub.Token)
	switch out.kind {
	case pollSuccess:
		o.recordSubmission(ctx, sub.APIType, "success", start)
		return Outcome{Success: true, Data: out.data}

	case pollFailed, pollError:
		o.recordSubmission(ctx, sub.APIType, "failed", start)
		return Outcome{Success: false, Error: out.errMsg}

	case pollCanceled:
		o.recordSubmission(ctx, sub.APIType, "canceled", start)
		return Outcome{Success: false, Error: "request canceled: " + out.errMsg}

	default: // pollRunning
		rec.Status = registry.StatusTimeout
		if err := o.store.Put(handle, rec); err != nil {
			logger.Error("Failed to persist timeout", "handle", handle, "error", err)
		}
		logger.Info("Wait budget exhausted, job suspended for resume", "handle", handle)
		o.recordSubmission(ctx, sub.APIType, "timeout", start)
		return Outcome{
			Success: false,
			Error:   fmt.Sprintf("Request timed out after %d seconds", o.budgetSeconds()),
			Handle:  handle,
		}
	}
}

// Resume re-attaches to previously submitted jobs. Handles are
// processed independently; already-terminal records answer from the
// registry without any remote call.
func (o *Orchestrator) Resume(ctx context.Context, handles []string) map[string]ResumeResult {
	results := make(map[string]ResumeResult, len(handles))
	for _, handle := range handles {
		results[handle] = o.resumeOne(ctx, handle)
	}
	return results
}

func (o *Orchestrator) resumeOne(ctx context.Context, handle string) ResumeResult {
	rec, ok := o.store.Get(handle)
	if !ok {
		return ResumeResult{Success: false, Error: "Kickoff ID not found"}
	}

	switch rec.Status {
	case registry.StatusSuccess:
		return ResumeResult{Success: true, Data: rec.Result, Status: rec.Status}
	case registry.StatusFailed:
		return ResumeResult{Success: false, Error: rec.Error, Status: rec.Status}
	}

	o.logger.Info("Resuming job", "handle", handle, "status", rec.Status)

	out := o.await(ctx, handle, rec.BaseURL, rec.Token)
	switch out.kind {
	case pollSuccess:
		return ResumeResult{Success: true, Data: out.data, Status: registry.StatusSuccess}
	case pollFailed, pollError:
		return ResumeResult{Success: false, Error: out.errMsg, Status: registry.StatusFailed}
	case pollCanceled:
		return ResumeResult{Success: false, Error: "request canceled: " + out.errMsg, Status: rec.Status}
	default:
		// Still not terminal. The record already carries TIMEOUT or
		// stays PENDING; no redundant write.
		return ResumeResult{Success: false, Error: "Still processing after max attempts", Status: rec.Status}
	}
}

// Record returns the registry record for a handle.
func (o *Orchestrator) Record(handle string) (registry.Record, bool) {
	return o.store.Get(handle)
}

// Records returns every registry record.
func (o *Orchestrator) Records() map[string]registry.Record {
	return o.store.All()
}

// ClearRecords wipes the registry. Administrative use only.
func (o *Orchestrator) ClearRecords() error {
	return o.store.Clear()
}

func (o *Orchestrator) budgetSeconds() int {
	return int((time.Duration(o.maxTicks) * o.pollInterval).Seconds())
}

func (o *Orchestrator) recordSubmission(ctx context.Context, apiType, outcome string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordSubmission(ctx, apiType, outcome, time.Since(start).Seconds())
	}
}
