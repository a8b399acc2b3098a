package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/submissions take
// - Traffic: Request/submission throughput
// - Errors: Rate of failures, retries, breaker activity
// - Saturation: Concurrently waiting submissions
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Submission metrics (Latency, Traffic, Errors, Saturation)
	SubmissionDuration metric.Float64Histogram
	SubmissionsTotal   metric.Int64Counter
	JobsActive         metric.Int64UpDownCounter

	// Polling and retry metrics
	PollTicksTotal            metric.Int64Counter
	SubmitRetriesTotal        metric.Int64Counter
	StatusRetriesTotal        metric.Int64Counter
	BreakerEngagedTotal       metric.Int64Counter
	RegistrySaveFailuresTotal metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("crewproxy")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Submission metrics
	m.SubmissionDuration, err = meter.Float64Histogram(
		"submission_duration_seconds",
		metric.WithDescription("End-to-end submit-and-await duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 200, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SubmissionsTotal, err = meter.Int64Counter(
		"submissions_total",
		metric.WithDescription("Total submissions by job type and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"jobs_active",
		metric.WithDescription("Number of submissions currently awaiting a result (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Polling and retry metrics
	m.PollTicksTotal, err = meter.Int64Counter(
		"poll_ticks_total",
		metric.WithDescription("Total status poll ticks against remote deployments"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SubmitRetriesTotal, err = meter.Int64Counter(
		"submit_retries_total",
		metric.WithDescription("Total kickoff retry attempts"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StatusRetriesTotal, err = meter.Int64Counter(
		"status_retries_total",
		metric.WithDescription("Total status fetch retry attempts"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.BreakerEngagedTotal, err = meter.Int64Counter(
		"breaker_engaged_total",
		metric.WithDescription("Times the overload circuit breaker escalated backoff"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RegistrySaveFailuresTotal, err = meter.Int64Counter(
		"registry_save_failures_total",
		metric.WithDescription("Registry persistence failures (durability warning)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordSubmission records one completed submit-and-await workflow.
// Outcome is one of: success, failed, timeout, submit_failed, canceled.
func (m *Metrics) RecordSubmission(ctx context.Context, apiType, outcome string, durationSeconds float64) {
	attrs := metric.WithAttributes(apiTypeAttr(apiType), outcomeAttr(outcome))
	m.SubmissionsTotal.Add(ctx, 1, attrs)
	m.SubmissionDuration.Record(ctx, durationSeconds, attrs)
}

// RecordJobActive adjusts the count of in-flight submissions.
func (m *Metrics) RecordJobActive(ctx context.Context, delta int64) {
	m.JobsActive.Add(ctx, delta)
}

// RecordPollTick records one status poll tick.
func (m *Metrics) RecordPollTick(ctx context.Context) {
	m.PollTicksTotal.Add(ctx, 1)
}

// RecordSubmitRetry records one kickoff retry attempt.
func (m *Metrics) RecordSubmitRetry() {
	m.SubmitRetriesTotal.Add(context.Background(), 1)
}

// RecordStatusRetry records one status fetch retry attempt.
func (m *Metrics) RecordStatusRetry() {
	m.StatusRetriesTotal.Add(context.Background(), 1)
}

// RecordBreakerEngaged records the circuit breaker escalating backoff.
func (m *Metrics) RecordBreakerEngaged() {
	m.BreakerEngagedTotal.Add(context.Background(), 1)
}

// RecordRegistrySaveFailure records a registry persistence failure.
func (m *Metrics) RecordRegistrySaveFailure() {
	m.RegistrySaveFailuresTotal.Add(context.Background(), 1)
}
