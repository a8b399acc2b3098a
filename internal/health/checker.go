// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"context"
	"fmt"
	"sync"
)

// TargetLister reports which upstream job types have a configured target.
type TargetLister interface {
	ConfiguredTypes() map[string]bool
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker performs health checks on upstream configuration.
type Checker struct {
	targets TargetLister

	mu           sync.RWMutex
	shuttingDown bool
}

// NewChecker creates a new health checker.
func NewChecker(targets TargetLister) *Checker {
	return &Checker{targets: targets}
}

// Liveness returns true if the service is alive.
// This should be a lightweight check that doesn't depend on external services.
// Failing this probe should trigger a container restart.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks if the service is ready to accept traffic.
// A service with no configured upstream targets is degraded rather than
// unhealthy: it can still serve status and resume requests from storage.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	shuttingDown := c.shuttingDown
	c.mu.RUnlock()

	if shuttingDown {
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	checks := make(map[string]CheckResult)
	overallStatus := StatusHealthy

	anyConfigured := false
	if c.targets != nil {
		for jobType, ok := range c.targets.ConfiguredTypes() {
			if ok {
				anyConfigured = true
				checks[jobType] = CheckResult{Status: StatusHealthy}
				continue
			}
			checks[jobType] = CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("%s API configuration missing", jobType),
			}
		}
	}

	if !anyConfigured {
		overallStatus = StatusDegraded
	}

	return &Response{
		Status: overallStatus,
		Checks: checks,
	}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// SetShuttingDown marks the service as shutting down.
// This causes readiness checks to return unhealthy, signaling
// load balancers to stop sending new traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
}
