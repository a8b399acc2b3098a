// Package job is the orchestration core: it drives a submission through
// kickoff, bounded status polling and registry bookkeeping, and lets
// callers re-attach to jobs that outlived their original request.
package job

import (
	"crewproxy/internal/registry"
)

// Submission describes one unit of work bound for a remote deployment.
// The payload is opaque to the core; shaping per job type happens at
// the HTTP boundary.
type Submission struct {
	APIType      string // logical job kind: schema, eligibility, grader
	Payload      any
	BaseURL      string
	Token        string
	SubmissionID string // optional caller correlation identifier
}

// Outcome is the result of SubmitAndAwait.
type Outcome struct {
	Success bool
	Data    any
	Error   string
	// Handle is set only on timeout-suspension, so the caller can
	// resume later.
	Handle string
}

// ResumeResult is the per-handle result of Resume.
type ResumeResult struct {
	Success bool
	Data    any
	Error   string
	Status  registry.Status
}

// Remote terminal-state synonyms. Some deployments report COMPLETED
// where others report SUCCESS; both mean the work finished.
const (
	remoteStateSuccess   = "SUCCESS"
	remoteStateCompleted = "COMPLETED"
	remoteStateFailed    = "FAILED"
)
