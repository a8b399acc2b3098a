// Package registry provides durable per-handle job records. The
// registry is the single source of truth for job lifecycle state, read
// by both the synchronous wait path and later resume calls, and must
// survive process restarts.
package registry

import "time"

// Status is the lifecycle state of a job record.
type Status string

const (
	// StatusPending: submitted, no terminal state observed yet.
	StatusPending Status = "PENDING"
	// StatusSuccess: remote job finished, normalized result stored.
	StatusSuccess Status = "SUCCESS"
	// StatusFailed: remote job reported failure, message stored.
	StatusFailed Status = "FAILED"
	// StatusTimeout: local wait budget expired while the remote job was
	// still running. Terminal for this process, resumable later.
	StatusTimeout Status = "TIMEOUT"
)

// Terminal returns true for states that are never overwritten.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Resumable returns true for states a resume call may re-poll.
func (s Status) Resumable() bool {
	return s == StatusPending || s == StatusTimeout
}

// CanTransition reports whether a status change is allowed. Transitions
// only move forward: PENDING to any state, TIMEOUT to SUCCESS/FAILED
// via resume. Writing the same status again is an idempotent no-op.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return true
	case StatusTimeout:
		return to.Terminal()
	default:
		return false
	}
}

// Record is the durable state of one remote job, keyed by its handle.
// Endpoint and credential are captured at submission time so a resume
// never depends on live configuration lookup. JSON field names are the
// persisted storage format.
type Record struct {
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	APIType      string    `json:"api_type"`
	SubmissionID string    `json:"submission_id,omitempty"`
	BaseURL      string    `json:"base_url"`
	Token        string    `json:"token"`
	Result       any       `json:"result"`
	Error        string    `json:"error,omitempty"`
}
