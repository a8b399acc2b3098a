package job

import (
	"context"
	"fmt"
	"time"

	"crewproxy/internal/registry"
)

// pollKind classifies how one bounded await loop ended.
type pollKind int

const (
	pollSuccess pollKind = iota // terminal success observed, SUCCESS persisted
	pollFailed                  // remote reported failure, FAILED persisted
	pollError                   // transport gave up, FAILED persisted
	pollRunning                 // tick budget exhausted, job still alive
	pollCanceled                // our context ended, nothing persisted
)

type pollOutcome struct {
	kind   pollKind
	data   any
	errMsg string
}

// await drives one handle through bounded status polling. Terminal
// observations and transport exhaustion are persisted before returning
// so a later inspection sees the same outcome without re-contacting the
// remote service. Budget exhaustion persists nothing here; the caller
// decides whether a TIMEOUT write is due.
func (o *Orchestrator) await(ctx context.Context, handle, baseURL, token string) pollOutcome {
	for tick := 1; tick <= o.maxTicks; tick++ {
		select {
		case <-ctx.Done():
			return pollOutcome{kind: pollCanceled, errMsg: ctx.Err().Error()}
		case <-time.After(o.pollInterval):
		}

		if o.metrics != nil {
			o.metrics.RecordPollTick(ctx)
		}

		snap, err := o.invoker.FetchStatus(ctx, baseURL, token, handle)
		if err != nil {
			if ctx.Err() != nil {
				return pollOutcome{kind: pollCanceled, errMsg: ctx.Err().Error()}
			}
			msg := "API request failed: " + friendlyError(err)
			o.persistFailure(handle, msg)
			o.logger.Error("Status polling gave up", "handle", handle, "tick", tick, "error", err)
			return pollOutcome{kind: pollError, errMsg: msg}
		}

		o.logger.Info("Poll tick", "handle", handle, "tick", tick, "state", snap.State)

		switch snap.State {
		case remoteStateSuccess, remoteStateCompleted:
			result := normalizeResult(snap)
			o.persistSuccess(handle, result)
			return pollOutcome{kind: pollSuccess, data: result}

		case remoteStateFailed:
			msg := snap.Message
			if msg == "" {
				msg = "Unknown error"
			}
			errMsg := fmt.Sprintf("CrewAI task failed: %s", msg)
			o.persistFailure(handle, errMsg)
			return pollOutcome{kind: pollFailed, errMsg: errMsg}
		}
		// Any other state: still running, keep polling.
	}
	return pollOutcome{kind: pollRunning}
}

// persistSuccess writes the terminal SUCCESS state for a handle.
func (o *Orchestrator) persistSuccess(handle string, result any) {
	rec, ok := o.store.Get(handle)
	if !ok {
		return
	}
	rec.Status = registry.StatusSuccess
	rec.Result = result
	rec.Error = ""
	if err := o.store.Put(handle, rec); err != nil {
		o.logger.Error("Failed to persist success", "handle", handle, "error", err)
	}
}

// persistFailure writes the terminal FAILED state for a handle.
func (o *Orchestrator) persistFailure(handle, errMsg string) {
	rec, ok := o.store.Get(handle)
	if !ok {
		return
	}
	rec.Status = registry.StatusFailed
	rec.Error = errMsg
	rec.Result = nil
	if err := o.store.Put(handle, rec); err != nil {
		o.logger.Error("Failed to persist failure", "handle", handle, "error", err)
	}
}
