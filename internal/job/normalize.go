package job

import (
	"encoding/json"

	"crewproxy/internal/remote"
)

// normalizeResult extracts the job result from a terminal snapshot.
// Deployments return the payload in one of three shapes, tried in
// order: a structured result_json field, a generic result field (which
// may itself be a JSON-encoded string), or nothing beyond the snapshot
// body itself.
func normalizeResult(snap *remote.Snapshot) any {
	if snap.ResultJSON != nil {
		return snap.ResultJSON
	}
	if snap.Result != nil {
		if text, ok := snap.Result.(string); ok {
			var parsed any
			if err := json.Unmarshal([]byte(text), &parsed); err == nil {
				return parsed
			}
			return text
		}
		return snap.Result
	}
	return snap.Raw
}
