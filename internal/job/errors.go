package job

import (
	"crewproxy/internal/remote"
)

// friendlyError rewrites transport failures into the actionable,
// non-technical messages surfaced to callers. Overload and timeout
// conditions explain the automatic retry and the resume path instead of
// leaking HTTP details.
func friendlyError(err error) string {
	switch {
	case remote.IsOverload(err):
		return "CrewAI services are currently overloaded. The system will automatically retry " +
			"with exponential backoff. You can also use the 'Retrieve Completed Results' button " +
			"to get previously processed submissions."
	case remote.IsTimeout(err):
		return "Request timed out due to service overload. The system will retry automatically."
	default:
		return err.Error()
	}
}
