// Package observability provides metrics and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrAPIType = "api_type"
	attrOutcome = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func apiTypeAttr(apiType string) attribute.KeyValue {
	return attribute.String(attrAPIType, apiType)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

// normalizePath replaces dynamic path segments with placeholders to
// keep metric cardinality bounded.
// /api/kickoff-status/abc123 -> /api/kickoff-status/{kickoffId}
func normalizePath(path string) string {
	const prefix = "/api/kickoff-status/"
	if len(path) > len(prefix) && strings.HasPrefix(path, prefix) {
		return "/api/kickoff-status/{kickoffId}"
	}
	return path
}
