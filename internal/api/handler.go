// Package api provides the HTTP API handlers and routing for the proxy service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"crewproxy/internal/apperrors"
	"crewproxy/internal/config"
	"crewproxy/internal/health"
	"crewproxy/internal/job"
	"crewproxy/internal/registry"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Core is the orchestration surface the handlers drive.
type Core interface {
	SubmitAndAwait(ctx context.Context, sub job.Submission) job.Outcome
	Resume(ctx context.Context, handles []string) map[string]job.ResumeResult
	Record(handle string) (registry.Record, bool)
	Records() map[string]registry.Record
	ClearRecords() error
}

// apiResponse is the envelope every /api/* endpoint answers with.
// Domain-level failures stay HTTP 200 with success=false; only
// malformed requests and unknown routes produce 4xx.
type apiResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	KickoffID string `json:"kickoff_id,omitempty"`
}

type schemaRequest struct {
	HackathonRubric string `json:"hackathon_rubric"`
}

type eligibilityRequest struct {
	ProjectWriteup        string   `json:"project_writeup"`
	HackathonRequirements string   `json:"hackathon_requirements"`
	TeamMembers           []string `json:"team_members"`
	DemoLink              string   `json:"demo_link"`
	ProjectName           string   `json:"project_name"`
}

type graderRequest struct {
	Inputs map[string]any `json:"inputs"`
}

type resumeRequest struct {
	KickoffIDs []string `json:"kickoff_ids"`
}

// displayNames maps job types to their user-facing names in error messages.
var displayNames = map[string]string{
	"schema":      "Schema",
	"eligibility": "Eligibility",
	"grader":      "Grader",
}

// Handler contains HTTP handlers for the proxy API
type Handler struct {
	core   Core
	cfg    *config.ServiceConfig
	health *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(core Core, cfg *config.ServiceConfig, healthChecker *health.Checker) *Handler {
	return &Handler{
		core:   core,
		cfg:    cfg,
		health: healthChecker,
	}
}

// GenerateSchema handles POST /api/schema
func (h *Handler) GenerateSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.HackathonRubric == "" {
		h.handleError(w, apperrors.Validation("hackathon_rubric", "hackathon_rubric is required"))
		return
	}

	payload := map[string]any{
		"inputs": map[string]any{"hackathon_rubric": req.HackathonRubric},
	}
	h.submit(w, r, "schema", payload, nil)
}

// CheckEligibility handles POST /api/eligibility
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ProjectWriteup == "" {
		h.handleError(w, apperrors.Validation("project_writeup", "project_writeup is required"))
		return
	}
	if req.HackathonRequirements == "" {
		h.handleError(w, apperrors.Validation("hackathon_requirements", "hackathon_requirements is required"))
		return
	}

	payload := map[string]any{
		"inputs": map[string]any{
			"project_writeup":        req.ProjectWriteup,
			"hackathon_requirements": req.HackathonRequirements,
		},
	}
	h.submit(w, r, "eligibility", payload, renameEligibility)
}

// GradeProject handles POST /api/grade
func (h *Handler) GradeProject(w http.ResponseWriter, r *http.Request) {
	var req graderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Inputs == nil {
		h.handleError(w, apperrors.Validation("inputs", "inputs is required"))
		return
	}

	jsonRubric := req.Inputs["json_rubric"]
	if jsonRubric == nil {
		jsonRubric = map[string]any{}
	}
	payload := map[string]any{
		"inputs": map[string]any{
			"hackathon_rubric": stringField(req.Inputs, "hackathon_rubric"),
			"json_rubric":      jsonRubric,
			"project_writeup":  stringField(req.Inputs, "project_writeup"),
		},
		// The grader deployment requires these fields even when unused.
		"taskWebhookUrl":   "",
		"stepWebhookUrl":   "",
		"crewWebhookUrl":   "",
		"trainingFilename": "",
		"generateArtifact": false,
	}
	h.submit(w, r, "grader", payload, nil)
}

// submit routes a shaped payload to the configured deployment for the
// job type and waits for the outcome. transform, when set, rewrites
// successful result data before it goes on the wire.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, jobType string, payload any, transform func(any) any) {
	target, ok := h.cfg.Target(jobType)
	if !ok || !target.Configured() {
		h.writeJSON(w, http.StatusOK, apiResponse{
			Success: false,
			Error:   fmt.Sprintf("%s API configuration missing", displayNames[jobType]),
		})
		return
	}

	out := h.core.SubmitAndAwait(r.Context(), job.Submission{
		APIType: jobType,
		Payload: payload,
		BaseURL: target.BaseURL,
		Token:   target.Token,
	})

	resp := apiResponse{
		Success:   out.Success,
		Error:     out.Error,
		KickoffID: out.Handle,
	}
	if out.Success {
		resp.Data = out.Data
		if transform != nil {
			resp.Data = transform(out.Data)
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// renameEligibility maps the deployment's {valid, explanation} pair to
// the {eligible, reason} shape callers expect.
func renameEligibility(data any) any {
	m, ok := data.(map[string]any)
	if !ok {
		return data
	}
	valid, hasValid := m["valid"]
	explanation, hasExplanation := m["explanation"]
	if !hasValid || !hasExplanation {
		return data
	}
	return map[string]any{
		"eligible": valid,
		"reason":   explanation,
	}
}

// GetKickoffStatus handles GET /api/kickoff-status/{kickoffId}
func (h *Handler) GetKickoffStatus(w http.ResponseWriter, r *http.Request) {
	kickoffID := r.PathValue("kickoffId")
	rec, ok := h.core.Record(kickoffID)
	if !ok {
		h.writeJSON(w, http.StatusOK, apiResponse{Success: false, Error: "Kickoff ID not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: rec})
}

// ListKickoffStatus handles GET /api/kickoff-status
func (h *Handler) ListKickoffStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: h.core.Records()})
}

// ResumeKickoffs handles POST /api/resume-kickoffs
func (h *Handler) ResumeKickoffs(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.KickoffIDs) == 0 {
		h.handleError(w, apperrors.Validation("kickoff_ids", "kickoff_ids is required"))
		return
	}

	results := h.core.Resume(r.Context(), req.KickoffIDs)

	data := make(map[string]any, len(results))
	for handle, res := range results {
		entry := map[string]any{"success": res.Success}
		if res.Success {
			entry["data"] = res.Data
		}
		if res.Error != "" {
			entry["error"] = res.Error
		}
		if res.Status != "" {
			entry["status"] = res.Status
		}
		data[handle] = entry
	}
	h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: data})
}

// ClearKickoffStorage handles POST /api/clear-kickoff-storage
func (h *Handler) ClearKickoffStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.core.ClearRecords(); err != nil {
		h.writeJSON(w, http.StatusOK, apiResponse{
			Success: false,
			Error:   "Failed to clear storage: " + err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "All kickoff storage cleared"})
}

// Health handles GET /api/health - overall service health plus which
// job types have a configured deployment.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	readiness := h.health.Readiness(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":          readiness.Status,
		"apis_configured": h.cfg.ConfiguredTypes(),
		"cors_origins":    h.cfg.CORSOrigins,
	})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 during shutdown drain.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if response.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// decode reads a JSON request body into dst, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.handleError(w, apperrors.Validation("body", "Invalid request body: "+err.Error()))
		return false
	}
	return true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// handleError answers a request-level error with the status from the
// error taxonomy. Domain-level failures never come through here; those
// ride the 200 envelope.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatus(err), apiResponse{Success: false, Error: err.Error()})
}

// stringField pulls a string out of a loosely typed inputs map.
func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
