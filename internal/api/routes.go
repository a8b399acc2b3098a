package api

import (
	"net/http"

	"crewproxy/internal/config"
	"crewproxy/internal/health"
	"crewproxy/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Core          Core
	Config        *config.ServiceConfig
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Core, cfg.Config, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)
	mux.HandleFunc("GET /api/health", handler.Health)

	// Submission endpoints
	mux.HandleFunc("POST /api/schema", handler.GenerateSchema)
	mux.HandleFunc("POST /api/eligibility", handler.CheckEligibility)
	mux.HandleFunc("POST /api/grade", handler.GradeProject)

	// Registry endpoints
	mux.HandleFunc("GET /api/kickoff-status", handler.ListKickoffStatus)
	mux.HandleFunc("GET /api/kickoff-status/{kickoffId}", handler.GetKickoffStatus)
	mux.HandleFunc("POST /api/resume-kickoffs", handler.ResumeKickoffs)

	// Administrative endpoints - auth required when a key is configured
	authMiddleware := AuthMiddleware(cfg.Config.APIKey)
	mux.Handle("POST /api/clear-kickoff-storage", authMiddleware(http.HandlerFunc(handler.ClearKickoffStorage)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware(cfg.Config.CORSOrigins)(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RequestIDMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
