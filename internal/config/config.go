// Package config provides configuration loading from environment variables.
package config

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// JobTypes lists the supported job kinds, each backed by its own remote
// deployment with its own endpoint and credential.
var JobTypes = []string{"schema", "eligibility", "grader"}

// Target is one remote deployment: base URL plus bearer credential.
type Target struct {
	BaseURL string
	Token   string
}

// Configured returns true when both the URL and credential are present.
func (t Target) Configured() bool {
	return t.BaseURL != "" && t.Token != ""
}

// ServiceConfig holds configuration for the proxy service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string        // admin API key, empty disables auth
	ShutdownDrainWait time.Duration // time to wait for load balancer to drain (0 to skip)
	RegistryPath      string        // backing file for the job registry
	CORSOrigins       []string
	RemoteTimeout     time.Duration // per-call HTTP timeout against deployments
	PollInterval      time.Duration
	PollMaxTicks      int
	Targets           map[string]Target // keyed by job type
}

// LoadEnvFile loads a local .env file if present. Missing files are
// fine; anything else is worth a warning.
func LoadEnvFile() {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			slog.Warn("Failed to load .env file", "error", err)
		}
	}
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	targets := make(map[string]Target, len(JobTypes))
	targets["schema"] = Target{
		BaseURL: GetEnv("SCHEMA_API_URL", ""),
		Token:   GetEnv("SCHEMA_API_TOKEN", ""),
	}
	targets["eligibility"] = Target{
		BaseURL: GetEnv("ELIGIBILITY_API_URL", ""),
		Token:   GetEnv("ELIGIBILITY_API_TOKEN", ""),
	}
	targets["grader"] = Target{
		BaseURL: GetEnv("GRADER_API_URL", ""),
		Token:   GetEnv("GRADER_API_TOKEN", ""),
	}

	return &ServiceConfig{
		Port:              GetEnv("PORT", "8001"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		RegistryPath:      GetEnv("REGISTRY_PATH", "kickoff_storage.json"),
		CORSOrigins:       GetListEnv("CORS_ORIGINS", []string{"*"}),
		RemoteTimeout:     GetDurationEnv("REMOTE_TIMEOUT", 120*time.Second),
		PollInterval:      GetDurationEnv("POLL_INTERVAL", 10*time.Second),
		PollMaxTicks:      GetIntEnv("POLL_MAX_TICKS", 20),
		Targets:           targets,
	}
}

// Target returns the deployment for a job type.
func (c *ServiceConfig) Target(jobType string) (Target, bool) {
	t, ok := c.Targets[jobType]
	return t, ok
}

// ConfiguredTypes reports which job types have a usable deployment.
func (c *ServiceConfig) ConfiguredTypes() map[string]bool {
	out := make(map[string]bool, len(JobTypes))
	for _, jt := range JobTypes {
		out[jt] = c.Targets[jt].Configured()
	}
	return out
}
