package config

import (
	"fmt"
	"slices"

	"github.com/robfig/cron/v3"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.Host == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.host",
			Message: "required when gateway.bind is custom",
		})
	}

	validAuthModes := []string{"token", "none"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.ConsoleStyle),
		})
	}

	if cfg.Agent.Retry.MaxAttempts < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "agent.retry.maxAttempts",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Agent.Retry.MaxAttempts),
		})
	}
	if cfg.Agent.Retry.MaxDelayMs < cfg.Agent.Retry.BaseDelayMs {
		issues = append(issues, ValidationIssue{
			Path:    "agent.retry.maxDelayMs",
			Message: "must be >= baseDelayMs",
		})
	}

	for category, route := range cfg.Agent.Routes {
		if route.BaseURL == "" {
			issues = append(issues, ValidationIssue{
				Path:    "agent.routes." + category + ".baseUrl",
				Message: "required",
			})
		}
	}

	if cfg.Dashboard.TopEntities < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "dashboard.topEntities",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Dashboard.TopEntities),
		})
	}
	if cfg.Dashboard.RefreshCron != "" {
		if _, err := cron.ParseStandard(cfg.Dashboard.RefreshCron); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    "dashboard.refreshCron",
				Message: "invalid cron expression: " + err.Error(),
			})
		}
	}

	return issues
}
