package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Agent: AgentConfig{
			User: "hawk-agent-admin",
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelayMs: 1500,
				MaxDelayMs:  5000,
			},
		},
		Gateway: GatewayConfig{
			Port: 18793,
			Bind: "loopback",
			Auth: GatewayAuth{Mode: "token"},
		},
		Dashboard: DashboardConfig{
			TopEntities: 10,
			RefreshCron: "@every 5m",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// applyDefaults fills zero-value fields after a YAML load.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Agent.User == "" {
		cfg.Agent.User = def.Agent.User
	}
	if cfg.Agent.Retry.MaxAttempts == 0 {
		cfg.Agent.Retry.MaxAttempts = def.Agent.Retry.MaxAttempts
	}
	if cfg.Agent.Retry.BaseDelayMs == 0 {
		cfg.Agent.Retry.BaseDelayMs = def.Agent.Retry.BaseDelayMs
	}
	if cfg.Agent.Retry.MaxDelayMs == 0 {
		cfg.Agent.Retry.MaxDelayMs = def.Agent.Retry.MaxDelayMs
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = def.Gateway.Auth.Mode
	}
	if cfg.Dashboard.TopEntities == 0 {
		cfg.Dashboard.TopEntities = def.Dashboard.TopEntities
	}
	if cfg.Dashboard.RefreshCron == "" {
		cfg.Dashboard.RefreshCron = def.Dashboard.RefreshCron
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
}
