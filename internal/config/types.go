package config

// Config is the root configuration for hawkd.
type Config struct {
	Agent     AgentConfig     `yaml:"agent,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Dashboard DashboardConfig `yaml:"dashboard,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// AgentConfig configures the upstream chat-completion agent.
type AgentConfig struct {
	// User is the fixed caller identity sent with every request.
	User string `yaml:"user,omitempty"`

	// Default is the route used when no category-specific route matches.
	Default RouteEntry `yaml:"default,omitempty"`

	// Routes maps a template category to a dedicated upstream app/key.
	Routes map[string]RouteEntry `yaml:"routes,omitempty"`

	Retry RetryConfig `yaml:"retry,omitempty"`
}

// RouteEntry is one upstream endpoint plus its bearer credential.
type RouteEntry struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey,omitempty"`
}

// RetryConfig bounds stream retry behavior.
type RetryConfig struct {
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
	BaseDelayMs int `yaml:"baseDelayMs,omitempty"`
	MaxDelayMs  int `yaml:"maxDelayMs,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port int         `yaml:"port,omitempty"`
	Bind string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	Host string      `yaml:"host,omitempty"` // used when bind: custom
	Auth GatewayAuth `yaml:"auth,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode  string `yaml:"mode,omitempty"` // "token" | "none"
	Token string `yaml:"token,omitempty"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // ":memory:" for ephemeral
}

// DashboardConfig configures dashboard metrics aggregation.
type DashboardConfig struct {
	// TopEntities caps the entity-exposure breakdown; the remainder is
	// folded into an "Others" bucket.
	TopEntities int `yaml:"topEntities,omitempty"`

	// RefreshCron is a cron expression for periodic full recomputes in
	// addition to change-notification driven ones.
	RefreshCron string `yaml:"refreshCron,omitempty"`

	// CurrencyFilter restricts aggregation to one currency when set.
	CurrencyFilter string `yaml:"currencyFilter,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
