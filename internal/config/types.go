package config

// Config is the root configuration for the autoresponder.
type Config struct {
	Accounts     []string           `yaml:"accounts,omitempty"` // account IDs initialized on startup
	Gateway      GatewayConfig      `yaml:"gateway,omitempty"`
	Sessions     SessionsConfig     `yaml:"sessions,omitempty"`
	Database     DatabaseConfig     `yaml:"database,omitempty"`
	RateLimit    RateLimitConfig    `yaml:"rateLimit,omitempty"`
	Reconnect    ReconnectConfig    `yaml:"reconnect,omitempty"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Providers    []ProviderEntry    `yaml:"providers,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
}

// GatewayConfig points at the protocol gateway the account links dial.
type GatewayConfig struct {
	URL    string `yaml:"url,omitempty"`    // ws:// or wss:// endpoint
	Origin string `yaml:"origin,omitempty"` // Origin header sent on dial
}

// SessionsConfig controls the session material store.
type SessionsConfig struct {
	Dir    string `yaml:"dir,omitempty"`    // defaults under the base directory
	Secret string `yaml:"secret,omitempty"` // filename derivation key; supports ${ENV_VAR}
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// RateLimitConfig bounds outbound sends per recipient.
type RateLimitConfig struct {
	WindowSeconds int `yaml:"windowSeconds,omitempty"`
	MaxPerWindow  int `yaml:"maxPerWindow,omitempty"`
}

// ReconnectConfig tunes the supervisor's reconnect loop.
type ReconnectConfig struct {
	BaseDelayMs int `yaml:"baseDelayMs,omitempty"` // delay grows linearly per attempt
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
}

// OrchestratorConfig tunes response generation.
type OrchestratorConfig struct {
	BasePrompt   string   `yaml:"basePrompt,omitempty"` // replaces the built-in base prompt when set
	MaxTokens    int      `yaml:"maxTokens,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	MaxAttempts  int      `yaml:"maxAttempts,omitempty"`  // providers tried per generation
	HistoryLimit int      `yaml:"historyLimit,omitempty"` // conversation turns sent upstream
}

// ProviderEntry seeds one AI provider into the database on startup.
type ProviderEntry struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"` // "openai" | "anthropic" | "gemini" | "ollama"
	APIKey     string `yaml:"apiKey,omitempty"` // supports ${ENV_VAR}
	Model      string `yaml:"model,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	DailyLimit int    `yaml:"dailyLimit,omitempty"` // generations per day before failover
	Priority   int    `yaml:"priority,omitempty"`   // higher tried first
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File  string `yaml:"file,omitempty"`
}
