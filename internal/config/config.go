// Package config loads and validates the autoresponder's YAML configuration.
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
		Gateway: GatewayConfig{
			URL: "ws://127.0.0.1:18790/link",
		},
		RateLimit: RateLimitConfig{
			WindowSeconds: 60,
			MaxPerWindow:  30,
		},
		Reconnect: ReconnectConfig{
			BaseDelayMs: 5000,
			MaxAttempts: 5,
		},
		Orchestrator: OrchestratorConfig{
			MaxTokens:    1024,
			MaxAttempts:  3,
			HistoryLimit: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
