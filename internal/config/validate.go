package config

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/soyeahso/autoreply/internal/domain"
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

	if cfg.Gateway.URL != "" {
		u, err := url.Parse(cfg.Gateway.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.url",
				Message: fmt.Sprintf("must be a ws:// or wss:// URL, got %q", cfg.Gateway.URL),
			})
		}
	}

	if cfg.Sessions.Secret == "" {
		issues = append(issues, ValidationIssue{
			Path:    "sessions.secret",
			Message: "secret is required (set it or AUTOREPLY_SESSION_SECRET)",
		})
	}

	if cfg.RateLimit.WindowSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "rateLimit.windowSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.RateLimit.WindowSeconds),
		})
	}
	if cfg.RateLimit.MaxPerWindow < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "rateLimit.maxPerWindow",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.RateLimit.MaxPerWindow),
		})
	}

	if cfg.Reconnect.BaseDelayMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "reconnect.baseDelayMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Reconnect.BaseDelayMs),
		})
	}
	if cfg.Reconnect.MaxAttempts < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "reconnect.maxAttempts",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Reconnect.MaxAttempts),
		})
	}

	for i, acct := range cfg.Accounts {
		if acct == "" {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("accounts[%d]", i),
				Message: "account ID must not be empty",
			})
		}
	}

	seen := make(map[string]bool)
	for i, p := range cfg.Providers {
		path := fmt.Sprintf("providers[%d]", i)
		if p.ID == "" {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: "id is required"})
		} else if seen[p.ID] {
			issues = append(issues, ValidationIssue{
				Path:    path + ".id",
				Message: fmt.Sprintf("duplicate provider id %q", p.ID),
			})
		}
		seen[p.ID] = true

		if !domain.ValidProviderKind(domain.ProviderKind(p.Kind)) {
			issues = append(issues, ValidationIssue{
				Path:    path + ".kind",
				Message: fmt.Sprintf("must be one of [openai anthropic gemini ollama], got %q", p.Kind),
			})
		}
		if p.Kind != string(domain.ProviderOllama) && p.APIKey == "" {
			issues = append(issues, ValidationIssue{
				Path:    path + ".apiKey",
				Message: "required for hosted providers",
			})
		}
		if p.DailyLimit < 0 {
			issues = append(issues, ValidationIssue{
				Path:    path + ".dailyLimit",
				Message: fmt.Sprintf("must not be negative, got %d", p.DailyLimit),
			})
		}
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	return issues
}
