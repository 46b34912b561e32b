package domain

import "time"

// ProviderKind identifies one of the supported generation backends.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGemini    ProviderKind = "gemini"
	ProviderOllama    ProviderKind = "ollama"
)

// ValidProviderKind reports whether k names a supported backend.
func ValidProviderKind(k ProviderKind) bool {
	switch k {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama:
		return true
	}
	return false
}

// ProviderConfig is one configured generation backend with its daily quota.
// Availability is gated on UsedToday < DailyLimit.
type ProviderConfig struct {
	ID         string       `json:"id"`
	Kind       ProviderKind `json:"kind"`
	Credential string       `json:"-"`
	Model      string       `json:"model,omitempty"` // optional override
	Endpoint   string       `json:"endpoint,omitempty"`
	DailyLimit int          `json:"dailyLimit"`
	UsedToday  int          `json:"usedToday"`
	Priority   int          `json:"priority"` // higher first
	Active     bool         `json:"active"`
	LastReset  time.Time    `json:"lastReset"`
}

// GenerationResult is the outcome of one provider invocation.
type GenerationResult struct {
	Text         string       `json:"text"`
	ProviderID   string       `json:"providerId"`
	ProviderKind ProviderKind `json:"providerKind"`
	InputTokens  int          `json:"inputTokens"`
	OutputTokens int          `json:"outputTokens"`
	LatencyMs    int64        `json:"latencyMs"`
}

// Turn is a single conversation turn handed to a provider.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
