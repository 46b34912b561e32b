// Package provider implements the pluggable text-generation backends.
//
// Each backend differs only in request/response marshaling to its API; all of
// them satisfy the Client capability so the orchestrator can fail over between
// them without caring which vendor is behind a slot.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/soyeahso/autoreply/internal/domain"
)

// Request is the input to one generation call.
type Request struct {
	System      string
	History     []domain.Turn
	MaxTokens   int
	Temperature *float64
}

// Client is the capability contract every backend implements.
type Client interface {
	// Generate produces a reply for the conversation context.
	Generate(ctx context.Context, req Request) (*domain.GenerationResult, error)

	// Kind returns the backend type.
	Kind() domain.ProviderKind
}

// Error is returned when a backend call fails, carrying an HTTP-like code.
type Error struct {
	Provider string
	Code     int
	Message  string
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// defaultMaxTokens bounds responses when the caller does not set a limit.
const defaultMaxTokens = 1024

// New builds the backend client for a provider config. The set of kinds is
// closed; selection happens at configuration-load time.
func New(cfg domain.ProviderConfig) (Client, error) {
	switch cfg.Kind {
	case domain.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case domain.ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	case domain.ProviderGemini:
		return NewGeminiClient(cfg), nil
	case domain.ProviderOllama:
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("provider: unknown kind %q", cfg.Kind)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
