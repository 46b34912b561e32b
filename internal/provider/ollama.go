package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/autoreply/internal/domain"
)

const ollamaDefaultEndpoint = "http://localhost:11434"

// OllamaClient talks to a local or remote Ollama server.
type OllamaClient struct {
	cfg    domain.ProviderConfig
	client *http.Client
}

// NewOllamaClient creates an Ollama backend for the given provider config.
func NewOllamaClient(cfg domain.ProviderConfig) *OllamaClient {
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = ollamaDefaultEndpoint
	}
	return &OllamaClient{cfg: cfg, client: newHTTPClient()}
}

// Kind returns the backend type.
func (c *OllamaClient) Kind() domain.ProviderKind { return domain.ProviderOllama }

// Generate sends a non-streaming chat request.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (*domain.GenerationResult, error) {
	start := time.Now()

	messages := make([]map[string]string, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	for _, turn := range req.History {
		messages = append(messages, map[string]string{"role": turn.Role, "content": turn.Content})
	}

	body := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
		"stream":   false,
	}
	if req.Temperature != nil {
		body["options"] = map[string]any{"temperature": *req.Temperature}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.cfg.Endpoint, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: "ollama", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Provider: "ollama", Code: resp.StatusCode, Message: string(respBody)}
	}

	var result ollamaResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("ollama: parse response: %w", err)
	}

	return &domain.GenerationResult{
		Text:         result.Message.Content,
		ProviderID:   c.cfg.ID,
		ProviderKind: domain.ProviderOllama,
		InputTokens:  result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

// API response structures

type ollamaResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}
