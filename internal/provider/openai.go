package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/autoreply/internal/domain"
)

const openAIDefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient talks to the OpenAI chat completions API.
type OpenAIClient struct {
	cfg    domain.ProviderConfig
	client *http.Client
}

// NewOpenAIClient creates an OpenAI backend for the given provider config.
func NewOpenAIClient(cfg domain.ProviderConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = openAIDefaultEndpoint
	}
	return &OpenAIClient{cfg: cfg, client: newHTTPClient()}
}

// Kind returns the backend type.
func (c *OpenAIClient) Kind() domain.ProviderKind { return domain.ProviderOpenAI }

// Generate sends a chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*domain.GenerationResult, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]map[string]string, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	for _, turn := range req.History {
		messages = append(messages, map[string]string{"role": turn.Role, "content": turn.Content})
	}

	body := map[string]any{
		"model":      c.cfg.Model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Credential)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: "openai", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Provider: "openai", Code: resp.StatusCode, Message: string(respBody)}
	}

	var result openAIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("openai: parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, &Error{Provider: "openai", Message: "empty choices"}
	}

	return &domain.GenerationResult{
		Text:         result.Choices[0].Message.Content,
		ProviderID:   c.cfg.ID,
		ProviderKind: domain.ProviderOpenAI,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

// API response structures

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
