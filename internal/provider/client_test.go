package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryCoversAllKinds(t *testing.T) {
	kinds := []domain.ProviderKind{
		domain.ProviderOpenAI,
		domain.ProviderAnthropic,
		domain.ProviderGemini,
		domain.ProviderOllama,
	}
	for _, kind := range kinds {
		client, err := New(domain.ProviderConfig{ID: "p", Kind: kind})
		require.NoError(t, err, kind)
		assert.Equal(t, kind, client.Kind())
	}

	_, err := New(domain.ProviderConfig{ID: "p", Kind: "grok"})
	assert.Error(t, err)
}

func TestOpenAIGenerate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hi there"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 4},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(domain.ProviderConfig{
		ID:         "p-oa",
		Kind:       domain.ProviderOpenAI,
		Credential: "sk-test",
		Endpoint:   srv.URL,
	})

	res, err := client.Generate(context.Background(), Request{
		System:  "be brief",
		History: []domain.Turn{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
	assert.Equal(t, "p-oa", res.ProviderID)
	assert.Equal(t, 12, res.InputTokens)
	assert.Equal(t, 4, res.OutputTokens)
	assert.Equal(t, "Bearer sk-test", gotAuth)

	messages := gotBody["messages"].([]any)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
}

func TestOpenAIGenerateErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient(domain.ProviderConfig{ID: "p", Kind: domain.ProviderOpenAI, Endpoint: srv.URL})

	_, err := client.Generate(context.Background(), Request{History: []domain.Turn{{Role: "user", Content: "x"}}})
	require.Error(t, err)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusTooManyRequests, provErr.Code)
}

func TestAnthropicGenerate(t *testing.T) {
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "claude says hi"}},
			"usage":   map[string]int{"input_tokens": 20, "output_tokens": 6},
		})
	}))
	defer srv.Close()

	client := NewAnthropicClient(domain.ProviderConfig{
		ID:         "p-an",
		Kind:       domain.ProviderAnthropic,
		Credential: "ak-test",
		Endpoint:   srv.URL,
	})

	res, err := client.Generate(context.Background(), Request{
		History: []domain.Turn{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "claude says hi", res.Text)
	assert.Equal(t, "ak-test", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)
}

func TestGeminiGenerateMapsAssistantToModel(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "gemini reply"}}}},
			},
			"usageMetadata": map[string]int{"promptTokenCount": 9, "candidatesTokenCount": 3},
		})
	}))
	defer srv.Close()

	client := NewGeminiClient(domain.ProviderConfig{ID: "p-gm", Kind: domain.ProviderGemini, Endpoint: srv.URL})

	res, err := client.Generate(context.Background(), Request{
		History: []domain.Turn{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "again"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini reply", res.Text)

	contents := gotBody["contents"].([]any)
	second := contents[1].(map[string]any)
	assert.Equal(t, "model", second["role"])
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": "local reply"},
			"prompt_eval_count": 7,
			"eval_count":        2,
		})
	}))
	defer srv.Close()

	client := NewOllamaClient(domain.ProviderConfig{ID: "p-ol", Kind: domain.ProviderOllama, Endpoint: srv.URL})

	res, err := client.Generate(context.Background(), Request{
		History: []domain.Turn{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "local reply", res.Text)
	assert.Equal(t, 7, res.InputTokens)
	assert.Equal(t, 2, res.OutputTokens)
}

func TestErrorFormatting(t *testing.T) {
	withCode := &Error{Provider: "openai", Code: 429, Message: "too many requests"}
	assert.Equal(t, "openai: 429 too many requests", withCode.Error())

	withoutCode := &Error{Provider: "ollama", Message: "connection refused"}
	assert.Equal(t, "ollama: connection refused", withoutCode.Error())
}
