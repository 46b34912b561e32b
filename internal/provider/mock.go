package provider

import (
	"context"
	"sync"

	"github.com/soyeahso/autoreply/internal/domain"
)

// MockClient is a test double for the Client capability.
type MockClient struct {
	KindVal  domain.ProviderKind
	ID       string
	Response string
	Err      error

	mu      sync.Mutex
	calls   int
	lastReq Request
}

// Generate returns the canned response or error and counts the call.
func (m *MockClient) Generate(ctx context.Context, req Request) (*domain.GenerationResult, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	text := m.Response
	if text == "" {
		text = "mock response"
	}
	return &domain.GenerationResult{
		Text:         text,
		ProviderID:   m.ID,
		ProviderKind: m.KindVal,
		InputTokens:  10,
		OutputTokens: 5,
		LatencyMs:    1,
	}, nil
}

// Kind returns the configured backend type.
func (m *MockClient) Kind() domain.ProviderKind { return m.KindVal }

// Calls returns how many times Generate was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request passed to Generate.
func (m *MockClient) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}
