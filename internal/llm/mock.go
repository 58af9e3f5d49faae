package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a scripted Client for tests. It records every request and,
// unlike the real backends, also implements Tokenizer.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// TokenizeFunc overrides the default whitespace tokenizer.
	TokenizeFunc func(ctx context.Context, text string) ([]int, error)

	mu       sync.Mutex
	requests []CompletionRequest
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc == nil {
		return &CompletionResponse{Content: "mock response"}, nil
	}
	return m.CompleteFunc(ctx, req)
}

func (m *MockClient) Tokenize(ctx context.Context, text string) ([]int, error) {
	if m.TokenizeFunc != nil {
		return m.TokenizeFunc(ctx, text)
	}
	ids := make([]int, 0, 8)
	for i := range strings.Fields(text) {
		ids = append(ids, i)
	}
	return ids, nil
}

// Calls reports how many completions were requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests, oldest first.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

type plainClient struct{ Client }

// WithoutTokenizer hides any Tokenizer implementation of c.
func WithoutTokenizer(c Client) Client { return plainClient{c} }
