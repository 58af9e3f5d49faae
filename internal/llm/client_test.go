package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry(quietLog())
	reg.Register("first", &MockClient{ProviderName: "first"}, "mistral")
	reg.Register("second", &MockClient{ProviderName: "second"}, "llama3", "")

	tests := map[string]string{
		"second":  "second",
		"mistral": "first",
		"llama3":  "second",
		"unknown": "first",
		"":        "first",
	}
	for name, want := range tests {
		c, err := reg.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, c.Name(), name)
	}
	assert.Equal(t, []string{"first", "second"}, reg.List())
}

func TestRegistryResolveEmpty(t *testing.T) {
	_, err := NewRegistry(quietLog()).Resolve("mistral")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mistral"`)
}

func TestNewRegistryFromConfig(t *testing.T) {
	reg := NewRegistryFromConfig(config.LLMConfig{Binding: " Ollama ", Model: "mistral"}, quietLog())
	assert.Equal(t, []string{"ollama"}, reg.List())
	c, err := reg.Resolve("mistral")
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)

	for _, binding := range []string{"none", "", "telepathy"} {
		reg := NewRegistryFromConfig(config.LLMConfig{Binding: binding}, quietLog())
		assert.Empty(t, reg.List(), binding)
	}
}

func TestMockClientRecordsRequests(t *testing.T) {
	mock := &MockClient{
		CompleteFunc: func(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{Content: "<" + req.Prompt + ">"}, nil
		},
	}
	resp, err := mock.Complete(context.Background(), CompletionRequest{Prompt: "salut"})
	require.NoError(t, err)
	assert.Equal(t, "<salut>", resp.Content)

	_, err = (&MockClient{}).Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, "salut", mock.Requests()[0].Prompt)
}

func TestCountTokens(t *testing.T) {
	ctx := context.Background()

	count := CountTokens(ctx, &MockClient{}, "one two three")
	require.True(t, count.OK)
	assert.Equal(t, 3, *count.Ptr())

	boom := errors.New("model not loaded")
	failing := &MockClient{TokenizeFunc: func(context.Context, string) ([]int, error) { return nil, boom }}
	count = CountTokens(ctx, failing, "x")
	assert.False(t, count.OK)
	assert.ErrorIs(t, count.Err, boom)

	for _, c := range []Client{nil, WithoutTokenizer(&MockClient{}), NewOllamaClient("", "m")} {
		count := CountTokens(ctx, c, "one two")
		assert.ErrorIs(t, count.Err, ErrTokenizerUnavailable)
		assert.Nil(t, count.Ptr())
	}
}

func TestProviderError(t *testing.T) {
	assert.Equal(t, "ollama: 503 busy", (&ProviderError{Provider: "ollama", Message: "busy", Code: 503}).Error())
	assert.Equal(t, "ollama: connection refused", (&ProviderError{Provider: "ollama", Message: "connection refused"}).Error())
}
