// Package llm talks to text generation backends.
//
// colloquy only needs short, one-shot completions (translating a
// personality's conditioning and welcome message), so a backend is anything
// that turns a CompletionRequest into text.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks for one completion. Prompt, when set, is sent as
// is and System and Messages are ignored.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// CompletionResponse is the generated text plus accounting.
type CompletionResponse struct {
	Content    string        `json:"content"`
	Model      string        `json:"model,omitempty"`
	StopReason string        `json:"stopReason,omitempty"`
	Usage      Usage         `json:"usage"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Usage counts prompt and generated tokens as reported by the backend.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is a generation backend.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name identifies the backend in logs and errors, e.g. "ollama".
	Name() string
}

// ProviderError is a failure reported by, or on the way to, a backend.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status, 0 when the request never got an answer
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
