package llm

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/colloquy/internal/version"
)

const (
	defaultOllamaURL     = "http://localhost:11434"
	defaultOllamaTimeout = 120 * time.Second
	// maxErrorBody caps how much of a failed response ends up in an error.
	maxErrorBody = 4 << 10
)

// OllamaClient calls the /api/generate endpoint of an Ollama server.
type OllamaClient struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithAPIKey sends key as a bearer token, for Ollama behind a proxy.
func WithAPIKey(key string) OllamaOption {
	return func(o *OllamaClient) { o.apiKey = key }
}

// WithTimeout bounds each request. Non-positive values keep the default.
func WithTimeout(d time.Duration) OllamaOption {
	return func(o *OllamaClient) {
		if d > 0 {
			o.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *OllamaClient) { o.http = c }
}

// NewOllamaClient returns a client for the server at baseURL, by default
// http://localhost:11434, generating with model unless a request names one.
func NewOllamaClient(baseURL, model string, opts ...OllamaOption) *OllamaClient {
	o := &OllamaClient{
		baseURL: strings.TrimSuffix(cmp.Or(baseURL, defaultOllamaURL), "/"),
		model:   model,
		http:    &http.Client{Timeout: defaultOllamaTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name implements Client.
func (o *OllamaClient) Name() string { return "ollama" }

// Complete runs a non-streaming generation.
func (o *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := cmp.Or(req.Model, o.model)

	httpReq, err := o.newRequest(ctx, generateBody(model, req))
	if err != nil {
		return nil, err
	}
	resp, err := o.http.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: o.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ProviderError{
			Provider: o.Name(),
			Code:     resp.StatusCode,
			Message:  strings.TrimSpace(string(body)),
		}
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", err)
	}
	return &CompletionResponse{
		Content:    result.Response,
		Model:      model,
		StopReason: result.DoneReason,
		Usage:      Usage{InputTokens: result.PromptEvalCount, OutputTokens: result.EvalCount},
		Duration:   time.Since(start),
	}, nil
}

func generateBody(model string, req CompletionRequest) ollamaGenerateRequest {
	body := ollamaGenerateRequest{
		Model:  model,
		Prompt: buildPrompt(req),
		// Prompts carrying their own markers must not be re-templated.
		Raw: req.Prompt != "",
	}
	if req.Temperature != nil || req.MaxTokens > 0 || len(req.Stop) > 0 {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}
	return body
}

func (o *OllamaClient) newRequest(ctx context.Context, body ollamaGenerateRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	return req, nil
}

// buildPrompt flattens a chat-style request into a single prompt. User
// turns are unlabeled; other roles are prefixed with their name.
func buildPrompt(req CompletionRequest) string {
	if req.Prompt != "" {
		return req.Prompt
	}

	var b strings.Builder
	if req.System != "" {
		fmt.Fprintf(&b, "System: %s\n\n", req.System)
	}
	for _, msg := range req.Messages {
		if msg.Role != RoleUser {
			b.WriteString(msg.Role + ": ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Raw     bool           `json:"raw,omitempty"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
