package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/colloquy/internal/llm"
)

// Translator turns text into another language.
type Translator interface {
	Translate(ctx context.Context, text, language string) (string, error)
}

// LLMTranslator translates with a generation client.
type LLMTranslator struct {
	Client      llm.Client
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Translate asks the model for a translation of text into language.
func (t *LLMTranslator) Translate(ctx context.Context, text, language string) (string, error) {
	if t.Client == nil {
		return "", fmt.Errorf("translating to %s: no generation client", language)
	}

	resp, err := t.Client.Complete(ctx, llm.CompletionRequest{
		Model:       t.Model,
		Prompt:      TranslationPrompt(text, language),
		MaxTokens:   t.MaxTokens,
		Temperature: t.Temperature,
		Stop:        []string{promptMarker},
	})
	if err != nil {
		return "", fmt.Errorf("translating to %s: %w", language, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

const (
	promptMarker = "!@>"
	systemMarker = "!@>system:"
)

// TranslationPrompt builds the instruction sent to the model.
func TranslationPrompt(text, language string) string {
	return fmt.Sprintf("%sinstruction: Translate the following text to %s:\n%s\n%stranslation:\n",
		promptMarker, language, text, promptMarker)
}
