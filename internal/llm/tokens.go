package llm

import (
	"context"
	"errors"
)

// ErrTokenizerUnavailable is reported when a provider cannot tokenize text.
var ErrTokenizerUnavailable = errors.New("tokenizer unavailable")

// Tokenizer is implemented by providers that expose their model's tokenizer.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) ([]int, error)
}

// TokenCount is the result of counting tokens. OK is false when the count
// could not be produced; Err then says why.
type TokenCount struct {
	N   int
	OK  bool
	Err error
}

// Ptr returns the count as a pointer, nil when unavailable.
func (c TokenCount) Ptr() *int {
	if !c.OK {
		return nil
	}
	n := c.N
	return &n
}

// CountTokens counts the tokens of text with the client's tokenizer.
func CountTokens(ctx context.Context, c Client, text string) TokenCount {
	if c == nil {
		return TokenCount{Err: ErrTokenizerUnavailable}
	}
	tok, ok := c.(Tokenizer)
	if !ok {
		return TokenCount{Err: ErrTokenizerUnavailable}
	}
	ids, err := tok.Tokenize(ctx, text)
	if err != nil {
		return TokenCount{Err: err}
	}
	return TokenCount{N: len(ids), OK: true}
}
