// Package tokens provides tiktoken-based token counting utilities.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter provides token counting for prompt budgeting and metrics.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a token counter for the specified model. All supported
// providers are approximated with the GPT-4 encoding; Claude and Gemini
// tokenize similarly enough for budgeting purposes.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in the given text.
// Falls back to character-based estimation (4 chars ≈ 1 token) on error.
func (c *Counter) Count(text string) int {
	if c.codec == nil {
		return len(text) / 4
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountSimple counts tokens without requiring a Counter instance.
func CountSimple(text string) int {
	counter, err := NewCounter("gpt-4")
	if err != nil {
		return len(text) / 4
	}
	return counter.Count(text)
}
