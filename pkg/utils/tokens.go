// Package utils provides small shared helpers for the Helmsman runtime.
package utils

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts and truncates text by model token count.
// Used to clip long tool observations before they are folded into
// planner and summariser prompts.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	// Cache encodings to avoid repeated BPE initialization
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for a specific model. Unknown models
// fall back to the cl100k_base encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()

	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// Truncate returns text cut down to at most maxTokens tokens, with a
// trailing marker when anything was dropped.
func (c *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[:maxTokens]) + "\n[...truncated]"
}
