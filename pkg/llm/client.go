// Package llm is the minimal chat-completion client the runner needs to ask
// a model for its next actions.
package llm

import (
	"context"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingOptions tune generation; the zero value means provider defaults.
type SamplingOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Client asks a model to continue a conversation and returns its text.
type Client interface {
	Chat(ctx context.Context, messages []Message, options *SamplingOptions) (string, error)
}
