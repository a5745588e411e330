package client

import (
	"context"

	"github.com/openai/openai-go"
)

// ChatCompletions covers the chat-completion surface used by the generation
// pipeline. Tests provide a fake implementation.
type ChatCompletions interface {
	// New makes a single chat completion request.
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
	// NewWithRetry makes a chat completion request with exponential backoff.
	NewWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}
