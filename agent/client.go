// Copyright (c) Microsoft. All rights reserved.

package agent

import "context"

// ChatClient is the interface for talking to a chat-completion backend.
// The openai package implements it for Ollama and Azure endpoints.
type ChatClient interface {
	// Response sends messages to the model and returns a complete response.
	Response(ctx context.Context, messages []Message, opts *ChatOptions) (*ChatResponse, error)

	// StreamResponse sends messages and returns a stream of incremental updates.
	StreamResponse(ctx context.Context, messages []Message, opts *ChatOptions) (*Stream[ChatResponseUpdate], error)
}
