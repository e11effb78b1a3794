// Copyright (c) Microsoft. All rights reserved.

// Package openai provides an [agent.ChatClient] for servers that speak the
// OpenAI Chat Completions wire format: Ollama's /v1 endpoint, Azure AI
// Foundry and OpenAI itself.
//
//	client := openai.New("dummy_key",
//	    openai.WithBaseURL("http://localhost:11434/v1"),
//	    openai.WithModel("qwen3:latest"),
//	)
//	a := agent.NewAgent(client)
//
// The client supports synchronous and streaming responses and tool calling.
// Thinking text that the server reports separately (reasoning_content or
// reasoning) is returned as [agent.TextReasoningContent].
//
// # Configuration
//
//   - [WithModel]: set the default model
//   - [WithBaseURL]: override the API endpoint
//   - [WithHTTPClient]: provide a custom http.Client
//   - [WithHeaders]: add custom headers to every request
//   - [WithAzureCredential]: authenticate with Microsoft Entra tokens
//   - [WithMaxRetries], [WithRetryBackoff]: retry transient failures
//   - [WithTimeout]: bound non-streaming requests
//
// Provider extras travel in [agent.ChatOptions].Extra: the "options" map is
// sent as Ollama's options object (for example num_ctx) and "keep_alive" as
// its keep_alive field.
//
// # Testing
//
// Provide a mock http.Client via [WithHTTPClient] with a custom
// RoundTripper.
package openai
