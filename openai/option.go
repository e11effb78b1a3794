// Copyright (c) Microsoft. All rights reserved.

package openai

import (
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/local-agents/ollama-agent/agent"
)

// clientConfig holds resolved configuration for the client.
type clientConfig struct {
	baseURL         string
	httpClient      *http.Client
	headers         map[string]string
	model           string
	azureCredential azcore.TokenCredential
	chatMiddleware  []agent.ChatMiddleware
	maxRetries      int
	retryBackoff    time.Duration
	timeout         time.Duration
}

// Option configures a [Client].
type Option func(*clientConfig)

// WithBaseURL overrides the API base URL, e.g. "http://localhost:11434/v1"
// for Ollama or an Azure AI Foundry endpoint.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithHTTPClient provides a custom http.Client for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// WithHeaders adds custom headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *clientConfig) { c.headers = headers }
}

// WithModel sets the default model for requests.
func WithModel(model string) Option {
	return func(c *clientConfig) { c.model = model }
}

// WithAzureCredential enables Microsoft Entra token authentication. The
// client obtains and refreshes tokens instead of sending the API key.
func WithAzureCredential(cred azcore.TokenCredential) Option {
	return func(c *clientConfig) { c.azureCredential = cred }
}

// WithChatMiddleware adds middleware to the chat pipeline.
// Middleware is applied in the order provided (first = outermost).
func WithChatMiddleware(mw ...agent.ChatMiddleware) Option {
	return func(c *clientConfig) { c.chatMiddleware = append(c.chatMiddleware, mw...) }
}

// WithMaxRetries sets how often a request is repeated after a connection
// error, 429 or 5xx. Zero disables retries. Default: 2.
func WithMaxRetries(n int) Option {
	return func(c *clientConfig) { c.maxRetries = n }
}

// WithRetryBackoff sets the delay before the first retry; it doubles on
// every further attempt. Default: 500ms.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *clientConfig) { c.retryBackoff = d }
}

// WithTimeout bounds each non-streaming request, retries included.
// Streaming requests are bounded by the caller's context only.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}
