// Copyright (c) Microsoft. All rights reserved.

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/local-agents/ollama-agent/agent"
)

const (
	defaultBaseURL      = "http://localhost:11434/v1"
	defaultMaxRetries   = 2
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 10 * time.Second

	cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"
)

// transport is the HTTP seam; tests inject a mock.
type transport interface {
	do(ctx context.Context, method, path string, body any) (*http.Response, error)
}

type httpTransport struct {
	client          *http.Client
	baseURL         string
	apiKey          string
	headers         map[string]string
	azureCredential azcore.TokenCredential
	maxRetries      int
	retryBackoff    time.Duration
}

func newHTTPTransport(apiKey string, opts *clientConfig) *httpTransport {
	t := &httpTransport{
		client:          opts.httpClient,
		baseURL:         opts.baseURL,
		apiKey:          apiKey,
		headers:         opts.headers,
		azureCredential: opts.azureCredential,
		maxRetries:      opts.maxRetries,
		retryBackoff:    opts.retryBackoff,
	}
	if t.client == nil {
		t.client = http.DefaultClient
	}
	if t.baseURL == "" {
		t.baseURL = defaultBaseURL
	}
	if t.maxRetries < 0 {
		t.maxRetries = 0
	}
	if t.retryBackoff <= 0 {
		t.retryBackoff = defaultRetryBackoff
	}
	return t
}

// do sends the request, retrying transient failures with exponential
// backoff. Responses with status >= 400 are returned as *agent.ServiceError.
func (t *httpTransport) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request: %w", agent.ErrInvalidRequest, err)
		}
		payload = b
	}

	backoff := t.retryBackoff
	for attempt := 0; ; attempt++ {
		resp, err := t.send(ctx, method, path, payload)
		if err == nil || attempt >= t.maxRetries || !retryable(ctx, err) {
			return resp, err
		}

		slog.WarnContext(ctx, "retrying chat request",
			"attempt", attempt+1,
			"max_retries", t.maxRetries,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func (t *httpTransport) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", agent.ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch {
	case t.azureCredential != nil:
		token, err := t.azureCredential.GetToken(ctx, policy.TokenRequestOptions{
			Scopes: []string{cognitiveServicesScope},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: get azure token: %w", agent.ErrAuth, err)
		}
		slog.DebugContext(ctx, "using Entra token authentication", "token_expires_on", token.ExpiresOn)
		req.Header.Set("Authorization", "Bearer "+token.Token)
	case t.headers["api-key"] == "":
		// Ollama ignores the key but the OpenAI wire format expects one.
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &agent.ServiceError{
			Message: "http request: " + err.Error(),
			Err:     fmt.Errorf("%w: %w", agent.ErrUnavailable, err),
		}
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseErrorResponse(resp)
	}
	return resp, nil
}

// retryable reports whether err is a transient failure worth repeating.
// Context cancellation never is.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *agent.ServiceError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == 0 || se.Retryable()
}

// parseErrorResponse reads an error response body and returns a typed error.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Error.Message
	if msg == "" {
		msg = string(bytes.TrimSpace(body))
	}
	code, _ := apiErr.Error.Code.(string)

	svcErr := &agent.ServiceError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Code:       code,
	}

	switch {
	case code == "content_filter":
		svcErr.Err = agent.ErrContentFilter
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		svcErr.Err = agent.ErrAuth
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		svcErr.Err = agent.ErrUnavailable
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		svcErr.Err = agent.ErrInvalidRequest
	default:
		svcErr.Err = agent.ErrService
	}
	return svcErr
}
