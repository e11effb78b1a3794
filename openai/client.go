// Copyright (c) Microsoft. All rights reserved.

package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/local-agents/ollama-agent/agent"
)

// Client implements [agent.ChatClient] over the Chat Completions wire
// format. Use [New] to create one.
type Client struct {
	tp      transport
	model   string
	timeout time.Duration
	handler agent.ChatHandler
}

var _ agent.ChatClient = (*Client)(nil)

// New creates a [Client] with the given API key and options. Ollama accepts
// any key.
//
//	client := openai.New("dummy_key",
//	    openai.WithBaseURL("http://localhost:11434/v1"),
//	    openai.WithModel("qwen3:latest"),
//	)
func New(apiKey string, opts ...Option) *Client {
	cfg := &clientConfig{maxRetries: defaultMaxRetries}
	for _, o := range opts {
		o(cfg)
	}
	c := &Client{
		tp:      newHTTPTransport(apiKey, cfg),
		model:   cfg.model,
		timeout: cfg.timeout,
	}
	c.handler = agent.ChainChatMiddleware(c.coreResponse, cfg.chatMiddleware...)
	return c
}

// Model returns the default model the client sends.
func (c *Client) Model() string { return c.model }

// Response sends a non-streaming chat completion request.
func (c *Client) Response(ctx context.Context, messages []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
	return c.handler(ctx, messages, opts)
}

func (c *Client) coreResponse(ctx context.Context, messages []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := buildRequest(messages, opts, c.model)
	slog.DebugContext(ctx, "chat completion request",
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)

	resp, err := c.tp.do(ctx, "POST", "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %w", agent.ErrInvalidResponse, err)
	}

	raw, err := unmarshalChatResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", agent.ErrInvalidResponse, err)
	}

	result := parseChatResponse(raw)
	result.Raw = raw
	return result, nil
}

// StreamResponse sends a streaming chat completion request and yields
// incremental updates read from server-sent events. Tool call fragments are
// assembled and emitted as complete calls once the choice finishes.
func (c *Client) StreamResponse(ctx context.Context, messages []agent.Message, opts *agent.ChatOptions) (*agent.Stream[agent.ChatResponseUpdate], error) {
	req := buildRequest(messages, opts, c.model)
	req.Stream = true
	req.StreamOptions = &streamOptions{IncludeUsage: true}

	resp, err := c.tp.do(ctx, "POST", "/chat/completions", req)
	if err != nil {
		return nil, err
	}

	return agent.NewStream(ctx, func(ctx context.Context, ch chan<- agent.ChatResponseUpdate) error {
		defer resp.Body.Close()
		return parseSSEStream(ctx, resp.Body, ch)
	}), nil
}

// parseSSEStream reads server-sent events from r and sends parsed updates
// to ch until [DONE], EOF, cancellation or a read error.
func parseSSEStream(ctx context.Context, r io.Reader, ch chan<- agent.ChatResponseUpdate) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	send := func(u agent.ChatResponseUpdate) error {
		select {
		case ch <- u:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	calls := &toolCallAccumulator{}
	var lastID, lastModel string

	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.DebugContext(ctx, "skipping malformed stream chunk", "error", err)
			continue
		}
		lastID, lastModel = chunk.ID, chunk.Model

		for i := range chunk.Choices {
			calls.add(chunk.Choices[i].Delta.ToolCalls)
			chunk.Choices[i].Delta.ToolCalls = nil
		}
		update := parseChunk(&chunk)
		if update.FinishReason != "" {
			update.Contents = append(update.Contents, calls.flush()...)
		}
		if len(update.Contents) == 0 && update.Usage.TotalTokens == 0 && update.FinishReason == "" && update.Role == "" {
			continue
		}
		if err := send(*update); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: read SSE stream: %w", agent.ErrInvalidResponse, err)
	}

	if pending := calls.flush(); len(pending) > 0 {
		return send(agent.ChatResponseUpdate{
			Role:       agent.RoleAssistant,
			ResponseID: lastID,
			ModelID:    lastModel,
			Contents:   pending,
		})
	}
	return nil
}

// toolCallAccumulator joins streamed tool call fragments by index.
type toolCallAccumulator struct {
	calls map[int]*agent.FunctionCallContent
	next  int
}

func (a *toolCallAccumulator) add(fragments []toolCall) {
	if a.calls == nil {
		a.calls = make(map[int]*agent.FunctionCallContent)
	}
	for _, f := range fragments {
		idx := a.next
		if f.Index != nil {
			idx = *f.Index
		} else if f.ID == "" && a.next > 0 {
			// Continuation of the previous call without an index.
			idx = a.next - 1
		}
		fc, ok := a.calls[idx]
		if !ok {
			fc = &agent.FunctionCallContent{}
			a.calls[idx] = fc
			if idx >= a.next {
				a.next = idx + 1
			}
		}
		if f.ID != "" {
			fc.CallID = f.ID
		}
		if f.Function.Name != "" {
			fc.Name = f.Function.Name
		}
		fc.Arguments += f.Function.Arguments
	}
}

func (a *toolCallAccumulator) flush() agent.Contents {
	if len(a.calls) == 0 {
		return nil
	}
	idxs := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	out := make(agent.Contents, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, a.calls[i])
	}
	a.calls = nil
	a.next = 0
	return out
}
