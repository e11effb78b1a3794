// Copyright (c) Microsoft. All rights reserved.

package sanitize_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/sanitize"
)

func chatReturning(resp *agent.ChatResponse, err error) agent.ChatHandler {
	return func(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
		return resp, err
	}
}

func TestMiddleware_CleansAssistantText(t *testing.T) {
	call := &agent.FunctionCallContent{CallID: "c1", Name: "get_time"}
	resp := &agent.ChatResponse{
		ResponseID: "r1",
		Usage:      agent.UsageDetails{TotalTokens: 7},
		Messages: []agent.Message{{
			Role: agent.RoleAssistant,
			Contents: agent.Contents{
				&agent.TextContent{Text: "<think>plan</think>\n\n```python\nx = 1\n```"},
				call,
			},
		}},
	}

	h := sanitize.Middleware(sanitize.New())(chatReturning(resp, nil))
	got, err := h(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "```py\nx = 1\n```", got.Text())
	assert.Equal(t, "r1", got.ResponseID)
	assert.Equal(t, 7, got.Usage.TotalTokens)
	require.Len(t, got.Messages[0].Contents, 2)
	assert.Same(t, call, got.Messages[0].Contents[1])
	assert.Empty(t, got.Messages[0].Reasoning())
}

func TestMiddleware_KeepReasoning(t *testing.T) {
	resp := &agent.ChatResponse{Messages: []agent.Message{
		agent.NewAssistantMessage("<think>2+2=4</think>\n\nThe answer is 4."),
	}}

	h := sanitize.Middleware(sanitize.New(sanitize.WithKeepReasoning(true)))(chatReturning(resp, nil))
	got, err := h(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "The answer is 4.", got.Text())
	assert.Equal(t, "2+2=4", got.Messages[0].Reasoning())
}

func TestMiddleware_LeavesOtherRolesAndEmptyText(t *testing.T) {
	resp := &agent.ChatResponse{Messages: []agent.Message{
		{Role: agent.RoleUser, Contents: agent.Contents{&agent.TextContent{Text: "<think>user</think>"}}},
		{Role: agent.RoleAssistant, Contents: agent.Contents{&agent.TextContent{Text: ""}}},
	}}

	h := sanitize.Middleware(nil)(chatReturning(resp, nil))
	got, err := h(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "<think>user</think>", got.Messages[0].Text())
	assert.Equal(t, "", got.Messages[1].Text())
}

func TestMiddleware_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	h := sanitize.Middleware(nil)(chatReturning(nil, boom))
	_, err := h(context.Background(), nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestMiddleware_OnAgent(t *testing.T) {
	client := &stubClient{text: "<think>reasoning</think>\n\nDone."}
	a := agent.NewAgent(client, agent.WithChatMiddleware(sanitize.Middleware(sanitize.New())))

	resp, err := a.Run(context.Background(), []agent.Message{agent.NewUserMessage("go")})
	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Text())
}

func TestCleanResponse(t *testing.T) {
	resp := &agent.Response{Messages: []agent.Message{agent.NewAssistantMessage("```\nx\n```  ")}}
	sanitize.New().CleanResponse(context.Background(), resp)
	assert.Equal(t, "```py\nx\n```", resp.Text())
}

type stubClient struct{ text string }

func (c *stubClient) Response(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
	return &agent.ChatResponse{Messages: []agent.Message{agent.NewAssistantMessage(c.text)}}, nil
}

func (c *stubClient) StreamResponse(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.Stream[agent.ChatResponseUpdate], error) {
	chunks := splitEvery(c.text, 3)
	return agent.NewStream(ctx, func(ctx context.Context, ch chan<- agent.ChatResponseUpdate) error {
		for _, chunk := range chunks {
			select {
			case ch <- agent.ChatResponseUpdate{Role: agent.RoleAssistant, Contents: agent.Contents{&agent.TextContent{Text: chunk}}}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}), nil
}

func splitEvery(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
