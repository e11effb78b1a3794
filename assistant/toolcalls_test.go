// Copyright (c) Microsoft. All rights reserved.

package assistant

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/tools"
)

func respond(contents ...agent.Content) agent.ChatHandler {
	return func(context.Context, []agent.Message, *agent.ChatOptions) (*agent.ChatResponse, error) {
		return &agent.ChatResponse{
			Messages:     []agent.Message{{Role: agent.RoleAssistant, Contents: contents}},
			FinishReason: agent.FinishReasonStop,
		}, nil
	}
}

var withTools = &agent.ChatOptions{Tools: []agent.Tool{tools.TimeTool()}}

func TestToolCallTextConverts(t *testing.T) {
	for name, text := range map[string]string{
		"bare":     `[{"get_time": {}}]`,
		"json":     "```json\n[{\"get_time\": {}}]\n```",
		"py fence": "```py\n[{\"get_time\": {}}]\n```",
		"one line": "```[{\"get_time\": null}]```",
		"spaced":   "  \n[ {\"get_time\": {}} ]\n",
	} {
		t.Run(name, func(t *testing.T) {
			h := ToolCallTextMiddleware(quiet)(respond(&agent.TextContent{Text: text}))
			resp, err := h(context.Background(), nil, withTools)
			require.NoError(t, err)
			assert.Equal(t, agent.FinishReasonToolCalls, resp.FinishReason)
			require.Len(t, resp.Messages[0].Contents, 1)
			fc, ok := resp.Messages[0].Contents[0].(*agent.FunctionCallContent)
			require.True(t, ok)
			assert.Equal(t, "get_time", fc.Name)
			assert.Equal(t, "{}", fc.Arguments)
			assert.NotEmpty(t, fc.CallID)
		})
	}
}

func TestToolCallTextKeepsReasoning(t *testing.T) {
	h := ToolCallTextMiddleware(quiet)(respond(
		&agent.TextReasoningContent{Text: "need time"},
		&agent.TextContent{Text: `[{"get_time": {}}, {"calculator": {"expression": "1+1"}}]`},
	))
	resp, err := h(context.Background(), nil, withTools)
	require.NoError(t, err)
	cs := resp.Messages[0].Contents
	require.Len(t, cs, 3)
	assert.IsType(t, &agent.TextReasoningContent{}, cs[0])
	assert.Equal(t, "calculator", cs[2].(*agent.FunctionCallContent).Name)
	assert.Equal(t, `{"expression": "1+1"}`, cs[2].(*agent.FunctionCallContent).Arguments)
	assert.NotEqual(t, cs[1].(*agent.FunctionCallContent).CallID, cs[2].(*agent.FunctionCallContent).CallID)
}

func TestToolCallTextLeavesProse(t *testing.T) {
	for _, text := range []string{
		"The time is noon.",
		"Here is a list: [1, 2, 3]",
		`[{"a": {}, "b": {}}]`,
		`[{"get_time": "now"}]`,
		`[{"get_time": {}}] and more`,
	} {
		h := ToolCallTextMiddleware(quiet)(respond(&agent.TextContent{Text: text}))
		resp, err := h(context.Background(), nil, withTools)
		require.NoError(t, err)
		assert.Equal(t, agent.FinishReasonStop, resp.FinishReason, text)
		assert.Equal(t, text, resp.Messages[0].Text())
	}
}

func TestToolCallTextWithoutTools(t *testing.T) {
	h := ToolCallTextMiddleware(quiet)(respond(&agent.TextContent{Text: `[{"get_time": {}}]`}))
	resp, err := h(context.Background(), nil, &agent.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, agent.FinishReasonStop, resp.FinishReason)
}

func TestToolCallLoggingMiddleware(t *testing.T) {
	tool := tools.TimeTool()
	h := ToolCallLoggingMiddleware(quiet)(func(ctx context.Context, tl agent.Tool, args json.RawMessage) (any, error) {
		return tl.Invoke(ctx, args)
	})
	out, err := h(context.Background(), tool, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out, "iso8601")
}
