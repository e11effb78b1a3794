// Copyright (c) Microsoft. All rights reserved.

package openai

import (
	"encoding/json"

	"github.com/local-agents/ollama-agent/agent"
)

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type choice struct {
	Index        int         `json:"index"`
	Message      respMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// respMessage carries the thinking text in reasoning_content (DeepSeek,
// vLLM) or reasoning (Ollama) when the server separates it.
type respMessage struct {
	Role             string     `json:"role"`
	Content          *string    `json:"content"`
	ReasoningContent *string    `json:"reasoning_content,omitempty"`
	Reasoning        *string    `json:"reasoning,omitempty"`
	ToolCalls        []toolCall `json:"tool_calls,omitempty"`
}

func (m *respMessage) reasoning() string {
	if m.ReasoningContent != nil && *m.ReasoningContent != "" {
		return *m.ReasoningContent
	}
	if m.Reasoning != nil {
		return *m.Reasoning
	}
	return ""
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usage) details() agent.UsageDetails {
	if u == nil {
		return agent.UsageDetails{}
	}
	return agent.UsageDetails{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

// chatCompletionChunk is a single SSE chunk in streaming mode.
type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *usage        `json:"usage,omitempty"`
}

type chunkChoice struct {
	Index        int         `json:"index"`
	Delta        respMessage `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// parseChatResponse converts the wire response into agent types.
func parseChatResponse(raw *chatCompletionResponse) *agent.ChatResponse {
	resp := &agent.ChatResponse{
		ResponseID: raw.ID,
		ModelID:    raw.Model,
		Usage:      raw.Usage.details(),
	}

	if len(raw.Choices) == 0 {
		return resp
	}
	c := raw.Choices[0]
	resp.FinishReason = mapFinishReason(c.FinishReason)

	role := agent.Role(c.Message.Role)
	if role == "" {
		role = agent.RoleAssistant
	}
	msg := agent.Message{Role: role}
	msg.Contents = appendDelta(msg.Contents, &c.Message)
	resp.Messages = []agent.Message{msg}
	return resp
}

// parseChunk converts a streaming chunk into an update.
func parseChunk(chunk *chatCompletionChunk) *agent.ChatResponseUpdate {
	update := &agent.ChatResponseUpdate{
		ResponseID: chunk.ID,
		ModelID:    chunk.Model,
		Usage:      chunk.Usage.details(),
	}

	if len(chunk.Choices) > 0 {
		c := chunk.Choices[0]
		if c.Delta.Role != "" {
			update.Role = agent.Role(c.Delta.Role)
		}
		if c.FinishReason != nil {
			update.FinishReason = mapFinishReason(*c.FinishReason)
		}
		update.Contents = appendDelta(update.Contents, &c.Delta)
	}

	return update
}

// appendDelta appends the reasoning, text and tool calls of m, in that order.
func appendDelta(cs agent.Contents, m *respMessage) agent.Contents {
	if r := m.reasoning(); r != "" {
		cs = append(cs, &agent.TextReasoningContent{Text: r})
	}
	if m.Content != nil && *m.Content != "" {
		cs = append(cs, &agent.TextContent{Text: *m.Content})
	}
	for _, tc := range m.ToolCalls {
		cs = append(cs, &agent.FunctionCallContent{
			CallID:    tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return cs
}

func unmarshalChatResponse(data []byte) (*chatCompletionResponse, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func mapFinishReason(s string) agent.FinishReason {
	switch s {
	case "stop":
		return agent.FinishReasonStop
	case "length":
		return agent.FinishReasonLength
	case "tool_calls":
		return agent.FinishReasonToolCalls
	case "content_filter":
		return agent.FinishReasonContentFilter
	default:
		return agent.FinishReason(s)
	}
}
