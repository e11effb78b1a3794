// Copyright (c) Microsoft. All rights reserved.

package openai

import (
	"encoding/json"
	"strings"

	"github.com/local-agents/ollama-agent/agent"
)

// chatRequest is the Chat Completions request body. Options and KeepAlive
// are Ollama extensions; other servers ignore them.
type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Seed          *int           `json:"seed,omitempty"`
	Tools         []toolSpec     `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
	KeepAlive     any            `json:"keep_alive,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Extra keys understood by buildRequest.
const (
	ExtraOptions   = "options"
	ExtraKeepAlive = "keep_alive"
)

// buildRequest converts agent types into a Chat Completions request.
func buildRequest(messages []agent.Message, opts *agent.ChatOptions, defaultModel string) *chatRequest {
	req := &chatRequest{Model: defaultModel}
	if opts != nil {
		if opts.ModelID != "" {
			req.Model = opts.ModelID
		}
		req.Temperature = opts.Temperature
		req.TopP = opts.TopP
		req.MaxTokens = opts.MaxTokens
		req.Stop = opts.Stop
		req.Seed = opts.Seed

		for _, t := range opts.Tools {
			req.Tools = append(req.Tools, toolSpec{
				Type: "function",
				Function: functionSpec{
					Name:        t.Name(),
					Description: t.Description(),
					Parameters:  t.Parameters(),
				},
			})
		}
		if len(req.Tools) > 0 {
			req.ToolChoice = convertToolChoice(opts.ToolChoice)
		}

		if o, ok := opts.Extra[ExtraOptions].(map[string]any); ok && len(o) > 0 {
			req.Options = o
		}
		if ka, ok := opts.Extra[ExtraKeepAlive]; ok {
			req.KeepAlive = ka
		}
	}

	req.Messages = convertMessages(messages)
	return req
}

// convertMessages translates agent messages into wire messages. Reasoning
// content is never sent back to the model.
func convertMessages(messages []agent.Message) []chatMessage {
	result := make([]chatMessage, 0, len(messages))

	for _, msg := range messages {
		cm := chatMessage{
			Role: string(msg.Role),
			Name: msg.AuthorName,
		}

		switch msg.Role {
		case agent.RoleTool:
			for _, c := range msg.Contents {
				if fr, ok := c.(*agent.FunctionResultContent); ok {
					cm.ToolCallID = fr.CallID
					s := marshalResult(fr.Result)
					cm.Content = &s
				}
			}

		case agent.RoleAssistant:
			var text strings.Builder
			for _, c := range msg.Contents {
				switch v := c.(type) {
				case *agent.TextContent:
					text.WriteString(v.Text)
				case *agent.FunctionCallContent:
					cm.ToolCalls = append(cm.ToolCalls, toolCall{
						ID:   v.CallID,
						Type: "function",
						Function: functionCall{
							Name:      v.Name,
							Arguments: v.Arguments,
						},
					})
				}
			}
			if text.Len() > 0 || len(cm.ToolCalls) == 0 {
				s := text.String()
				cm.Content = &s
			}

		default:
			s := msg.Text()
			cm.Content = &s
		}

		result = append(result, cm)
	}

	return result
}

func convertToolChoice(tc agent.ToolChoice) any {
	switch tc {
	case "":
		return nil
	case agent.ToolChoiceAuto, agent.ToolChoiceRequired, agent.ToolChoiceNone:
		return string(tc)
	}
	if name, ok := strings.CutPrefix(string(tc), "function:"); ok && name != "" {
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": name},
		}
	}
	return string(tc)
}

func marshalResult(v any) string {
	switch r := v.(type) {
	case string:
		return r
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "error: unserializable tool result"
	}
	return string(b)
}
