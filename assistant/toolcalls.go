// Copyright (c) Microsoft. All rights reserved.

package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/local-agents/ollama-agent/agent"
)

// toolCallPattern matches a reply that is nothing but a JSON array of
// single-key objects, optionally inside a code fence:
// [{"function_name": {...}}, ...]
var toolCallPattern = regexp.MustCompile("(?s)^\\s*(?:`{3}\\w*\\s*)?\\[\\s*\\{.*\\}\\s*\\](?:\\s*`{3})?\\s*$")

// ToolCallTextMiddleware converts tool calls that a model wrote as plain
// text into [agent.FunctionCallContent], so the agent's tool loop runs them.
// Models served without native tool-call support answer this way when the
// instructions describe the JSON format.
//
// It must be a chat middleware so the conversion happens before the tool
// loop inspects the response, and it must sit outside the sanitizer so it
// sees the reply without thinking spans.
func ToolCallTextMiddleware(logger *slog.Logger) agent.ChatMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next agent.ChatHandler) agent.ChatHandler {
		return func(ctx context.Context, messages []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
			resp, err := next(ctx, messages, opts)
			if err != nil || resp == nil {
				return resp, err
			}
			if opts == nil || len(opts.Tools) == 0 {
				return resp, nil
			}

			for i := range resp.Messages {
				msg := &resp.Messages[i]
				if msg.Role != agent.RoleAssistant || !onlyText(msg) {
					continue
				}
				text := strings.TrimSpace(msg.Text())
				if text == "" || !toolCallPattern.MatchString(text) {
					continue
				}

				calls, err := parseToolCalls(text)
				if err != nil {
					logger.DebugContext(ctx, "text is not a tool call", "error", err)
					continue
				}
				if len(calls) == 0 {
					continue
				}
				logger.InfoContext(ctx, "converted text to tool calls", "count", len(calls))

				contents := make(agent.Contents, 0, len(msg.Contents))
				for _, c := range msg.Contents {
					if _, ok := c.(*agent.TextReasoningContent); ok {
						contents = append(contents, c)
					}
				}
				for _, c := range calls {
					contents = append(contents, c)
				}
				msg.Contents = contents
				resp.FinishReason = agent.FinishReasonToolCalls
			}
			return resp, nil
		}
	}
}

// onlyText reports whether msg carries text and nothing but text or
// reasoning.
func onlyText(msg *agent.Message) bool {
	hasText := false
	for _, c := range msg.Contents {
		switch c.(type) {
		case *agent.TextContent:
			hasText = true
		case *agent.TextReasoningContent:
		default:
			return false
		}
	}
	return hasText
}

// parseToolCalls decodes [{"name": {args}}, ...], with or without a
// surrounding code fence.
func parseToolCalls(text string) ([]*agent.FunctionCallContent, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexAny(text, "\n["); nl >= 0 {
			text = text[nl:]
		}
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))

	var arr []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &arr); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}

	calls := make([]*agent.FunctionCallContent, 0, len(arr))
	for i, obj := range arr {
		if len(obj) != 1 {
			return nil, fmt.Errorf("tool call %d: expected 1 key, got %d", i, len(obj))
		}
		for name, raw := range obj {
			args := strings.TrimSpace(string(raw))
			if args == "" || args == "null" {
				args = "{}"
			}
			if !json.Valid([]byte(args)) || args[0] != '{' {
				return nil, fmt.Errorf("tool call %d (%s): arguments must be an object", i, name)
			}
			calls = append(calls, &agent.FunctionCallContent{
				CallID:    "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
				Name:      name,
				Arguments: args,
			})
		}
	}
	return calls, nil
}

// ToolCallLoggingMiddleware logs every tool invocation.
func ToolCallLoggingMiddleware(logger *slog.Logger) agent.FunctionMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next agent.FunctionHandler) agent.FunctionHandler {
		return func(ctx context.Context, tool agent.Tool, args json.RawMessage) (any, error) {
			logger.InfoContext(ctx, "tool call", "tool", tool.Name(), "args", string(args))
			result, err := next(ctx, tool, args)
			if err != nil {
				logger.WarnContext(ctx, "tool failed", "tool", tool.Name(), "error", err)
				return result, err
			}
			logger.DebugContext(ctx, "tool succeeded", "tool", tool.Name())
			return result, nil
		}
	}
}
