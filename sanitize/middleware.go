// Copyright (c) Microsoft. All rights reserved.

package sanitize

import (
	"context"

	"github.com/local-agents/ollama-agent/agent"
)

// Middleware returns an [agent.ChatMiddleware] that cleans the text of
// every assistant message in a response. Reasoning, tool calls and all
// other response fields pass through untouched.
//
// With [WithKeepReasoning] the removed thinking text is inserted before the
// cleaned text as [agent.TextReasoningContent].
func Middleware(s *Sanitizer) agent.ChatMiddleware {
	if s == nil {
		s = std
	}
	return func(next agent.ChatHandler) agent.ChatHandler {
		return func(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
			resp, err := next(ctx, msgs, opts)
			if err != nil || resp == nil {
				return resp, err
			}
			for i := range resp.Messages {
				if resp.Messages[i].Role != agent.RoleAssistant {
					continue
				}
				resp.Messages[i].Contents = s.cleanContents(ctx, resp.Messages[i].Contents)
			}
			return resp, nil
		}
	}
}

func (s *Sanitizer) cleanContents(ctx context.Context, cs agent.Contents) agent.Contents {
	out := make(agent.Contents, 0, len(cs))
	for _, c := range cs {
		tc, ok := c.(*agent.TextContent)
		if !ok || tc.Text == "" {
			out = append(out, c)
			continue
		}
		if s.keepReasoning {
			for _, thought := range ExtractThinking(tc.Text) {
				out = append(out, &agent.TextReasoningContent{Text: thought})
			}
		}
		cleaned := s.Clean(tc.Text)
		if cleaned != tc.Text {
			s.logContext(ctx, "assistant text sanitized", "before", len(tc.Text), "after", len(cleaned))
		}
		out = append(out, &agent.TextContent{Text: cleaned})
	}
	return out
}

// CleanResponse applies s to a finished agent response, e.g. one merged
// from a stream with [agent.ResponseStream.FinalResponse].
func (s *Sanitizer) CleanResponse(ctx context.Context, resp *agent.Response) {
	if resp == nil {
		return
	}
	for i := range resp.Messages {
		if resp.Messages[i].Role == agent.RoleAssistant {
			resp.Messages[i].Contents = s.cleanContents(ctx, resp.Messages[i].Contents)
		}
	}
}
