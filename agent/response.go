// Copyright (c) Microsoft. All rights reserved.

package agent

import "strings"

// ChatResponse is the complete (non-streaming) response from a [ChatClient].
type ChatResponse struct {
	Messages     []Message
	ResponseID   string
	ModelID      string
	FinishReason FinishReason
	Usage        UsageDetails
	Raw          any
}

// Text returns the concatenated text of all messages.
func (r *ChatResponse) Text() string {
	return messagesText(r.Messages)
}

// ChatResponseUpdate is a single chunk received while streaming.
type ChatResponseUpdate struct {
	Contents     Contents
	Role         Role
	ResponseID   string
	ModelID      string
	FinishReason FinishReason
	Usage        UsageDetails
}

// Text returns the concatenated text of all [TextContent] items.
func (u *ChatResponseUpdate) Text() string {
	return contentsText(u.Contents)
}

// Response is the complete response from an [Agent] run.
type Response struct {
	Messages     []Message
	ResponseID   string
	AgentID      string
	ModelID      string
	FinishReason FinishReason
	Usage        UsageDetails
	Raw          any
}

// Text returns the concatenated text of all messages.
func (r *Response) Text() string {
	return messagesText(r.Messages)
}

// Reasoning returns the thinking text captured across all messages.
func (r *Response) Reasoning() string {
	var parts []string
	for i := range r.Messages {
		if s := r.Messages[i].Reasoning(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ResponseUpdate is a single streaming chunk from an [Agent] run.
type ResponseUpdate struct {
	Contents   Contents
	Role       Role
	AgentID    string
	ResponseID string
	Usage      UsageDetails
}

// Text returns the concatenated text of all [TextContent] items.
func (u *ResponseUpdate) Text() string {
	return contentsText(u.Contents)
}

func messagesText(msgs []Message) string {
	var b strings.Builder
	for i := range msgs {
		b.WriteString(msgs[i].Text())
	}
	return b.String()
}

func contentsText(cs Contents) string {
	var b strings.Builder
	for _, c := range cs {
		if tc, ok := c.(*TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// ResponseFromUpdates builds a complete [Response] by merging streaming
// updates. Consecutive text deltas are merged into one [TextContent].
func ResponseFromUpdates(updates []ResponseUpdate) *Response {
	resp := &Response{}
	var all Contents
	for _, u := range updates {
		all = append(all, u.Contents...)
		if u.AgentID != "" {
			resp.AgentID = u.AgentID
		}
		if u.ResponseID != "" {
			resp.ResponseID = u.ResponseID
		}
		if u.Usage.TotalTokens > 0 {
			resp.Usage = u.Usage
		}
	}

	if merged := mergeContentDeltas(all); len(merged) > 0 {
		role := RoleAssistant
		if len(updates) > 0 && updates[0].Role != "" {
			role = updates[0].Role
		}
		resp.Messages = []Message{{Role: role, Contents: merged}}
	}
	return resp
}

// mergeContentDeltas consolidates runs of the same text kind into single
// items and passes other content through.
func mergeContentDeltas(cs Contents) Contents {
	if len(cs) == 0 {
		return nil
	}
	var merged Contents
	var buf strings.Builder
	var kind ContentType
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		if kind == ContentTypeTextReasoning {
			merged = append(merged, &TextReasoningContent{Text: buf.String()})
		} else {
			merged = append(merged, &TextContent{Text: buf.String()})
		}
		buf.Reset()
	}
	for _, c := range cs {
		var text string
		switch v := c.(type) {
		case *TextContent:
			text = v.Text
		case *TextReasoningContent:
			text = v.Text
		default:
			flush()
			merged = append(merged, c)
			continue
		}
		if c.Type() != kind {
			flush()
			kind = c.Type()
		}
		buf.WriteString(text)
	}
	flush()
	return merged
}
