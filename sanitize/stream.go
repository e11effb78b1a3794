// Copyright (c) Microsoft. All rights reserved.

package sanitize

import (
	"context"
	"strings"

	"github.com/local-agents/ollama-agent/agent"
)

// StreamFilter removes thinking spans from text that arrives in chunks.
// Text is held back until no later chunk can change how it is stripped: a
// partial marker at the end, an opener still waiting for its closer, or a
// deletion that would leave a partial marker behind. What is released
// strips exactly as [Clean] strips it, and leading whitespace of the
// visible text is dropped as [Clean] trims it.
//
// Blank-line collapsing and fence normalization need the whole text and
// are left to [Clean]. A StreamFilter is not safe for concurrent use.
type StreamFilter struct {
	tail    string
	started bool
}

// NewStreamFilter returns a filter positioned outside any thinking span.
func NewStreamFilter() *StreamFilter {
	return &StreamFilter{}
}

// Write consumes the next chunk and returns the visible text and thinking
// text it settles. Thinking text is released once its span is closed.
func (f *StreamFilter) Write(chunk string) (text, thinking string) {
	f.tail += chunk
	n := settledPrefix(f.tail)
	if n == 0 {
		return "", ""
	}
	head := f.tail[:n]
	f.tail = f.tail[n:]
	return f.visible(stripThinking(head)), spanText(head)
}

// Flush returns what the filter still holds once the stream has ended. An
// opener that was never closed is a stray marker, not a span, so the text
// after it is visible.
func (f *StreamFilter) Flush() (text, thinking string) {
	rest := f.tail
	f.tail = ""
	return f.visible(stripThinking(rest)), spanText(rest)
}

func (f *StreamFilter) visible(s string) string {
	if !f.started {
		s = strings.TrimLeft(s, " \t\r\n")
		if s != "" {
			f.started = true
		}
	}
	return s
}

// spanText joins the inner text of the spans the first stripping pass
// removes.
func spanText(s string) string {
	var b strings.Builder
	for _, m := range thinkSpan.FindAllStringSubmatch(s, -1) {
		b.WriteString(thinkMarker.ReplaceAllString(m[1], ""))
	}
	return b.String()
}

// settledPrefix returns the length of the longest prefix of s, ending at s
// or before a '<', that is settled.
func settledPrefix(s string) int {
	if settled(s) {
		return len(s)
	}
	for i := strings.LastIndexByte(s, '<'); i > 0; i = strings.LastIndexByte(s[:i], '<') {
		if settled(s[:i]) {
			return i
		}
	}
	return 0
}

// settled reports whether stripThinking(s+t) == stripThinking(s)+stripThinking(t)
// for every t. It replays the passes of stripThinking on s: no pass may
// leave an opener after its last span, and no intermediate text may end in
// a partial marker.
func settled(s string) bool {
	for {
		if partialMarker(s) {
			return false
		}
		if !strings.Contains(s, openMarker) && !strings.Contains(s, closeMarker) {
			return true
		}
		end := 0
		if spans := thinkSpan.FindAllStringIndex(s, -1); len(spans) > 0 {
			end = spans[len(spans)-1][1]
		}
		if strings.Contains(s[end:], openMarker) {
			return false
		}
		s = thinkSpan.ReplaceAllString(s, "")
		if partialMarker(s) {
			return false
		}
		s = thinkMarker.ReplaceAllString(s, "")
	}
}

func partialMarker(s string) bool {
	return partialSuffix(s, openMarker) > 0 || partialSuffix(s, closeMarker) > 0
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of marker.
func partialSuffix(s, marker string) int {
	for n := min(len(s), len(marker)-1); n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}

// FilterStream returns a stream whose text deltas have thinking spans
// removed. With [WithKeepReasoning] the removed text is emitted as
// [agent.TextReasoningContent]. Updates already read from rs are not
// filtered.
func FilterStream(ctx context.Context, s *Sanitizer, rs *agent.ResponseStream) *agent.ResponseStream {
	if s == nil {
		s = std
	}
	f := NewStreamFilter()
	var last agent.ResponseUpdate

	step := func(u agent.ResponseUpdate) []agent.ResponseUpdate {
		last = u
		out := make(agent.Contents, 0, len(u.Contents))
		for _, c := range u.Contents {
			tc, ok := c.(*agent.TextContent)
			if !ok {
				out = append(out, c)
				continue
			}
			text, thinking := f.Write(tc.Text)
			if thinking != "" && s.keepReasoning {
				out = append(out, &agent.TextReasoningContent{Text: thinking})
			}
			if text != "" {
				out = append(out, &agent.TextContent{Text: text})
			}
		}
		if len(out) == 0 && u.Usage.TotalTokens == 0 {
			return nil
		}
		u.Contents = out
		return []agent.ResponseUpdate{u}
	}

	flush := func() []agent.ResponseUpdate {
		rest, thinking := f.Flush()
		var contents agent.Contents
		if thinking != "" && s.keepReasoning {
			contents = append(contents, &agent.TextReasoningContent{Text: thinking})
		}
		if rest != "" {
			contents = append(contents, &agent.TextContent{Text: rest})
		}
		if len(contents) == 0 {
			return nil
		}
		return []agent.ResponseUpdate{{
			Role:       agent.RoleAssistant,
			AgentID:    last.AgentID,
			ResponseID: last.ResponseID,
			Contents:   contents,
		}}
	}

	return rs.Pipe(ctx, step, flush)
}
