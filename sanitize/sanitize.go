// Copyright (c) Microsoft. All rights reserved.

package sanitize

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const (
	openMarker  = "<think>"
	closeMarker = "</think>"
)

var (
	thinkSpan   = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	thinkMarker = regexp.MustCompile(`</?think>`)
	blankRun    = regexp.MustCompile(`\n\s*\n`)
)

// Sanitizer removes thinking spans and normalizes code fences. It holds no
// mutable state and is safe for concurrent use.
type Sanitizer struct {
	verbose       bool
	keepReasoning bool
	logger        *slog.Logger
}

// Option configures a [Sanitizer].
type Option func(*Sanitizer)

// WithVerbose logs the input and output of every call at info level.
// It never changes the result.
func WithVerbose(v bool) Option {
	return func(s *Sanitizer) { s.verbose = v }
}

// WithLogger sets the logger used for verbose output. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sanitizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeepReasoning makes [Middleware] keep the removed thinking text as
// reasoning content next to the cleaned answer instead of dropping it.
func WithKeepReasoning(v bool) Option {
	return func(s *Sanitizer) { s.keepReasoning = v }
}

// New returns a Sanitizer.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var std = New()

// Clean sanitizes text with the default [Sanitizer].
func Clean(text string) string {
	return std.Clean(text)
}

// Clean returns text with every <think>…</think> span and every stray
// marker removed, blank-line runs collapsed to one blank line, surrounding
// whitespace trimmed and code fence openers labeled "```py". Clean is
// idempotent.
func (s *Sanitizer) Clean(text string) string {
	if text == "" {
		return ""
	}
	if s.verbose {
		s.logger.Info("sanitizing response", "length", len(text), "thinking_spans", countSpans(text))
		s.logger.Debug("raw response", "text", text)
	}

	out := stripThinking(text)
	out = blankRun.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)
	out = normalizeFences(out)

	if s.verbose {
		s.logger.Info("sanitized response", "length", len(out), "removed", len(text)-len(out))
		s.logger.Debug("clean response", "text", out)
	}
	return out
}

// KeepsReasoning reports whether the sanitizer was built with
// [WithKeepReasoning].
func (s *Sanitizer) KeepsReasoning() bool { return s.keepReasoning }

// stripThinking deletes spans, then stray markers, until none are left.
// Deleting a marker can join its neighbours into a new one ("<<think>think>"),
// so a single pass is not enough for idempotence.
func stripThinking(text string) string {
	for strings.Contains(text, openMarker) || strings.Contains(text, closeMarker) {
		next := thinkSpan.ReplaceAllString(text, "")
		next = thinkMarker.ReplaceAllString(next, "")
		text = next
	}
	return text
}

func countSpans(text string) int {
	return len(thinkSpan.FindAllStringIndex(text, -1))
}

// ExtractThinking returns the trimmed inner text of every thinking span in
// order of appearance. Empty spans are skipped.
func ExtractThinking(text string) []string {
	var out []string
	for _, m := range thinkSpan.FindAllStringSubmatch(text, -1) {
		// Inner text may hold a nested opener; the span ends at the first closer.
		inner := strings.TrimSpace(thinkMarker.ReplaceAllString(m[1], ""))
		if inner != "" {
			out = append(out, inner)
		}
	}
	return out
}

// logContext is used by the middleware to attach request context to
// verbose logs.
func (s *Sanitizer) logContext(ctx context.Context, msg string, args ...any) {
	if s.verbose {
		s.logger.InfoContext(ctx, msg, args...)
	}
}
