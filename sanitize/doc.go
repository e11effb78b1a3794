// Copyright (c) Microsoft. All rights reserved.

// Package sanitize cleans model output before it reaches a parser that
// expects fenced code blocks.
//
// Reasoning models such as Qwen3 wrap their chain of thought in
// <think>…</think> and label code fences inconsistently. [Clean] removes
// the thinking spans, collapses the blank lines they leave behind and
// relabels "```python" and bare "```" openers as "```py":
//
//	sanitize.Clean("<think>2+2…</think>\n\nThe answer is 4.")
//	// "The answer is 4."
//
// [Middleware] applies a [Sanitizer] to every response an agent receives,
// and [StreamFilter] removes thinking spans from streamed deltas.
package sanitize
