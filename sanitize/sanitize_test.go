// Copyright (c) Microsoft. All rights reserved.

package sanitize_test

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local-agents/ollama-agent/sanitize"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "leading thinking block",
			in:   "<think>Let me think about this problem...</think>\n\nThe answer is 4.",
			want: "The answer is 4.",
		},
		{
			name: "thinking between text and code",
			in:   "Here's the solution:\n<think>I need to calculate 2+2</think>\n\n```py\nresult = 2 + 2\nprint(result)\n```",
			want: "Here's the solution:\n\n```py\nresult = 2 + 2\nprint(result)\n```",
		},
		{
			name: "multi-line thinking",
			in:   "<think>\nThis is a multi-line\nthinking block\n</think>\n\nFinal answer: 42",
			want: "Final answer: 42",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "python fence with trailing spaces on closer",
			in:   "```python\nx=1\n```   ",
			want: "```py\nx=1\n```",
		},
		{
			name: "bare opener",
			in:   "Code:\n```\nprint(1)\n```",
			want: "Code:\n```py\nprint(1)\n```",
		},
		{
			name: "other language untouched",
			in:   "```bash\nls\n```",
			want: "```bash\nls\n```",
		},
		{
			name: "closer followed by text is not relabeled",
			in:   "```python\na = 1\n```  \nThen:\n```\nb = 2\n```",
			want: "```py\na = 1\n```\nThen:\n```py\nb = 2\n```",
		},
		{
			name: "multiple spans are removed independently",
			in:   "A<think>one</think>B<think>two</think>C",
			want: "ABC",
		},
		{
			name: "stray markers",
			in:   "</think>answer<think>",
			want: "answer",
		},
		{
			name: "marker rebuilt by removal",
			in:   "x<<think>think>y",
			want: "xy",
		},
		{
			name: "blank line runs with whitespace collapse",
			in:   "a\n  \n\t\n\nb",
			want: "a\n\nb",
		},
		{
			name: "only thinking",
			in:   "<think>nothing to say</think>",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitize.Clean(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, sanitize.Clean(got), "Clean must be idempotent")
		})
	}
}

func TestClean_PlainTextOnlyTrimmed(t *testing.T) {
	inputs := []string{
		"  The answer is 4.  ",
		"\n\nLine one\nLine two\n",
		"Use ```py\nx = 1\n``` here",
		"```py\nprint(1)\n```\nDone.",
		"a < b and c > d, 2 <= 3",
		"\t```bash\nls\n```\t",
	}
	for _, in := range inputs {
		assert.Equal(t, strings.TrimSpace(in), sanitize.Clean(in), "input %q", in)
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		"```\na\n```\n```\nb\n```",
		"text\n```\n\n\ncode\n```   \n\n\nmore<think>x",
		"<think>a<think>b</think>c</think>d",
		"   ```python   \nx\n   ```   \n",
		"````\nnested ``` inside\n````",
		"``` ```",
	}
	for _, in := range inputs {
		once := sanitize.Clean(in)
		assert.Equal(t, once, sanitize.Clean(once), "input %q", in)
	}
}

func TestSanitizer_VerboseDoesNotChangeResult(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := sanitize.New(sanitize.WithVerbose(true), sanitize.WithLogger(logger))

	in := "<think>hmm</think>\n\n```python\nprint('hi')\n```"
	assert.Equal(t, sanitize.Clean(in), s.Clean(in))
	assert.Contains(t, buf.String(), "sanitizing response")
	assert.Contains(t, buf.String(), "thinking_spans=1")

	buf.Reset()
	quiet := sanitize.New(sanitize.WithLogger(logger))
	quiet.Clean(in)
	assert.Empty(t, buf.String())
}

func TestSanitizer_ConcurrentUse(t *testing.T) {
	s := sanitize.New()
	in := "<think>a</think>\n\n```python\nx\n```"
	want := s.Clean(in)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, s.Clean(in))
		}()
	}
	wg.Wait()
}

func TestExtractThinking(t *testing.T) {
	got := sanitize.ExtractThinking("<think>\n first \n</think>x<think></think>y<think>second</think>")
	assert.Equal(t, []string{"first", "second"}, got)
	assert.Empty(t, sanitize.ExtractThinking("no thoughts"))
}

func TestExtractCode(t *testing.T) {
	text := sanitize.Clean("<think>plan</think>\nFirst:\n```python\na = 1\nb = 2\n```\nShell:\n```bash\nls\n```\nThen:\n```\nprint(a + b)\n```")

	blocks := sanitize.ExtractCode(text)
	require.Len(t, blocks, 2)
	assert.Equal(t, "a = 1\nb = 2", blocks[0])
	assert.Equal(t, "print(a + b)", blocks[1])
}

func TestExtractCode_UnclosedIgnored(t *testing.T) {
	assert.Empty(t, sanitize.ExtractCode("```py\nx = 1"))
	assert.Equal(t, []string{""}, sanitize.ExtractCode("```py\n```"))
}

func TestClean_LongInput(t *testing.T) {
	in := strings.Repeat("<think>"+strings.Repeat("x", 100)+"</think>ok\n\n\n", 1000)
	got := sanitize.Clean(in)
	assert.NotContains(t, got, "think>")
	assert.NotContains(t, got, "\n\n\n")
}
