// Copyright (c) Microsoft. All rights reserved.

package sanitize

import "strings"

// CodeHint is the fence label the downstream code parser looks for.
const CodeHint = "py"

// fence describes a line that starts a fenced block marker.
type fence struct {
	indent string
	ticks  int
	hint   string
}

// parseFence reports whether line is a backtick fence and splits it into
// indentation, backtick run and trimmed info string.
func parseFence(line string) (fence, bool) {
	rest := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(rest)]
	n := 0
	for n < len(rest) && rest[n] == '`' {
		n++
	}
	if n < 3 {
		return fence{}, false
	}
	hint := strings.TrimSpace(rest[n:])
	if strings.Contains(hint, "`") {
		// Inline code such as ```a``` is not a fence.
		return fence{}, false
	}
	return fence{indent: indent, ticks: n, hint: hint}, true
}

// normalizeFences relabels openers whose hint is empty or "python" as
// "```py" and strips trailing whitespace from closers. The pass tracks
// whether a block is open, so a bare closer is never taken for an opener.
func normalizeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	openTicks := 0
	for i, line := range lines {
		f, ok := parseFence(line)
		if !ok {
			continue
		}
		ticks := strings.Repeat("`", f.ticks)
		if openTicks == 0 {
			if f.hint == "" || f.hint == "python" {
				lines[i] = f.indent + ticks + CodeHint
			}
			openTicks = f.ticks
			continue
		}
		if f.hint == "" && f.ticks >= openTicks {
			lines[i] = f.indent + ticks
			openTicks = 0
		}
	}
	return strings.Join(lines, "\n")
}

// ExtractCode returns the bodies of the closed "```py" blocks in text, in
// order. Run text through [Clean] first to normalize the fence labels.
func ExtractCode(text string) []string {
	var (
		blocks    []string
		body      []string
		openTicks int
		capture   bool
	)
	for _, line := range strings.Split(text, "\n") {
		f, isFence := parseFence(line)
		switch {
		case openTicks == 0 && isFence:
			openTicks = f.ticks
			capture = f.hint == CodeHint
			body = body[:0]
		case openTicks > 0 && isFence && f.hint == "" && f.ticks >= openTicks:
			if capture {
				blocks = append(blocks, strings.Join(body, "\n"))
			}
			openTicks = 0
			capture = false
		case openTicks > 0 && capture:
			body = append(body, line)
		}
	}
	return blocks
}
