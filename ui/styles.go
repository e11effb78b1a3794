// Copyright (c) Microsoft. All rights reserved.

// Package ui holds the terminal styles shared by the command-line output:
// check reports, batch summaries and the interactive chat.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Success = lipgloss.Color("#8BC34A")
	Warning = lipgloss.Color("#FFC107")
	Failure = lipgloss.Color("#E53935")
	Info    = lipgloss.Color("#2196F3")
	Muted   = lipgloss.Color("#8A8F98")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(Info)

	SectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	FailureStyle = lipgloss.NewStyle().Foreground(Failure)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)

	PromptStyle = lipgloss.NewStyle().Bold(true).Foreground(Success)

	ReasoningStyle = lipgloss.NewStyle().Italic(true).Foreground(Muted)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 1)
)

// Status is the outcome shown in front of a report line.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
	StatusInfo
)

// Symbol returns the styled marker for s.
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return SuccessStyle.Render("✓")
	case StatusWarn:
		return WarningStyle.Render("!")
	case StatusFail:
		return FailureStyle.Render("✗")
	default:
		return MutedStyle.Render("•")
	}
}

// Line renders a single report line.
func Line(s Status, format string, args ...any) string {
	return s.Symbol() + " " + fmt.Sprintf(format, args...)
}

// KeyValues renders aligned "key: value" rows.
func KeyValues(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r[0]))
	}
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		key := r[0] + ":" + strings.Repeat(" ", width-lipgloss.Width(r[0])+1)
		b.WriteString(MutedStyle.Render(key))
		b.WriteString(r[1])
	}
	return b.String()
}

// Truncate shortens s to n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
