// Copyright (c) Microsoft. All rights reserved.

package ui

import (
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
)

func TestLine(t *testing.T) {
	got := ansi.Strip(Line(StatusOK, "ollama reachable at %s", "http://localhost:11434"))
	assert.Equal(t, "✓ ollama reachable at http://localhost:11434", got)
	assert.Equal(t, "✗ down", ansi.Strip(Line(StatusFail, "down")))
}

func TestKeyValues(t *testing.T) {
	got := ansi.Strip(KeyValues([][2]string{{"model", "qwen3:latest"}, {"endpoint", "x"}}))
	assert.Equal(t, "model:    qwen3:latest\nendpoint: x", got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel…", Truncate("hello", 4))
	assert.Equal(t, "hello", Truncate("hello", 0))
}
