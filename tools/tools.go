// Copyright (c) Microsoft. All rights reserved.

// Package tools provides the tools the assistant can call: a small base set
// that is always registered and the custom demo set.
package tools

import (
	"fmt"
	"slices"

	"github.com/local-agents/ollama-agent/agent"
)

// Set names a group of tools.
type Set string

const (
	// SetBase holds get_time and calculator.
	SetBase Set = "base"
	// SetCustom holds weather_checker, text_analyzer and url_shortener.
	SetCustom Set = "custom"
)

// Sets lists every known set in registration order.
var Sets = []Set{SetBase, SetCustom}

// ParseSet validates a set name.
func ParseSet(s string) (Set, error) {
	set := Set(s)
	if !slices.Contains(Sets, set) {
		return "", fmt.Errorf("unknown tool set %q (valid: %v)", s, Sets)
	}
	return set, nil
}

// Tools returns fresh instances of the tools in set.
func (s Set) Tools() []agent.Tool {
	switch s {
	case SetBase:
		return []agent.Tool{TimeTool(), CalculatorTool()}
	case SetCustom:
		return []agent.Tool{WeatherTool(), TextAnalyzerTool(), URLShortenerTool()}
	default:
		return nil
	}
}

// Register adds the tools of every set to reg. Nothing is registered when a
// set is unknown or a name collides.
func Register(reg *agent.Registry, sets ...Set) error {
	var all []agent.Tool
	for _, s := range sets {
		if _, err := ParseSet(string(s)); err != nil {
			return err
		}
		all = append(all, s.Tools()...)
	}
	return reg.Register(all...)
}
