// Copyright (c) Microsoft. All rights reserved.

package agent

// ToolChoice controls how the model selects tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// ChatOptions configures a single chat completion request.
// Pointer fields use nil for "unset" (provider default).
type ChatOptions struct {
	ModelID      string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	Stop         []string
	Seed         *int
	Tools        []Tool
	ToolChoice   ToolChoice
	Instructions string

	// Extra holds provider-specific options, e.g. Ollama's "options" object
	// carrying num_ctx.
	Extra map[string]any
}

// Float returns a pointer to v, for the optional ChatOptions fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for the optional ChatOptions fields.
func Int(v int) *int { return &v }

// MergeChatOptions produces a new ChatOptions by overlaying override onto
// base. Unset fields in override keep the base value. Tools are merged by
// name (override wins), Extra keys are merged, Instructions are concatenated.
func MergeChatOptions(base, override *ChatOptions) *ChatOptions {
	if base == nil {
		if override == nil {
			return &ChatOptions{}
		}
		cp := *override
		return &cp
	}
	if override == nil {
		cp := *base
		return &cp
	}

	merged := *base

	if override.ModelID != "" {
		merged.ModelID = override.ModelID
	}
	if override.Temperature != nil {
		merged.Temperature = override.Temperature
	}
	if override.TopP != nil {
		merged.TopP = override.TopP
	}
	if override.MaxTokens != nil {
		merged.MaxTokens = override.MaxTokens
	}
	if len(override.Stop) > 0 {
		merged.Stop = override.Stop
	}
	if override.Seed != nil {
		merged.Seed = override.Seed
	}
	if override.ToolChoice != "" {
		merged.ToolChoice = override.ToolChoice
	}

	if override.Instructions != "" {
		if merged.Instructions != "" {
			merged.Instructions += "\n" + override.Instructions
		} else {
			merged.Instructions = override.Instructions
		}
	}

	if len(override.Tools) > 0 {
		merged.Tools = mergeTools(merged.Tools, override.Tools)
	}

	if len(override.Extra) > 0 {
		extra := make(map[string]any, len(merged.Extra)+len(override.Extra))
		for k, v := range merged.Extra {
			extra[k] = v
		}
		for k, v := range override.Extra {
			extra[k] = v
		}
		merged.Extra = extra
	}

	return &merged
}

// mergeTools keeps base order, replaces same-named tools with the override
// and appends new ones.
func mergeTools(base, override []Tool) []Tool {
	byName := make(map[string]Tool, len(override))
	for _, t := range override {
		byName[t.Name()] = t
	}
	tools := make([]Tool, 0, len(base)+len(override))
	seen := make(map[string]bool, len(base)+len(override))
	for _, t := range base {
		if o, ok := byName[t.Name()]; ok {
			t = o
		}
		tools = append(tools, t)
		seen[t.Name()] = true
	}
	for _, t := range override {
		if !seen[t.Name()] {
			tools = append(tools, t)
			seen[t.Name()] = true
		}
	}
	return tools
}
