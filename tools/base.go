// Copyright (c) Microsoft. All rights reserved.

package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/local-agents/ollama-agent/agent"
)

// now is replaced in tests.
var now = time.Now

// TimeTool reports the current local time.
func TimeTool() agent.Tool {
	return agent.NewTool("get_time",
		"Get the current date and time.",
		json.RawMessage(`{"type":"object","properties":{}}`),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			t := now()
			return map[string]string{
				"time":     t.Format("3:04 PM"),
				"date":     t.Format("Monday, January 2, 2006"),
				"timezone": t.Location().String(),
				"iso8601":  t.Format(time.RFC3339),
			}, nil
		},
	)
}

type calculatorArgs struct {
	Expression string `json:"expression" jsonschema:"description=Arithmetic expression such as (2 + 3) * sqrt(16),required"`
}

// CalculatorTool evaluates arithmetic expressions.
func CalculatorTool() agent.Tool {
	return agent.NewTypedTool("calculator",
		"Evaluate an arithmetic expression. Supports + - * / %, parentheses and the functions "+
			"sqrt, abs, pow, min, max, floor, ceil, round, log, ln, factorial, plus the constants pi and e.",
		func(ctx context.Context, args calculatorArgs) (any, error) {
			v, err := Evaluate(args.Expression)
			if err != nil {
				return nil, &agent.ToolError{ToolName: "calculator", Message: err.Error(), Err: agent.ErrToolExecution}
			}
			return map[string]any{
				"expression": args.Expression,
				"result":     v,
			}, nil
		},
	)
}
