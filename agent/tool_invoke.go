// Copyright (c) Microsoft. All rights reserved.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// InvocationConfig controls the tool-calling loop.
type InvocationConfig struct {
	// MaxIterations is the maximum number of model round trips. Default: 40.
	MaxIterations int

	// MaxConsecutiveErrors aborts the run after this many tool failures in a
	// row. Default: 3.
	MaxConsecutiveErrors int

	// TerminateOnUnknown aborts if the model calls a tool that does not exist.
	TerminateOnUnknown bool

	// IncludeDetailedErrors sends the full error text back to the model.
	// Otherwise only the message of a [ToolError] is sent, and a generic
	// text for any other error.
	IncludeDetailedErrors bool
}

// DefaultInvocationConfig returns the default configuration.
func DefaultInvocationConfig() InvocationConfig {
	return InvocationConfig{
		MaxIterations:        40,
		MaxConsecutiveErrors: 3,
	}
}

func (c InvocationConfig) withDefaults() InvocationConfig {
	def := DefaultInvocationConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	return c
}

// toolLoop alternates model calls and tool calls for one run.
type toolLoop struct {
	client  ChatClient
	opts    *ChatOptions
	config  InvocationConfig
	invoke  FunctionHandler
	byName  map[string]Tool
	usage   UsageDetails
	failing int
}

// invokeFunctions calls the model, runs any requested tools, feeds the
// results back and repeats until the model answers without tool calls.
// Usage is accumulated across all round trips.
func invokeFunctions(
	ctx context.Context,
	client ChatClient,
	messages []Message,
	opts *ChatOptions,
	config InvocationConfig,
	fnMiddleware []FunctionMiddleware,
) (*ChatResponse, error) {
	l := &toolLoop{
		client: client,
		opts:   opts,
		config: config.withDefaults(),
		invoke: chainFunctionMiddleware(func(ctx context.Context, t Tool, args json.RawMessage) (any, error) {
			return t.Invoke(ctx, args)
		}, fnMiddleware...),
		byName: make(map[string]Tool, len(opts.Tools)),
	}
	for _, t := range opts.Tools {
		l.byName[t.Name()] = t
	}
	return l.run(ctx, messages)
}

func (l *toolLoop) run(ctx context.Context, messages []Message) (*ChatResponse, error) {
	for range l.config.MaxIterations {
		resp, err := l.client.Response(ctx, messages, l.opts)
		if err != nil {
			return nil, err
		}
		l.usage = l.usage.Add(resp.Usage)

		calls := functionCalls(resp)
		if len(calls) == 0 {
			resp.Usage = l.usage
			return resp, nil
		}

		messages = append(messages, resp.Messages...)
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			msg, err := l.call(ctx, call)
			if err != nil {
				return nil, err
			}
			messages = append(messages, msg)
		}
	}
	return nil, fmt.Errorf("%w: max iterations reached (%d)", ErrExecution, l.config.MaxIterations)
}

// call runs one requested tool and returns the tool message for the model.
// An error is returned only when the run must stop.
func (l *toolLoop) call(ctx context.Context, call *FunctionCallContent) (Message, error) {
	tool, ok := l.byName[call.Name]
	if !ok {
		if l.config.TerminateOnUnknown {
			return Message{}, fmt.Errorf("%w: unknown tool %q", ErrToolExecution, call.Name)
		}
		slog.WarnContext(ctx, "unknown tool called", "tool", call.Name)
		if err := l.fail(nil); err != nil {
			return Message{}, err
		}
		return NewToolMessage(call.CallID, "error: unknown tool "+call.Name), nil
	}

	slog.DebugContext(ctx, "invoking tool", "tool", call.Name, "call_id", call.CallID)
	result, err := l.invoke(ctx, tool, json.RawMessage(call.Arguments))
	if err != nil {
		slog.WarnContext(ctx, "tool invocation error",
			"tool", call.Name,
			"error", err,
			"consecutive_errors", l.failing+1,
		)
		if err := l.fail(err); err != nil {
			return Message{}, err
		}
		return NewToolMessage(call.CallID, l.errorText(err)), nil
	}

	l.failing = 0
	return NewToolMessage(call.CallID, result), nil
}

func (l *toolLoop) fail(cause error) error {
	l.failing++
	if l.failing < l.config.MaxConsecutiveErrors {
		return nil
	}
	if cause == nil {
		return fmt.Errorf("%w: max consecutive errors reached (%d)", ErrToolExecution, l.failing)
	}
	return fmt.Errorf("%w: max consecutive errors reached (%d): %w", ErrToolExecution, l.failing, cause)
}

func (l *toolLoop) errorText(err error) string {
	if l.config.IncludeDetailedErrors {
		return err.Error()
	}
	var te *ToolError
	if errors.As(err, &te) && te.Message != "" {
		return "error: " + te.Message
	}
	return "error invoking tool"
}

func functionCalls(resp *ChatResponse) []*FunctionCallContent {
	var calls []*FunctionCallContent
	for _, msg := range resp.Messages {
		for _, c := range msg.Contents {
			if fc, ok := c.(*FunctionCallContent); ok {
				calls = append(calls, fc)
			}
		}
	}
	return calls
}
