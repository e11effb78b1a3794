// Copyright (c) Microsoft. All rights reserved.

package agent_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/local-agents/ollama-agent/agent"
)

func TestChainMiddleware_ExecutionOrder(t *testing.T) {
	var order []string

	mw := func(name string) agent.AgentMiddleware {
		return func(next agent.Handler) agent.Handler {
			return func(ctx context.Context, req *agent.Request) (*agent.Response, error) {
				order = append(order, name+"-before")
				resp, err := next(ctx, req)
				order = append(order, name+"-after")
				return resp, err
			}
		}
	}

	a := agent.NewAgent(reply("ok"), agent.WithAgentMiddleware(mw("mw1"), mw("mw2")))
	if _, err := a.Run(context.Background(), []agent.Message{agent.NewUserMessage("hi")}); err != nil {
		t.Fatalf("run: %v", err)
	}

	// First middleware is outermost.
	expected := []string{"mw1-before", "mw2-before", "mw2-after", "mw1-after"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Errorf("order = %v, want %v", order, expected)
	}
}

func TestChatMiddleware_RewritesEveryRoundTrip(t *testing.T) {
	tool := agent.NewTool("noop", "Does nothing", nil,
		func(ctx context.Context, args json.RawMessage) (any, error) { return "done", nil },
	)

	calls := 0
	client := &mockClient{
		responseFn: func(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
			calls++
			if calls == 1 {
				return &agent.ChatResponse{Messages: []agent.Message{{
					Role: agent.RoleAssistant,
					Contents: agent.Contents{
						&agent.TextContent{Text: "calling"},
						&agent.FunctionCallContent{CallID: "c1", Name: "noop", Arguments: `{}`},
					},
				}}}, nil
			}
			return &agent.ChatResponse{Messages: []agent.Message{agent.NewAssistantMessage("final")}}, nil
		},
	}

	seen := 0
	upper := agent.ChatMiddleware(func(next agent.ChatHandler) agent.ChatHandler {
		return func(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
			resp, err := next(ctx, msgs, opts)
			if err != nil {
				return nil, err
			}
			seen++
			for _, m := range resp.Messages {
				for _, c := range m.Contents {
					if tc, ok := c.(*agent.TextContent); ok {
						tc.Text = strings.ToUpper(tc.Text)
					}
				}
			}
			return resp, nil
		}
	})

	a := agent.NewAgent(client, agent.WithTools(tool), agent.WithChatMiddleware(upper))
	resp, err := a.Run(context.Background(), []agent.Message{agent.NewUserMessage("go")})
	if err != nil {
		t.Fatal(err)
	}
	if seen != 2 {
		t.Errorf("middleware saw %d responses, want 2", seen)
	}
	if resp.Text() != "FINAL" {
		t.Errorf("Text = %q, want FINAL", resp.Text())
	}
}

func TestChainChatMiddleware_Order(t *testing.T) {
	var order []string
	tag := func(name string) agent.ChatMiddleware {
		return func(next agent.ChatHandler) agent.ChatHandler {
			return func(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
				order = append(order, name)
				return next(ctx, msgs, opts)
			}
		}
	}
	base := func(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
		order = append(order, "client")
		return &agent.ChatResponse{}, nil
	}

	h := agent.ChainChatMiddleware(base, tag("a"), tag("b"))
	if _, err := h(context.Background(), nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, ","); got != "a,b,client" {
		t.Errorf("order = %s, want a,b,client", got)
	}
}

func TestFunctionMiddleware(t *testing.T) {
	var interceptedToolName string

	fnMw := agent.FunctionMiddleware(func(next agent.FunctionHandler) agent.FunctionHandler {
		return func(ctx context.Context, tool agent.Tool, args json.RawMessage) (any, error) {
			interceptedToolName = tool.Name()
			return next(ctx, tool, args)
		}
	})

	tool := agent.NewTool("echo", "Echoes input", json.RawMessage(`{"type":"object"}`),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return "echoed", nil
		},
	)

	callCount := 0
	client := &mockClient{
		responseFn: func(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
			callCount++
			if callCount == 1 {
				return &agent.ChatResponse{
					Messages: []agent.Message{{
						Role: agent.RoleAssistant,
						Contents: agent.Contents{
							&agent.FunctionCallContent{CallID: "c1", Name: "echo", Arguments: `{}`},
						},
					}},
				}, nil
			}
			return &agent.ChatResponse{
				Messages: []agent.Message{agent.NewAssistantMessage("done")},
			}, nil
		},
	}

	a := agent.NewAgent(client,
		agent.WithTools(tool),
		agent.WithFunctionMiddleware(fnMw),
	)

	if _, err := a.Run(context.Background(), []agent.Message{agent.NewUserMessage("test")}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if interceptedToolName != "echo" {
		t.Errorf("intercepted tool = %q, want echo", interceptedToolName)
	}
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	a := agent.NewAgent(reply("logged"), agent.WithAgentMiddleware(agent.LoggingMiddleware(nil)))
	resp, err := a.Run(context.Background(), []agent.Message{agent.NewUserMessage("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text() != "logged" {
		t.Errorf("Text = %q", resp.Text())
	}
}
