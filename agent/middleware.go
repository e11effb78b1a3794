// Copyright (c) Microsoft. All rights reserved.

package agent

import (
	"context"
	"encoding/json"
)

// Handler processes an agent run.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Request carries the inputs for an agent run through the middleware pipeline.
type Request struct {
	Messages []Message
	Session  *Session
	Options  *ChatOptions
}

// AgentMiddleware wraps a [Handler]. Call next to continue the chain, or
// return early to short-circuit.
type AgentMiddleware func(next Handler) Handler

// ChatHandler processes a single chat request.
type ChatHandler func(ctx context.Context, messages []Message, opts *ChatOptions) (*ChatResponse, error)

// ChatMiddleware wraps a [ChatHandler]. Response post-processors such as the
// sanitizer are chat middleware.
type ChatMiddleware func(next ChatHandler) ChatHandler

// FunctionHandler invokes a tool.
type FunctionHandler func(ctx context.Context, tool Tool, args json.RawMessage) (any, error)

// FunctionMiddleware wraps a [FunctionHandler].
type FunctionMiddleware func(next FunctionHandler) FunctionHandler

// ChainChatMiddleware applies middleware in order (first in list = outermost).
func ChainChatMiddleware(handler ChatHandler, mws ...ChatMiddleware) ChatHandler {
	return chainChatMiddleware(handler, mws...)
}

func chainAgentMiddleware(handler Handler, mws ...AgentMiddleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}

func chainChatMiddleware(handler ChatHandler, mws ...ChatMiddleware) ChatHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}

func chainFunctionMiddleware(handler FunctionHandler, mws ...FunctionMiddleware) FunctionHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}
