// Copyright (c) Microsoft. All rights reserved.

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Agent is a conversational agent backed by a [ChatClient]. It owns the
// default tool set, the middleware pipelines and the session store factory.
//
// Create one with [NewAgent] and functional options.
type Agent struct {
	id                  string
	name                string
	description         string
	client              ChatClient
	instructions        string
	tools               []Tool
	defaultOptions      *ChatOptions
	messageStoreFactory func(sessionID string) MessageStore
	agentMiddleware     []AgentMiddleware
	chatMiddleware      []ChatMiddleware
	functionMiddleware  []FunctionMiddleware
	invocationConfig    InvocationConfig
}

// Option configures an [Agent] via [NewAgent].
type Option func(*Agent)

// WithName sets the agent's display name.
func WithName(name string) Option {
	return func(a *Agent) { a.name = name }
}

// WithDescription sets the agent's description.
func WithDescription(desc string) Option {
	return func(a *Agent) { a.description = desc }
}

// WithInstructions sets the system instructions for the agent.
func WithInstructions(instructions string) Option {
	return func(a *Agent) { a.instructions = instructions }
}

// WithTools adds tools to the agent's default tool set.
func WithTools(tools ...Tool) Option {
	return func(a *Agent) { a.tools = append(a.tools, tools...) }
}

// WithDefaultOptions sets default [ChatOptions] for all requests.
func WithDefaultOptions(opts *ChatOptions) Option {
	return func(a *Agent) { a.defaultOptions = opts }
}

// WithMessageStoreFactory sets the factory used by [Agent.NewSession].
// The factory receives the new session's ID.
func WithMessageStoreFactory(f func(sessionID string) MessageStore) Option {
	return func(a *Agent) { a.messageStoreFactory = f }
}

// WithAgentMiddleware adds [AgentMiddleware] to the agent pipeline.
func WithAgentMiddleware(mws ...AgentMiddleware) Option {
	return func(a *Agent) { a.agentMiddleware = append(a.agentMiddleware, mws...) }
}

// WithChatMiddleware adds [ChatMiddleware] around every model call the agent
// makes, including each round trip of the tool loop.
func WithChatMiddleware(mws ...ChatMiddleware) Option {
	return func(a *Agent) { a.chatMiddleware = append(a.chatMiddleware, mws...) }
}

// WithFunctionMiddleware adds [FunctionMiddleware] to the tool invocation pipeline.
func WithFunctionMiddleware(mws ...FunctionMiddleware) Option {
	return func(a *Agent) { a.functionMiddleware = append(a.functionMiddleware, mws...) }
}

// WithInvocationConfig overrides the default [InvocationConfig].
func WithInvocationConfig(cfg InvocationConfig) Option {
	return func(a *Agent) { a.invocationConfig = cfg }
}

// NewAgent creates an Agent with the given [ChatClient] and options.
func NewAgent(client ChatClient, opts ...Option) *Agent {
	a := &Agent{
		id:               uuid.NewString(),
		client:           client,
		invocationConfig: DefaultInvocationConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if len(a.chatMiddleware) > 0 {
		a.client = &middlewareClient{
			ChatClient: client,
			handler:    chainChatMiddleware(client.Response, a.chatMiddleware...),
		}
	}
	return a
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.description }

// Tools returns the agent's default tool set.
func (a *Agent) Tools() []Tool {
	out := make([]Tool, len(a.tools))
	copy(out, a.tools)
	return out
}

// RunOption configures a single [Agent.Run] or [Agent.RunStream] call.
type RunOption func(*runConfig)

type runConfig struct {
	session *Session
	tools   []Tool
	options *ChatOptions
}

// WithSession attaches a [Session] for multi-turn conversation.
func WithSession(s *Session) RunOption {
	return func(c *runConfig) { c.session = s }
}

// WithRunTools provides per-call tools, merged with the agent defaults.
func WithRunTools(tools ...Tool) RunOption {
	return func(c *runConfig) { c.tools = tools }
}

// WithRunOptions provides per-call [ChatOptions] overrides.
func WithRunOptions(opts *ChatOptions) RunOption {
	return func(c *runConfig) { c.options = opts }
}

// Run sends messages to the agent and returns a complete response.
func (a *Agent) Run(ctx context.Context, messages []Message, opts ...RunOption) (*Response, error) {
	cfg := buildRunConfig(opts)
	wrapped := chainAgentMiddleware(a.buildHandler(cfg), a.agentMiddleware...)

	return wrapped(ctx, &Request{
		Messages: messages,
		Session:  cfg.session,
		Options:  cfg.options,
	})
}

// RunStream sends messages to the agent and returns a streaming response.
// Tools are not invoked on the streaming path; the session is updated once
// the caller drains the stream through [ResponseStream.FinalResponse].
func (a *Agent) RunStream(ctx context.Context, messages []Message, opts ...RunOption) (*ResponseStream, error) {
	cfg := buildRunConfig(opts)

	chatOpts := a.prepareChatOptions(cfg)
	allMessages, err := a.prepareMessages(ctx, messages, cfg, chatOpts)
	if err != nil {
		return nil, err
	}

	chatStream, err := a.client.StreamResponse(ctx, allMessages, chatOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}

	updates := MapStream(ctx, chatStream, func(u ChatResponseUpdate) ResponseUpdate {
		return ResponseUpdate{
			Contents:   u.Contents,
			Role:       u.Role,
			AgentID:    a.id,
			ResponseID: u.ResponseID,
			Usage:      u.Usage,
		}
	})

	rs := NewResponseStream(updates)
	if cfg.session != nil {
		rs.onFinal = func(ctx context.Context, resp *Response) {
			if err := a.updateSession(ctx, cfg.session, messages, resp.Messages); err != nil {
				slog.WarnContext(ctx, "failed to update session", "error", err)
			}
		}
	}
	return rs, nil
}

// NewSession creates a new [Session] backed by the agent's store factory,
// or by an [InMemoryStore] when none is configured.
func (a *Agent) NewSession() *Session {
	return a.ResumeSession(uuid.NewString())
}

// ResumeSession returns a session with the given ID. With a persistent store
// factory this reattaches to the history stored under that ID.
func (a *Agent) ResumeSession(id string) *Session {
	var store MessageStore
	if a.messageStoreFactory != nil {
		store = a.messageStoreFactory(id)
	} else {
		store = NewInMemoryStore()
	}
	return NewSession(WithSessionID(id), WithSessionStore(store))
}

func buildRunConfig(opts []RunOption) *runConfig {
	cfg := &runConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (a *Agent) prepareChatOptions(cfg *runConfig) *ChatOptions {
	opts := MergeChatOptions(a.defaultOptions, cfg.options)

	allTools := make([]Tool, 0, len(a.tools)+len(cfg.tools))
	allTools = append(allTools, a.tools...)
	allTools = append(allTools, cfg.tools...)
	if len(allTools) > 0 {
		opts.Tools = allTools
	}

	if a.instructions != "" {
		if opts.Instructions != "" {
			opts.Instructions = a.instructions + "\n" + opts.Instructions
		} else {
			opts.Instructions = a.instructions
		}
	}

	return opts
}

func (a *Agent) prepareMessages(ctx context.Context, messages []Message, cfg *runConfig, opts *ChatOptions) ([]Message, error) {
	var allMessages []Message

	if cfg.session != nil {
		if store := cfg.session.Store(); store != nil {
			history, err := store.ListMessages(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: load history: %w", ErrSession, err)
			}
			allMessages = append(allMessages, history...)
		}
	}

	allMessages = append(allMessages, messages...)
	return PrependInstructions(allMessages, opts.Instructions), nil
}

func (a *Agent) buildHandler(cfg *runConfig) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		chatOpts := a.prepareChatOptions(cfg)
		allMessages, err := a.prepareMessages(ctx, req.Messages, cfg, chatOpts)
		if err != nil {
			return nil, err
		}

		slog.DebugContext(ctx, "agent run",
			"agent_id", a.id,
			"agent_name", a.name,
			"message_count", len(allMessages),
			"tool_count", len(chatOpts.Tools),
		)

		var chatResp *ChatResponse
		if len(chatOpts.Tools) > 0 {
			chatResp, err = invokeFunctions(ctx, a.client, allMessages, chatOpts, a.invocationConfig, a.functionMiddleware)
		} else {
			chatResp, err = a.client.Response(ctx, allMessages, chatOpts)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExecution, err)
		}

		if cfg.session != nil {
			if err := a.updateSession(ctx, cfg.session, req.Messages, chatResp.Messages); err != nil {
				slog.WarnContext(ctx, "failed to update session", "error", err)
			}
		}

		return &Response{
			Messages:     chatResp.Messages,
			ResponseID:   chatResp.ResponseID,
			AgentID:      a.id,
			ModelID:      chatResp.ModelID,
			FinishReason: chatResp.FinishReason,
			Usage:        chatResp.Usage,
			Raw:          chatResp.Raw,
		}, nil
	}
}

func (a *Agent) updateSession(ctx context.Context, session *Session, request, response []Message) error {
	store := session.Store()
	if store == nil {
		if a.messageStoreFactory != nil {
			store = a.messageStoreFactory(session.ID())
		} else {
			store = NewInMemoryStore()
		}
		session.SetStore(store)
	}

	if err := store.AddMessages(ctx, request); err != nil {
		return err
	}
	return store.AddMessages(ctx, response)
}

// middlewareClient routes non-streaming calls through the agent's chat
// middleware chain.
type middlewareClient struct {
	ChatClient
	handler ChatHandler
}

func (c *middlewareClient) Response(ctx context.Context, messages []Message, opts *ChatOptions) (*ChatResponse, error) {
	return c.handler(ctx, messages, opts)
}
