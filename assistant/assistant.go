// Copyright (c) Microsoft. All rights reserved.

// Package assistant assembles the agent used by every entry point: the chat
// client for the configured provider, the response sanitizer, the tool
// registry and the session store.
package assistant

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/config"
	"github.com/local-agents/ollama-agent/openai"
	"github.com/local-agents/ollama-agent/sanitize"
	"github.com/local-agents/ollama-agent/tools"
)

//go:embed instructions.md
var defaultInstructions string

//go:embed tool_prompt.md
var toolPrompt string

// Assistant is an [agent.Agent] whose replies are sanitized, together with
// the registry of its tools.
type Assistant struct {
	*agent.Agent

	registry  *agent.Registry
	sanitizer *sanitize.Sanitizer
	provider  string
	model     string
	endpoint  string
}

type options struct {
	client       agent.ChatClient
	httpClient   *http.Client
	credential   azcore.TokenCredential
	storeFactory func(sessionID string) agent.MessageStore
	toolSets     []tools.Set
	extraTools   []agent.Tool
}

// Option configures [New].
type Option func(*options)

// WithClient replaces the provider client built from the configuration.
func WithClient(c agent.ChatClient) Option {
	return func(o *options) { o.client = c }
}

// WithHTTPClient sets the HTTP client of the provider client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCredential sets the Entra credential used for Azure when no API key
// is configured. Without it the default Azure credential chain is used.
func WithCredential(cred azcore.TokenCredential) Option {
	return func(o *options) { o.credential = cred }
}

// WithMessageStoreFactory persists sessions, e.g. in SQLite. The factory
// is responsible for applying agent.history_limit. Without it sessions live
// in memory, bounded by that limit.
func WithMessageStoreFactory(f func(sessionID string) agent.MessageStore) Option {
	return func(o *options) { o.storeFactory = f }
}

// WithToolSets chooses the tool sets to register; no sets means no tools.
// The default is the base set, plus the custom set when the configuration
// enables it.
func WithToolSets(sets ...tools.Set) Option {
	return func(o *options) { o.toolSets = append([]tools.Set{}, sets...) }
}

// WithTools registers additional tools.
func WithTools(ts ...agent.Tool) Option {
	return func(o *options) { o.extraTools = append(o.extraTools, ts...) }
}

// New builds the assistant described by cfg.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", agent.ErrInitialization, err)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.toolSets == nil {
		o.toolSets = []tools.Set{tools.SetBase}
		if cfg.Agent.CustomTools {
			o.toolSets = append(o.toolSets, tools.SetCustom)
		}
	}

	if o.storeFactory == nil {
		limit := cfg.Agent.HistoryLimit
		o.storeFactory = func(string) agent.MessageStore {
			return agent.NewInMemoryStore(agent.WithMaxMessages(limit))
		}
	}

	reg, err := agent.NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := tools.Register(reg, o.toolSets...); err != nil {
		return nil, fmt.Errorf("%w: %w", agent.ErrInitialization, err)
	}
	if err := reg.Register(o.extraTools...); err != nil {
		return nil, fmt.Errorf("%w: %w", agent.ErrInitialization, err)
	}

	client := o.client
	if client == nil {
		client, err = newClient(cfg, o)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", agent.ErrInitialization, err)
		}
	}

	s := sanitize.New(
		sanitize.WithVerbose(cfg.Agent.Verbose),
		sanitize.WithKeepReasoning(cfg.Agent.KeepReasoning),
		sanitize.WithLogger(logger),
	)

	var chatMW []agent.ChatMiddleware
	if cfg.Agent.TextToolCalls {
		chatMW = append(chatMW, ToolCallTextMiddleware(logger))
	}
	chatMW = append(chatMW, sanitize.Middleware(s))

	invocation := agent.DefaultInvocationConfig()
	if cfg.Agent.MaxIterations > 0 {
		invocation.MaxIterations = cfg.Agent.MaxIterations
	}

	agentOpts := []agent.Option{
		agent.WithName(cfg.Agent.Name),
		agent.WithDescription("Local assistant backed by " + cfg.ModelID()),
		agent.WithInstructions(instructions(cfg, reg)),
		agent.WithTools(reg.Tools()...),
		agent.WithDefaultOptions(defaultChatOptions(cfg)),
		agent.WithChatMiddleware(chatMW...),
		agent.WithAgentMiddleware(agent.LoggingMiddleware(logger)),
		agent.WithFunctionMiddleware(ToolCallLoggingMiddleware(logger)),
		agent.WithInvocationConfig(invocation),
		agent.WithMessageStoreFactory(o.storeFactory),
	}

	logger.Debug("assistant ready",
		"provider", cfg.Model.Provider,
		"model", cfg.ModelID(),
		"tools", reg.Names())

	return &Assistant{
		Agent:     agent.NewAgent(client, agentOpts...),
		registry:  reg,
		sanitizer: s,
		provider:  cfg.Model.Provider,
		model:     cfg.ModelID(),
		endpoint:  cfg.ModelEndpoint(),
	}, nil
}

func newClient(cfg config.Config, o *options) (*openai.Client, error) {
	clientOpts := []openai.Option{
		openai.WithBaseURL(cfg.OpenAIBaseURL()),
		openai.WithModel(cfg.ModelID()),
		openai.WithMaxRetries(cfg.Model.MaxRetries),
		openai.WithTimeout(config.Duration(cfg.Model.Timeout, 0)),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, openai.WithHTTPClient(o.httpClient))
	}

	switch cfg.Model.Provider {
	case config.ProviderOllama:
		return openai.New(cfg.Model.APIKey, clientOpts...), nil
	case config.ProviderAzure:
		if key := cfg.Model.Azure.APIKey; key != "" {
			clientOpts = append(clientOpts, openai.WithHeaders(map[string]string{"api-key": key}))
			return openai.New(key, clientOpts...), nil
		}
		cred := o.credential
		if cred == nil {
			dac, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("azure credential: %w", err)
			}
			cred = dac
		}
		clientOpts = append(clientOpts, openai.WithAzureCredential(cred))
		return openai.New("", clientOpts...), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", cfg.Model.Provider)
}

func instructions(cfg config.Config, reg *agent.Registry) string {
	text := strings.TrimSpace(cfg.Agent.Instructions)
	if text == "" {
		text = strings.TrimSpace(defaultInstructions)
	}
	if cfg.Agent.TextToolCalls && reg.Len() > 0 {
		var b strings.Builder
		for _, t := range reg.Tools() {
			fmt.Fprintf(&b, "- %s: %s Parameters: %s\n", t.Name(), t.Description(), t.Parameters())
		}
		text += "\n\n" + strings.TrimSpace(strings.Replace(toolPrompt, "{{TOOLS}}", strings.TrimRight(b.String(), "\n"), 1))
	}
	return text
}

func defaultChatOptions(cfg config.Config) *agent.ChatOptions {
	opts := &agent.ChatOptions{
		ModelID:     cfg.ModelID(),
		Temperature: agent.Float(cfg.Model.Temperature),
	}
	if cfg.Model.Provider != config.ProviderOllama {
		return opts
	}
	extra := map[string]any{}
	if cfg.Model.NumCtx > 0 {
		extra[openai.ExtraOptions] = map[string]any{"num_ctx": cfg.Model.NumCtx}
	}
	if cfg.Model.KeepAlive != "" {
		extra[openai.ExtraKeepAlive] = cfg.Model.KeepAlive
	}
	if len(extra) > 0 {
		opts.Extra = extra
	}
	return opts
}

// Registry returns the registered tools.
func (a *Assistant) Registry() *agent.Registry { return a.registry }

// Sanitizer returns the sanitizer applied to replies.
func (a *Assistant) Sanitizer() *sanitize.Sanitizer { return a.sanitizer }

// Provider returns the configured provider name.
func (a *Assistant) Provider() string { return a.provider }

// Model returns the model ID requests are sent with.
func (a *Assistant) Model() string { return a.model }

// Endpoint returns the model endpoint.
func (a *Assistant) Endpoint() string { return a.endpoint }

// RunStream streams a reply with thinking spans removed as they arrive.
// Tools are not invoked on the streaming path.
func (a *Assistant) RunStream(ctx context.Context, messages []agent.Message, opts ...agent.RunOption) (*agent.ResponseStream, error) {
	rs, err := a.Agent.RunStream(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return sanitize.FilterStream(ctx, a.sanitizer, rs), nil
}

// Ask runs a single prompt and returns the sanitized text.
func (a *Assistant) Ask(ctx context.Context, prompt string, opts ...agent.RunOption) (string, error) {
	resp, err := a.Run(ctx, []agent.Message{agent.NewUserMessage(prompt)}, opts...)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("model returned an empty response")
	}
	return text, nil
}
