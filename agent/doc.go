// Copyright (c) Microsoft. All rights reserved.

// Package agent is the small agent runtime the ollama-agent commands are
// built on. It composes a [ChatClient] with tools, a function-calling loop,
// middleware pipelines and sessions.
//
// # Quick Start
//
//	client := openai.New("dummy_key",
//	    openai.WithBaseURL("http://localhost:11434/v1"),
//	    openai.WithModel("qwen3:latest"),
//	)
//
//	a := agent.NewAgent(client,
//	    agent.WithName("assistant"),
//	    agent.WithTools(registry.Tools()...),
//	    agent.WithChatMiddleware(sanitize.Middleware(sanitize.New())),
//	)
//
//	resp, err := a.Run(ctx, []agent.Message{agent.NewUserMessage("What is 2+2?")})
//
// # Middleware
//
// Three levels are available. Agent middleware wraps a whole [Agent.Run];
// chat middleware wraps every model round trip, including the ones made by
// the tool loop; function middleware wraps each tool invocation.
//
// # Tools
//
// Tools are discovered through an explicit [Registry] rather than by
// inspecting values at runtime:
//
//	reg := agent.NewRegistry()
//	_ = reg.Register(agent.NewTypedTool("add", "Adds two numbers", addFn))
//	a := agent.NewAgent(client, agent.WithTools(reg.Tools()...))
package agent
