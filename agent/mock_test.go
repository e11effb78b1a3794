// Copyright (c) Microsoft. All rights reserved.

package agent_test

import (
	"context"

	"github.com/local-agents/ollama-agent/agent"
)

// mockClient implements ChatClient for testing.
type mockClient struct {
	responseFn func(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error)
}

func (m *mockClient) Response(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.ChatResponse, error) {
	return m.responseFn(ctx, msgs, opts)
}

// StreamResponse emits every content item of the response as its own update.
func (m *mockClient) StreamResponse(ctx context.Context, msgs []agent.Message, opts *agent.ChatOptions) (*agent.Stream[agent.ChatResponseUpdate], error) {
	return agent.NewStream(ctx, func(ctx context.Context, ch chan<- agent.ChatResponseUpdate) error {
		resp, err := m.responseFn(ctx, msgs, opts)
		if err != nil {
			return err
		}
		for _, msg := range resp.Messages {
			for _, c := range msg.Contents {
				select {
				case ch <- agent.ChatResponseUpdate{Contents: agent.Contents{c}, Role: msg.Role, ResponseID: resp.ResponseID}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	}), nil
}

func reply(text string) *mockClient {
	return &mockClient{
		responseFn: func(context.Context, []agent.Message, *agent.ChatOptions) (*agent.ChatResponse, error) {
			return &agent.ChatResponse{Messages: []agent.Message{agent.NewAssistantMessage(text)}}, nil
		},
	}
}
