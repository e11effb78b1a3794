// Copyright (c) Microsoft. All rights reserved.

package agent

import (
	"context"
	"sync"
)

// MessageStore persists conversation messages for a [Session].
type MessageStore interface {
	// ListMessages returns the stored history in order.
	ListMessages(ctx context.Context) ([]Message, error)

	// AddMessages appends messages to the store.
	AddMessages(ctx context.Context, msgs []Message) error

	// Serialize returns the store's state as a serializable map.
	Serialize() (map[string]any, error)
}

// TrimHistory returns at most the last limit messages. The window always
// opens on a user message so a tool result is never sent without the call
// that produced it, so it may be shorter than limit. When the last turn
// alone is longer than limit, that turn is kept whole. A limit of zero or
// less returns msgs unchanged.
func TrimHistory(msgs []Message, limit int) []Message {
	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}
	for i := len(msgs) - limit; i < len(msgs); i++ {
		if msgs[i].Role == RoleUser {
			return msgs[i:]
		}
	}
	for i := len(msgs) - limit - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i:]
		}
	}
	return msgs
}

// InMemoryStore is a [MessageStore] that keeps messages in process memory.
type InMemoryStore struct {
	mu       sync.Mutex
	messages []Message
	limit    int
}

// InMemoryOption configures an [InMemoryStore].
type InMemoryOption func(*InMemoryStore)

// WithMaxMessages bounds the kept history, see [TrimHistory]. Older
// messages are dropped on write.
func WithMaxMessages(n int) InMemoryOption {
	return func(s *InMemoryStore) { s.limit = n }
}

// NewInMemoryStore creates an empty [InMemoryStore].
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) ListMessages(_ context.Context) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...), nil
}

func (s *InMemoryStore) AddMessages(_ context.Context, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	if trimmed := TrimHistory(s.messages, s.limit); len(trimmed) < len(s.messages) {
		s.messages = append([]Message(nil), trimmed...)
	}
	return nil
}

// Len returns the number of stored messages.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *InMemoryStore) Serialize() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := map[string]any{"messages": append([]Message(nil), s.messages...)}
	if s.limit > 0 {
		state["maxMessages"] = s.limit
	}
	return state, nil
}
