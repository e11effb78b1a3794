// Copyright (c) Microsoft. All rights reserved.

package agent

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Session holds the conversation state for a multi-turn interaction.
// Messages live in a [MessageStore].
type Session struct {
	mu    sync.Mutex
	id    string
	store MessageStore
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithSessionID sets the session identifier instead of generating one.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithSessionStore sets the message store for the session.
func WithSessionStore(store MessageStore) SessionOption {
	return func(s *Session) { s.store = store }
}

// NewSession creates a Session with a generated ID.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{id: uuid.NewString()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Store returns the message store, or nil if none is attached yet.
func (s *Session) Store() MessageStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// SetStore attaches a message store.
func (s *Session) SetStore(store MessageStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
}

// Serialize returns the session state as a serializable map.
func (s *Session) Serialize() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := map[string]any{"id": s.id}
	if s.store != nil {
		storeState, err := s.store.Serialize()
		if err != nil {
			return nil, fmt.Errorf("serialize store: %w", err)
		}
		state["store"] = storeState
	}
	return state, nil
}
