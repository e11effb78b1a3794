// Copyright (c) Microsoft. All rights reserved.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/batch"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.SessionStore("s1")

	require.NoError(t, s.AddMessages(ctx, []agent.Message{
		agent.NewUserMessage("what time is it?"),
		{
			Role: agent.RoleAssistant,
			Contents: agent.Contents{
				&agent.TextReasoningContent{Text: "need the clock"},
				&agent.FunctionCallContent{CallID: "c1", Name: "get_time", Arguments: `{}`},
			},
		},
	}))
	require.NoError(t, s.AddMessages(ctx, []agent.Message{agent.NewAssistantMessage("It is noon.")}))

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, agent.RoleUser, msgs[0].Role)
	assert.Equal(t, "what time is it?", msgs[0].Text())
	assert.Equal(t, "need the clock", msgs[1].Reasoning())
	fc, ok := msgs[1].Contents[1].(*agent.FunctionCallContent)
	require.True(t, ok)
	assert.Equal(t, "get_time", fc.Name)
	assert.Equal(t, "It is noon.", msgs[2].Text())

	other, err := db.SessionStore("s2").ListMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSessionStoreHistoryLimit(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	s := db.SessionStore("s1").WithHistoryLimit(3)
	for _, q := range []string{"q1", "q2", "q3"} {
		require.NoError(t, s.AddMessages(ctx, []agent.Message{agent.NewUserMessage(q), agent.NewAssistantMessage("a")}))
	}

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "q3", msgs[0].Text())

	all, err := db.SessionStore("s1").ListMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	require.NoError(t, db.SessionStore("old").AddMessages(ctx, []agent.Message{agent.NewUserMessage("hi")}))
	require.NoError(t, db.SessionStore("new").AddMessages(ctx, []agent.Message{agent.NewUserMessage("hi")}))

	ids, err := db.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	require.NoError(t, db.DeleteSession(ctx, "old"))
	ids, err = db.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)
}

func TestSessionStoreWithAgent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "agent.db")
	db, err := Open(path)
	require.NoError(t, err)

	sess := agent.NewSession(agent.WithSessionID("persisted"), agent.WithSessionStore(db.SessionStore("persisted")))
	require.NoError(t, sess.Store().AddMessages(ctx, []agent.Message{agent.NewUserMessage("remember me")}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	msgs, err := db.SessionStore("persisted").ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "remember me", msgs[0].Text())
}

func TestBatchResults(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	require.NoError(t, db.SaveBatchResults(ctx, "run-1", []batch.Result{
		{TaskID: 2, Task: "b", Status: batch.StatusFailed, Error: "boom", Attempts: 2, Timestamp: ts},
		{TaskID: 1, Task: "a", Result: "ok", Status: batch.StatusSucceeded, ExecutionTime: 1.25, Attempts: 1, Timestamp: ts},
	}))
	require.NoError(t, db.SaveBatchResults(ctx, "run-2", []batch.Result{{TaskID: 1, Task: "z", Status: batch.StatusInterrupted}}))

	got, err := db.BatchResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].TaskID)
	assert.Equal(t, "ok", got[0].Result)
	assert.InDelta(t, 1.25, got[0].ExecutionTime, 1e-9)
	assert.Equal(t, batch.StatusFailed, got[1].Status)
	assert.Equal(t, "boom", got[1].Error)
	assert.Equal(t, 2, got[1].Attempts)
	assert.WithinDuration(t, ts, got[1].Timestamp, time.Second)

	require.Error(t, db.SaveBatchResults(ctx, "", []batch.Result{{TaskID: 1}}))
}

func TestBatchRunnerSink(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	r := batch.NewRunner(func(ctx context.Context, p string) (string, error) {
		return p + "!", nil
	}, batch.Options{Sink: db})

	run, err := r.Run(ctx, []string{"one", "two"})
	require.NoError(t, err)

	got, err := db.BatchResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two!", got[1].Result)
}
