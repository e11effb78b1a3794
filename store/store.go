// Copyright (c) Microsoft. All rights reserved.

// Package store persists chat sessions and batch results in SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/batch"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB wraps the gorm handle.
type DB struct {
	db *gorm.DB
}

// MessageRecord is one stored chat message.
type MessageRecord struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	SessionID string    `gorm:"index;not null"`
	Seq       int       `gorm:"not null"`
	Role      string    `gorm:"not null"`
	Author    string
	// Contents holds the $type-enveloped content array.
	Contents string
}

// BatchResultRecord is one stored batch task result.
type BatchResultRecord struct {
	ID            uint   `gorm:"primarykey"`
	RunID         string `gorm:"index;not null"`
	TaskID        int
	Task          string
	Result        string
	Error         string
	ExecutionTime float64
	Timestamp     time.Time
	Status        string `gorm:"index"`
	Attempts      int
}

// Open opens (and migrates) the database at path. Use [MemoryPath] for a
// throwaway database.
func Open(path string) (*DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if path == MemoryPath {
		// each pooled connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&MessageRecord{}, &BatchResultRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SessionStore returns the message store of one session. It implements
// [agent.MessageStore].
func (d *DB) SessionStore(sessionID string) *SessionStore {
	return &SessionStore{db: d.db, sessionID: sessionID}
}

// Sessions lists the IDs of all stored sessions, most recently active first.
func (d *DB) Sessions(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).
		Model(&MessageRecord{}).
		Select("session_id").
		Group("session_id").
		Order("MAX(created_at) DESC, MAX(id) DESC").
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// DeleteSession removes every message of a session.
func (d *DB) DeleteSession(ctx context.Context, sessionID string) error {
	err := d.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&MessageRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// SessionStore is a SQLite-backed [agent.MessageStore].
type SessionStore struct {
	db        *gorm.DB
	sessionID string
	limit     int
}

var _ agent.MessageStore = (*SessionStore)(nil)

// WithHistoryLimit makes ListMessages return only the recent window, see
// [agent.TrimHistory]. The full history stays in the database.
func (s *SessionStore) WithHistoryLimit(n int) *SessionStore {
	s.limit = n
	return s
}

// SessionID returns the session the store belongs to.
func (s *SessionStore) SessionID() string { return s.sessionID }

// ListMessages returns the session's messages in insertion order.
func (s *SessionStore) ListMessages(ctx context.Context) ([]agent.Message, error) {
	var records []MessageRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", s.sessionID).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", s.sessionID, err)
	}
	msgs := make([]agent.Message, 0, len(records))
	for _, r := range records {
		var contents agent.Contents
		if r.Contents != "" {
			if err := json.Unmarshal([]byte(r.Contents), &contents); err != nil {
				return nil, fmt.Errorf("decode message %d of session %s: %w", r.Seq, s.sessionID, err)
			}
		}
		msgs = append(msgs, agent.Message{
			Role:       agent.Role(r.Role),
			Contents:   contents,
			AuthorName: r.Author,
		})
	}
	return agent.TrimHistory(msgs, s.limit), nil
}

// AddMessages appends messages in one transaction.
func (s *SessionStore) AddMessages(ctx context.Context, msgs []agent.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var next int
		row := tx.Model(&MessageRecord{}).
			Where("session_id = ?", s.sessionID).
			Select("COALESCE(MAX(seq), 0)").Row()
		if err := row.Scan(&next); err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		records := make([]MessageRecord, 0, len(msgs))
		for _, m := range msgs {
			next++
			data, err := json.Marshal(m.Contents)
			if err != nil {
				return fmt.Errorf("encode message: %w", err)
			}
			records = append(records, MessageRecord{
				SessionID: s.sessionID,
				Seq:       next,
				Role:      string(m.Role),
				Author:    m.AuthorName,
				Contents:  string(data),
			})
		}
		return tx.Create(&records).Error
	})
}

// Serialize returns the session reference; the messages stay in the database.
func (s *SessionStore) Serialize() (map[string]any, error) {
	return map[string]any{"sessionId": s.sessionID, "backend": "sqlite"}, nil
}

// SaveBatchResults stores the results of a batch run. It implements
// [batch.Sink].
func (d *DB) SaveBatchResults(ctx context.Context, runID string, results []batch.Result) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if len(results) == 0 {
		return nil
	}
	records := make([]BatchResultRecord, 0, len(results))
	for _, r := range results {
		records = append(records, BatchResultRecord{
			RunID:         runID,
			TaskID:        r.TaskID,
			Task:          r.Task,
			Result:        r.Result,
			Error:         r.Error,
			ExecutionTime: r.ExecutionTime,
			Timestamp:     r.Timestamp,
			Status:        string(r.Status),
			Attempts:      r.Attempts,
		})
	}
	if err := d.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("save batch %s: %w", runID, err)
	}
	return nil
}

var _ batch.Sink = (*DB)(nil)

// BatchResults loads the results of a run ordered by task.
func (d *DB) BatchResults(ctx context.Context, runID string) ([]batch.Result, error) {
	var records []BatchResultRecord
	err := d.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("task_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", runID, err)
	}
	results := make([]batch.Result, 0, len(records))
	for _, r := range records {
		results = append(results, batch.Result{
			TaskID:        r.TaskID,
			Task:          r.Task,
			Result:        r.Result,
			Error:         r.Error,
			ExecutionTime: r.ExecutionTime,
			Timestamp:     r.Timestamp,
			Status:        batch.Status(r.Status),
			Attempts:      r.Attempts,
		})
	}
	return results, nil
}
