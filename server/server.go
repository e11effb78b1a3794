// Copyright (c) Microsoft. All rights reserved.

// Package server exposes the assistant over HTTP for the chat frontend.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/sanitize"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Runner is the part of [agent.Agent] the server uses.
type Runner interface {
	Run(ctx context.Context, messages []agent.Message, opts ...agent.RunOption) (*agent.Response, error)
	NewSession() *agent.Session
	ResumeSession(id string) *agent.Session
}

// HealthChecker reports whether the model backend is reachable.
type HealthChecker interface {
	Reachable(ctx context.Context) error
}

// Config configures a [Server].
type Config struct {
	Addr string
	// APIKey protects /invoke with a bearer token when set.
	APIKey          string
	CORSOrigins     []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// Model and Endpoint are reported by /status.
	Model    string
	Endpoint string
	// Card is served at /.well-known/agent.json when set.
	Card *AgentCard

	// MaxSessions caps the conversations kept in memory. Default: 256.
	MaxSessions int
}

// DefaultMaxSessions is used when Config.MaxSessions is not positive.
const DefaultMaxSessions = 256

// Server is the HTTP front of the assistant. A nil Runner is allowed: the
// server then reports itself degraded and rejects chat requests.
type Server struct {
	cfg    Config
	agent  Runner
	health HealthChecker
	logger *zap.Logger
	mux    *http.ServeMux
	now    func() time.Time

	sessions *lru.Cache[string, *agent.Session]

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// New creates a Server.
func New(cfg Config, runner Runner, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	// Only fails for a non-positive size.
	sessions, _ := lru.NewWithEvict(cfg.MaxSessions, func(id string, _ *agent.Session) {
		logger.Debug("conversation evicted", zap.String("conversation_id", id))
	})
	s := &Server{
		cfg:      cfg,
		agent:    runner,
		health:   health,
		logger:   logger,
		mux:      http.NewServeMux(),
		now:      time.Now,
		sessions: sessions,
		inflight: make(map[string]context.CancelFunc),
	}
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /chat/stop", s.handleStop)
	s.mux.HandleFunc("POST /invoke", s.handleInvoke)
	s.mux.HandleFunc("GET /.well-known/agent.json", s.handleAgentCard)
	s.mux.HandleFunc("GET /.well-known/agent-card.json", s.handleAgentCard)
	return s
}

// Handler returns the routed handler wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.mux))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled and then shuts down
// gracefully, cancelling in-flight chats.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	s.stopAll()
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "AI Agent Chat API",
		"version":   Version,
		"status":    "running",
		"timestamp": s.timestamp(),
		"endpoints": map[string]string{
			"chat":   "POST /chat",
			"stop":   "POST /chat/stop",
			"invoke": "POST /invoke",
			"status": "GET /status",
			"health": "GET /health",
		},
	})
}

func (s *Server) connected(ctx context.Context) bool {
	if s.health == nil {
		return true
	}
	if err := s.health.Reachable(ctx); err != nil {
		s.logger.Debug("model backend unreachable", zap.Error(err))
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.connected(r.Context())
	ready := s.agent != nil
	status := "degraded"
	if connected && ready {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"ollama_connected": connected,
		"agent_ready":      ready,
		"conversations":    s.sessions.Len(),
		"timestamp":        s.timestamp(),
	})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status      string `json:"status"`
	Model       string `json:"model"`
	Endpoint    string `json:"endpoint"`
	IsConnected bool   `json:"isConnected"`
	Timestamp   string `json:"timestamp"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	connected := s.connected(r.Context())
	status := "disconnected"
	if connected {
		status = "connected"
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:      status,
		Model:       s.cfg.Model,
		Endpoint:    s.cfg.Endpoint,
		IsConnected: connected && s.agent != nil,
		Timestamp:   s.timestamp(),
	})
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response       string   `json:"response"`
	ExecutionTime  float64  `json:"executionTime"`
	Thinking       string   `json:"thinking,omitempty"`
	CodeBlocks     []string `json:"codeBlocks,omitempty"`
	Timestamp      string   `json:"timestamp"`
	ConversationID string   `json:"conversationId,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "AI agent is not initialized. Please check server logs.")
		return
	}
	if !s.connected(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "Cannot connect to Ollama. Please make sure Ollama is running.")
		return
	}

	s.logger.Info("chat request",
		zap.String("conversation_id", req.ConversationID),
		zap.String("message", truncate(req.Message, 100)))

	start := time.Now()
	resp, err := s.run(r.Context(), req.ConversationID, req.Message)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			writeError(w, http.StatusServiceUnavailable, "chat request was stopped")
			return
		}
		s.logger.Error("chat failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing request: %v", err))
		return
	}

	text := resp.Text()
	if text == "" {
		text = "No response generated"
	}
	s.logger.Info("chat response", zap.Duration("elapsed", elapsed), zap.Int("length", len(text)))
	writeJSON(w, http.StatusOK, ChatResponse{
		Response:       text,
		ExecutionTime:  elapsed.Seconds(),
		Thinking:       resp.Reasoning(),
		CodeBlocks:     sanitize.ExtractCode(text),
		Timestamp:      s.timestamp(),
		ConversationID: req.ConversationID,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	n := s.stopAll()
	s.logger.Info("stop requested", zap.Int("cancelled", n))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Stop request received",
		"cancelled": n,
		"timestamp": s.timestamp(),
	})
}

// InvokeRequest is the body of POST /invoke.
type InvokeRequest struct {
	Input          string         `json:"input"`
	ConversationID string         `json:"conversationId,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// InvokeResponse is the body returned by POST /invoke.
type InvokeResponse struct {
	Output string `json:"output"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if s.cfg.APIKey != "" && extractBearer(r) != s.cfg.APIKey {
		s.logger.Warn("unauthorized invoke", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "agent is not initialized")
		return
	}

	resp, err := s.run(r.Context(), req.ConversationID, req.Input)
	if err != nil {
		s.logger.Error("invoke failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "agent execution failed")
		return
	}
	writeJSON(w, http.StatusOK, InvokeResponse{Output: resp.Text()})
}

// run executes one turn, registered for cancellation by /chat/stop.
func (s *Server) run(ctx context.Context, conversationID, input string) (*agent.Response, error) {
	if s.cfg.RequestTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	s.mu.Lock()
	s.inflight[id] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
		cancel()
	}()

	return s.agent.Run(ctx,
		[]agent.Message{agent.NewUserMessage(input)},
		agent.WithSession(s.session(conversationID)),
	)
}

func (s *Server) stopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.inflight)
	for id, cancel := range s.inflight {
		cancel()
		delete(s.inflight, id)
	}
	return n
}

func (s *Server) session(id string) *agent.Session {
	if id == "" {
		return s.agent.NewSession()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Get(id); ok {
		return sess
	}
	sess := s.agent.ResumeSession(id)
	s.sessions.Add(id, sess)
	return sess
}


func (s *Server) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}

func extractBearer(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
