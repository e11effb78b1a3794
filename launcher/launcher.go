// Copyright (c) Microsoft. All rights reserved.

// Package launcher starts the REST backend and the web frontend together
// and stops both when either exits or the context is cancelled.
package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Command is a process to run.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Config configures a [Launcher].
type Config struct {
	// UIDir holds the frontend project (package.json).
	UIDir string
	// Backend is usually this binary's "serve" command.
	Backend Command
	// Frontend defaults to "npm run dev" in UIDir.
	Frontend Command
	// StartupDelay separates backend and frontend start.
	StartupDelay time.Duration
	// StopTimeout is how long a process gets between the interrupt signal
	// and being killed.
	StopTimeout time.Duration
	Node        string
	NPM         string
	Output      io.Writer
}

// Pinger reports whether the model backend is reachable.
type Pinger interface {
	Reachable(ctx context.Context) error
}

// Launcher supervises the backend and frontend processes.
type Launcher struct {
	cfg    Config
	probe  Pinger
	logger *zap.Logger
	out    *syncWriter
}

// New returns a Launcher. probe may be nil to skip the Ollama check.
func New(cfg Config, probe Pinger, logger *zap.Logger) *Launcher {
	if cfg.Node == "" {
		cfg.Node = "node"
	}
	if cfg.NPM == "" {
		cfg.NPM = "npm"
	}
	if cfg.Frontend.Name == "" {
		cfg.Frontend = Command{Name: cfg.NPM, Args: []string{"run", "dev"}, Dir: cfg.UIDir}
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, probe: probe, logger: logger, out: &syncWriter{w: cfg.Output}}
}

// Severity grades a [Check].
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityError
)

// Check is one requirement check outcome.
type Check struct {
	Name     string
	Severity Severity
	Detail   string
}

// ErrRequirements is returned by [Launcher.CheckRequirements] when a hard
// requirement is missing.
var ErrRequirements = errors.New("requirements not met")

// CheckRequirements verifies Node.js and the UI project. An unreachable
// Ollama is reported as a warning only.
func (l *Launcher) CheckRequirements(ctx context.Context) ([]Check, error) {
	var checks []Check
	failed := false
	add := func(name string, sev Severity, format string, args ...any) {
		checks = append(checks, Check{Name: name, Severity: sev, Detail: fmt.Sprintf(format, args...)})
		if sev == SeverityError {
			failed = true
		}
	}

	if out, err := exec.CommandContext(ctx, l.cfg.Node, "--version").Output(); err != nil {
		add("node", SeverityError, "Node.js is not available (%v); install it from https://nodejs.org/", err)
	} else {
		add("node", SeverityOK, "Node.js %s", strings.TrimSpace(string(out)))
	}

	if st, err := os.Stat(l.cfg.UIDir); err != nil || !st.IsDir() {
		add("ui", SeverityError, "%s directory not found", l.cfg.UIDir)
	} else if _, err := os.Stat(filepath.Join(l.cfg.UIDir, "package.json")); err != nil {
		add("ui", SeverityError, "package.json not found in %s", l.cfg.UIDir)
	} else {
		add("ui", SeverityOK, "frontend project in %s", l.cfg.UIDir)
	}

	if l.probe != nil {
		if err := l.probe.Reachable(ctx); err != nil {
			add("ollama", SeverityWarning, "Ollama is not running; start it with: ollama serve")
		} else {
			add("ollama", SeverityOK, "Ollama is running")
		}
	}

	if failed {
		return checks, ErrRequirements
	}
	return checks, nil
}

// InstallDependencies runs "npm install" when node_modules is missing. It
// reports whether an install ran.
func (l *Launcher) InstallDependencies(ctx context.Context) (bool, error) {
	if _, err := os.Stat(filepath.Join(l.cfg.UIDir, "node_modules")); err == nil {
		return false, nil
	}
	l.logger.Info("installing frontend dependencies", zap.String("dir", l.cfg.UIDir))
	cmd := exec.CommandContext(ctx, l.cfg.NPM, "install")
	cmd.Dir = l.cfg.UIDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return true, fmt.Errorf("npm install: %w\n%s", err, strings.TrimSpace(buf.String()))
	}
	return true, nil
}

// ExitError reports which process ended the session.
type ExitError struct {
	Process string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Process + " exited"
	}
	return fmt.Sprintf("%s exited: %v", e.Process, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Run starts the backend, waits StartupDelay, starts the frontend and
// blocks. Both processes are stopped when ctx is cancelled (nil is
// returned) or when either exits (an [*ExitError] is returned).
func (l *Launcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return l.supervise(gctx, "Backend", l.cfg.Backend)
	})
	g.Go(func() error {
		if !sleep(gctx, l.cfg.StartupDelay) {
			return nil
		}
		return l.supervise(gctx, "Frontend", l.cfg.Frontend)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		l.logger.Info("launcher stopped")
		return nil
	}
	return err
}

// supervise runs cmd until it exits or ctx is done. Exiting on its own is
// an error, so the group stops the other process.
func (l *Launcher) supervise(ctx context.Context, name string, c Command) error {
	w := newPrefixWriter(l.out, "["+name+"] ")
	defer w.Flush()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = l.cfg.StopTimeout

	l.logger.Info("starting process", zap.String("name", name), zap.String("command", c.String()))
	if err := cmd.Start(); err != nil {
		return &ExitError{Process: name, Err: err}
	}
	err := cmd.Wait()
	if ctx.Err() != nil {
		l.logger.Info("process stopped", zap.String("name", name))
		return nil
	}
	l.logger.Warn("process exited", zap.String("name", name), zap.Error(err))
	return &ExitError{Process: name, Err: err}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// prefixWriter writes complete lines with a prefix. A trailing partial line
// is held until the next write or Flush.
type prefixWriter struct {
	mu      sync.Mutex
	out     io.Writer
	prefix  string
	pending []byte
}

func newPrefixWriter(out io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{out: out, prefix: prefix}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, b...)
	for {
		i := bytes.IndexByte(p.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(p.pending[:i]), "\r")
		p.pending = p.pending[i+1:]
		if _, err := io.WriteString(p.out, p.prefix+line+"\n"); err != nil {
			return len(b), err
		}
	}
	return len(b), nil
}

// Flush writes a held partial line.
func (p *prefixWriter) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return
	}
	_, _ = io.WriteString(p.out, p.prefix+string(p.pending)+"\n")
	p.pending = nil
}
