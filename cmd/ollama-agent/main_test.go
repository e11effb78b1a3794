// Copyright (c) Microsoft. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local-agents/ollama-agent/batch"
	"github.com/local-agents/ollama-agent/config"
	"github.com/local-agents/ollama-agent/launcher"
	"github.com/local-agents/ollama-agent/ui"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		config.EnvOllamaHost, config.EnvOllamaModel, config.EnvProvider, config.EnvAPIKey,
		config.EnvListenAddr, config.EnvVerbose, config.EnvStorePath,
		config.EnvAzureEndpoint, config.EnvAzureKey, config.EnvAzureModel,
	} {
		t.Setenv(k, "")
	}
}

// fakeOllama serves the native API used by the probe and the
// OpenAI-compatible chat endpoint, answering every chat with reply.
func fakeOllama(t *testing.T, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var chats atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "Ollama is running")
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "0.9.0"})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []map[string]any{{
			"name":    "qwen3:latest",
			"model":   "qwen3:latest",
			"details": map[string]any{"parameter_size": "8.2B", "quantization_level": "Q4_K_M"},
		}}})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		chats.Add(1)
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, chunk := range []string{reply[:len(reply)/2], reply[len(reply)/2:]} {
				data, _ := json.Marshal(map[string]any{
					"id":      "r1",
					"choices": []map[string]any{{"index": 0, "delta": map[string]any{"role": "assistant", "content": chunk}}},
				})
				_, _ = io.WriteString(w, "data: "+string(data)+"\n\n")
			}
			_, _ = io.WriteString(w, `data: {"id":"r1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "r1",
			"model": "qwen3:latest",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &chats
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	clearEnv(t)
	a := &app{}
	t.Cleanup(a.close)

	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	base := []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "--log-level", "error"}
	cmd.SetArgs(append(args[:1:1], append(base, args[1:]...)...))
	err := cmd.Execute()
	return ansi.Strip(out.String()), err
}

func TestRunCommand(t *testing.T) {
	srv, chats := fakeOllama(t, "<think>2 plus 2</think>The answer is 4.")

	out, err := execute(t, "", "run", "--endpoint", srv.URL, "What", "is", "2", "+", "2?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.\n", out)
	assert.Equal(t, int32(1), chats.Load())
}

func TestRunCommandThinking(t *testing.T) {
	srv, _ := fakeOllama(t, "<think>2 plus 2</think>4")

	out, err := execute(t, "", "run", "--endpoint", srv.URL, "--thinking", "2+2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 plus 2")
	assert.True(t, strings.HasSuffix(out, "4\n"))
}

func TestRunCommandRequiresTask(t *testing.T) {
	_, err := execute(t, "", "run")
	require.Error(t, err)
}

func TestChatCommand(t *testing.T) {
	srv, chats := fakeOllama(t, "<think>greeting</think>Hi there")

	out, err := execute(t, "hello\n\nstream hi again\nquit\nnever sent\n", "chat", "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Calculate the 10th Fibonacci number")
	assert.Contains(t, out, "Agent: Hi there")
	assert.Equal(t, 2, strings.Count(out, "Hi there"))
	assert.Contains(t, out, "[tokens: 12 in, 3 out]")
	assert.Contains(t, out, "Goodbye!")
	assert.NotContains(t, out, "greeting")
	assert.Equal(t, int32(2), chats.Load())
}

func TestChatCommandEOF(t *testing.T) {
	srv, chats := fakeOllama(t, "ok")

	_, err := execute(t, "", "chat", "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.Zero(t, chats.Load())
}

func TestToolsList(t *testing.T) {
	out, err := execute(t, "", "tools", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "Available tools (5)")
	for _, name := range []string{"calculator", "get_time", "weather_checker", "text_analyzer", "url_shortener"} {
		assert.Contains(t, out, name)
	}
}

func TestBatchCommand(t *testing.T) {
	srv, chats := fakeOllama(t, "done")
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("batch:\n  delay: 1ms\n"), 0o644))
	tasksPath := filepath.Join(dir, "tasks.txt")
	require.NoError(t, os.WriteFile(tasksPath, []byte("# comment\nfirst task\n\nsecond task\n"), 0o644))

	out, err := execute(t, "", "batch", "--config", cfgPath, "--endpoint", srv.URL, "--file", tasksPath, "--out", dir)
	require.NoError(t, err)
	assert.Equal(t, int32(2), chats.Load())
	assert.Contains(t, out, "Processing 2 tasks")
	assert.Contains(t, out, "BATCH PROCESSING SUMMARY")
	assert.Contains(t, out, "Results saved to")

	files, err := filepath.Glob(filepath.Join(dir, "batch_results_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var results []batch.Result
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 2)
	assert.Equal(t, "first task", results[0].Task)
	assert.Equal(t, batch.StatusSucceeded, results[1].Status)
}

func TestBatchInteractiveEmpty(t *testing.T) {
	out, err := execute(t, "\n", "batch", "--interactive")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks to run")
}

func TestCheckCommand(t *testing.T) {
	srv, chats := fakeOllama(t, "4")
	t.Setenv(config.EnvAzureKey, "")

	out, err := execute(t, "", "check", "--endpoint", srv.URL, "--query", "What is 2 + 2?")
	require.NoError(t, err)
	assert.Contains(t, out, "Ollama is running")
	assert.Contains(t, out, "0.9.0")
	assert.Contains(t, out, "Model qwen3:latest found")
	assert.Contains(t, out, "Assistant creation: PASS")
	assert.Contains(t, out, "Sample query: PASS")
	assert.Equal(t, int32(1), chats.Load())
}

func TestCheckCommandMissingModel(t *testing.T) {
	srv, _ := fakeOllama(t, "")

	out, err := execute(t, "", "check", "--endpoint", srv.URL, "--model", "llama3")
	require.Error(t, err)
	assert.Contains(t, out, "Model llama3 not found")
	assert.Contains(t, out, "ollama pull llama3")
}

func TestEnvReport(t *testing.T) {
	env := map[string]string{
		config.EnvOllamaHost: "http://localhost:11434",
		config.EnvAPIKey:     "sk-1234567890abcd",
	}
	rows := envReport(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	got := make(map[string]string, len(rows))
	for _, r := range rows {
		got[r[0]] = ansi.Strip(r[1])
	}
	assert.Equal(t, "http://localhost:11434", got[config.EnvOllamaHost])
	assert.Equal(t, "sk-1*********abcd", got[config.EnvAPIKey])
	assert.Equal(t, "(not set)", got[config.EnvAzureKey])
}

func TestLocalURL(t *testing.T) {
	tests := map[string]string{
		":8000":          "http://localhost:8000",
		"0.0.0.0:9000":   "http://localhost:9000",
		"127.0.0.1:8000": "http://127.0.0.1:8000",
		"[::]:8000":      "http://localhost:8000",
		"example":        "http://example",
	}
	for addr, want := range tests {
		assert.Equal(t, want, localURL(addr), addr)
	}
}

func TestBackendArgs(t *testing.T) {
	a := &app{configPath: "agent.yaml", model: "llama3", verbose: true}
	assert.Equal(t, []string{"serve", "--config", "agent.yaml", "--model", "llama3", "--verbose"}, backendArgs(a))
}

func TestBatchOptions(t *testing.T) {
	cfg := config.Default().Batch
	opts := batchOptions(cfg, batchFlags{workers: 4, timeout: time.Minute})
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, 1, opts.MaxAttempts)
	assert.Equal(t, time.Second, opts.Delay)
	assert.Equal(t, time.Minute, opts.TaskTimeout)
	assert.Equal(t, ".", opts.OutputDir)
}

func TestCheckStatus(t *testing.T) {
	assert.Equal(t, ui.StatusOK, checkStatus(launcher.SeverityOK))
	assert.Equal(t, ui.StatusWarn, checkStatus(launcher.SeverityWarning))
	assert.Equal(t, ui.StatusFail, checkStatus(launcher.SeverityError))
}
