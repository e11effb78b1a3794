// Copyright (c) Microsoft. All rights reserved.

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("Ollama is running"))
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "0.9.0"})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		list := make([]map[string]any, 0, len(models))
		for _, m := range models {
			list = append(list, map[string]any{
				"name":  m,
				"model": m,
				"size":  5_200_000_000,
				"details": map[string]any{
					"family":             "qwen3",
					"parameter_size":     "8.2B",
					"quantization_level": "Q4_K_M",
				},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": list})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewProbe(t *testing.T) {
	p, err := NewProbe("http://localhost:11434/v1/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", p.Endpoint())

	_, err = NewProbe("localhost", nil)
	require.Error(t, err)
}

func TestProbe(t *testing.T) {
	srv := newServer(t, "qwen3:latest", "llama3.2:3b")
	p, err := NewProbe(srv.URL, srv.Client())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Reachable(ctx))

	v, err := p.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.9.0", v)

	models, err := p.Models(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "qwen3:latest", models[0].Name)
	assert.Equal(t, "8.2B", models[0].ParameterSize)
	assert.Equal(t, "Q4_K_M", models[0].Quantization)

	for name, want := range map[string]bool{
		"qwen3":                    true,
		"qwen3:latest":             true,
		"ollama_chat/qwen3:latest": true,
		"llama3.2:3b":              true,
		"llama3.2":                 false,
		"mistral":                  false,
	} {
		got, err := p.HasModel(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestCheck(t *testing.T) {
	srv := newServer(t, "qwen3:latest")
	p, err := NewProbe(srv.URL, srv.Client())
	require.NoError(t, err)

	r := p.Check(context.Background(), "qwen3")
	assert.True(t, r.OK())
	assert.Equal(t, "0.9.0", r.Version)
	require.NoError(t, r.Err)

	r = p.Check(context.Background(), "mistral")
	assert.True(t, r.Reachable)
	assert.False(t, r.OK())
	require.Error(t, r.Err)
	assert.Contains(t, r.Err.Error(), "ollama pull mistral")
}

func TestCheckUnreachable(t *testing.T) {
	srv := newServer(t)
	url := srv.URL
	srv.Close()

	p, err := NewProbe(url, nil, WithTimeout(time.Second))
	require.NoError(t, err)
	r := p.Check(context.Background(), "qwen3")
	assert.False(t, r.Reachable)
	assert.False(t, r.OK())
	require.Error(t, r.Err)
}
