// Copyright (c) Microsoft. All rights reserved.

// Package ollama checks the local Ollama runtime the assistant talks to:
// whether it is up, which version it runs and which models are pulled.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultTimeout bounds every probe call.
const DefaultTimeout = 5 * time.Second

// Model describes a locally available model.
type Model struct {
	Name          string
	Size          int64
	Family        string
	ParameterSize string
	Quantization  string
	ModifiedAt    time.Time
}

// Probe queries an Ollama server through its native API.
type Probe struct {
	endpoint string
	client   *api.Client
	timeout  time.Duration
}

// ProbeOption configures a [Probe].
type ProbeOption func(*Probe)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) { p.timeout = d }
}

// NewProbe returns a probe for the server at endpoint. A trailing /v1 is
// removed so the OpenAI-compatible base URL can be passed as well.
func NewProbe(endpoint string, httpClient *http.Client, opts ...ProbeOption) (*Probe, error) {
	endpoint = strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/v1")
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse ollama endpoint %q: %w", endpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ollama endpoint %q must be an absolute URL", endpoint)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	p := &Probe{
		endpoint: endpoint,
		client:   api.NewClient(u, httpClient),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Endpoint returns the probed base URL.
func (p *Probe) Endpoint() string { return p.endpoint }

func (p *Probe) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Reachable reports whether the server answers its heartbeat.
func (p *Probe) Reachable(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := p.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama not reachable at %s: %w", p.endpoint, err)
	}
	return nil
}

// Version returns the server version.
func (p *Probe) Version(ctx context.Context) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	v, err := p.client.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("ollama version: %w", err)
	}
	return v, nil
}

// Models lists the locally available models.
func (p *Probe) Models(ctx context.Context) ([]Model, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	resp, err := p.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ollama models: %w", err)
	}
	models := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, Model{
			Name:          m.Name,
			Size:          m.Size,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
			Quantization:  m.Details.QuantizationLevel,
			ModifiedAt:    m.ModifiedAt,
		})
	}
	return models, nil
}

// HasModel reports whether name is pulled. "qwen3" and "qwen3:latest"
// match each other.
func (p *Probe) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := p.Models(ctx)
	if err != nil {
		return false, err
	}
	return containsModel(models, name), nil
}

func containsModel(models []Model, name string) bool {
	want := canonicalName(name)
	for _, m := range models {
		if canonicalName(m.Name) == want {
			return true
		}
	}
	return false
}

func canonicalName(name string) string {
	name = strings.TrimSpace(strings.TrimPrefix(name, "ollama_chat/"))
	if !strings.Contains(name, ":") {
		name += ":latest"
	}
	return name
}

// Report is the outcome of [Probe.Check].
type Report struct {
	Endpoint  string
	Reachable bool
	Version   string
	Models    []Model
	Model     string
	HasModel  bool
	Err       error
}

// OK reports whether the server is up and the model is available.
func (r Report) OK() bool { return r.Reachable && r.HasModel }

// Check gathers connectivity, version and model availability in one pass.
// Failures are recorded in the report rather than returned.
func (p *Probe) Check(ctx context.Context, model string) Report {
	r := Report{Endpoint: p.endpoint, Model: model}
	if err := p.Reachable(ctx); err != nil {
		r.Err = err
		return r
	}
	r.Reachable = true

	if v, err := p.Version(ctx); err == nil {
		r.Version = v
	}
	models, err := p.Models(ctx)
	if err != nil {
		r.Err = err
		return r
	}
	r.Models = models
	r.HasModel = containsModel(models, model)
	if !r.HasModel {
		r.Err = fmt.Errorf("model %q not found; run: ollama pull %s", model, model)
	}
	return r
}
