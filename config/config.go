// Copyright (c) Microsoft. All rights reserved.

// Package config loads the application configuration from YAML, a .env
// file and environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Providers understood by [ModelConfig].Provider.
const (
	ProviderOllama = "ollama"
	ProviderAzure  = "azure"
)

// Config holds all settings. It is passed explicitly to constructors.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	Server   ServerConfig   `yaml:"server"`
	Batch    BatchConfig    `yaml:"batch"`
	Launcher LauncherConfig `yaml:"launcher"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ModelConfig selects the chat model and how to reach it.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	ID          string  `yaml:"id"`
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	NumCtx      int     `yaml:"num_ctx"`
	Temperature float64 `yaml:"temperature"`
	KeepAlive   string  `yaml:"keep_alive"`
	Timeout     string  `yaml:"timeout"`
	MaxRetries  int     `yaml:"max_retries"`

	Azure AzureConfig `yaml:"azure"`
}

// AzureConfig configures the Azure AI Foundry provider. Without an API key
// the default Azure credential chain is used.
type AzureConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// AgentConfig shapes the assistant built on top of the model.
type AgentConfig struct {
	Name          string `yaml:"name"`
	Instructions  string `yaml:"instructions"`
	CustomTools   bool   `yaml:"custom_tools"`
	TextToolCalls bool   `yaml:"text_tool_calls"`
	KeepReasoning bool   `yaml:"keep_reasoning"`
	MaxIterations int    `yaml:"max_iterations"`

	// HistoryLimit bounds the messages replayed to the model per turn.
	// Zero keeps the whole conversation.
	HistoryLimit int  `yaml:"history_limit"`
	Verbose      bool `yaml:"verbose"`
}

// ServerConfig configures the REST backend.
type ServerConfig struct {
	ListenAddr      string   `yaml:"listen_addr"`
	APIKey          string   `yaml:"api_key"`
	CORSOrigins     []string `yaml:"cors_origins"`
	RequestTimeout  string   `yaml:"request_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`

	// MaxSessions caps the conversations kept in memory; the least
	// recently used one is dropped first.
	MaxSessions int `yaml:"max_sessions"`
}

// BatchConfig configures the batch runner.
type BatchConfig struct {
	Workers     int    `yaml:"workers"`
	MaxAttempts int    `yaml:"max_attempts"`
	Delay       string `yaml:"delay"`
	TaskTimeout string `yaml:"task_timeout"`
	OutputDir   string `yaml:"output_dir"`
}

// LauncherConfig configures the backend + frontend launcher.
type LauncherConfig struct {
	UIDir        string `yaml:"ui_dir"`
	StartupDelay string `yaml:"startup_delay"`
	FrontendURL  string `yaml:"frontend_url"`
}

// StoreConfig configures persistence. An empty Path keeps sessions in memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider:    ProviderOllama,
			ID:          "qwen3:latest",
			Endpoint:    "http://localhost:11434",
			APIKey:      "dummy_key",
			NumCtx:      8192,
			Temperature: 0.1,
			Timeout:     "120s",
			MaxRetries:  2,
		},
		Agent: AgentConfig{
			Name:          "ollama-agent",
			KeepReasoning: true,
			MaxIterations: 20,
			HistoryLimit:  40,
		},
		Server: ServerConfig{
			ListenAddr:      ":8000",
			CORSOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RequestTimeout:  "300s",
			ShutdownTimeout: "10s",
			MaxSessions:     256,
		},
		Batch: BatchConfig{
			Workers:     1,
			MaxAttempts: 1,
			Delay:       "1s",
			TaskTimeout: "5m",
			OutputDir:   ".",
		},
		Launcher: LauncherConfig{
			UIDir:        "agent-ui",
			StartupDelay: "3s",
			FrontendURL:  "http://localhost:3000",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. A missing file is not an error; an empty path
// skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Environment variables read by [Load].
const (
	EnvOllamaHost    = "OLLAMA_HOST"
	EnvOllamaModel   = "OLLAMA_MODEL"
	EnvProvider      = "AGENT_PROVIDER"
	EnvAPIKey        = "AGENT_API_KEY"
	EnvListenAddr    = "AGENT_LISTEN_ADDR"
	EnvVerbose       = "AGENT_VERBOSE"
	EnvStorePath     = "AGENT_DB"
	EnvAzureEndpoint = "AZURE_FOUNDRY_ENDPOINT"
	EnvAzureKey      = "AZURE_FOUNDRY_KEY"
	EnvAzureModel    = "AZURE_FOUNDRY_MODEL"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvOllamaHost); ok {
		c.Model.Endpoint = normalizeHost(v)
	}
	if v, ok := get(EnvOllamaModel); ok {
		c.Model.ID = v
	}
	if v, ok := get(EnvProvider); ok {
		c.Model.Provider = strings.ToLower(v)
	}
	if v, ok := get(EnvAPIKey); ok {
		c.Server.APIKey = v
	}
	if v, ok := get(EnvListenAddr); ok {
		c.Server.ListenAddr = v
	}
	if v, ok := get(EnvStorePath); ok {
		c.Store.Path = v
	}
	if v, ok := get(EnvVerbose); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		c.Agent.Verbose = b
		if b {
			c.Logging.Level = "debug"
		}
	}
	if v, ok := get(EnvAzureEndpoint); ok {
		c.Model.Azure.Endpoint = v
	}
	if v, ok := get(EnvAzureKey); ok {
		c.Model.Azure.APIKey = v
	}
	if v, ok := get(EnvAzureModel); ok {
		c.Model.Azure.Model = v
	}
	return nil
}

// normalizeHost turns OLLAMA_HOST values such as "0.0.0.0:11434" or
// "localhost" into a URL.
func normalizeHost(host string) string {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	scheme, rest, _ := strings.Cut(host, "://")
	if !strings.Contains(rest, ":") {
		rest += ":11434"
	}
	rest = strings.TrimRight(rest, "/")
	if h, port, ok := strings.Cut(rest, ":"); ok && (h == "0.0.0.0" || h == "") {
		rest = "localhost:" + port
	}
	return scheme + "://" + rest
}

var validLevels = []string{"debug", "info", "warn", "error"}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case ProviderOllama:
		if c.Model.Endpoint == "" {
			errs = append(errs, errors.New("model.endpoint is required for the ollama provider"))
		}
	case ProviderAzure:
		if c.Model.Azure.Endpoint == "" {
			errs = append(errs, fmt.Errorf("model.azure.endpoint is required for the azure provider (set %s)", EnvAzureEndpoint))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid model.provider %q (valid: %s, %s)", c.Model.Provider, ProviderOllama, ProviderAzure))
	}
	if c.ModelID() == "" {
		errs = append(errs, errors.New("model.id is required"))
	}
	if c.Model.NumCtx < 0 {
		errs = append(errs, fmt.Errorf("model.num_ctx must not be negative, got %d", c.Model.NumCtx))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature must be within [0, 2], got %g", c.Model.Temperature))
	}
	if c.Agent.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("agent.history_limit must not be negative, got %d", c.Agent.HistoryLimit))
	}
	if c.Server.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("server.max_sessions must be at least 1, got %d", c.Server.MaxSessions))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, fmt.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers))
	}
	if c.Batch.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("batch.max_attempts must be at least 1, got %d", c.Batch.MaxAttempts))
	}
	for name, v := range map[string]string{
		"model.timeout":           c.Model.Timeout,
		"server.request_timeout":  c.Server.RequestTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"batch.delay":             c.Batch.Delay,
		"batch.task_timeout":      c.Batch.TaskTimeout,
		"launcher.startup_delay":  c.Launcher.StartupDelay,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("invalid logging.level %q (valid: %v)", c.Logging.Level, validLevels))
	}
	return errors.Join(errs...)
}

// ModelID returns the model for the active provider.
func (c Config) ModelID() string {
	if c.Model.Provider == ProviderAzure && c.Model.Azure.Model != "" {
		return c.Model.Azure.Model
	}
	return c.Model.ID
}

// ModelEndpoint returns the endpoint of the active provider.
func (c Config) ModelEndpoint() string {
	if c.Model.Provider == ProviderAzure {
		return c.Model.Azure.Endpoint
	}
	return c.Model.Endpoint
}

// OpenAIBaseURL returns the Chat Completions base URL of the active
// provider: Ollama's /v1 compatibility endpoint, or the Foundry endpoint.
func (c Config) OpenAIBaseURL() string {
	if c.Model.Provider == ProviderAzure {
		return strings.TrimRight(c.Model.Azure.Endpoint, "/")
	}
	base := strings.TrimRight(c.Model.Endpoint, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Duration parses a duration setting, falling back to def when the value
// is empty or invalid.
func Duration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
