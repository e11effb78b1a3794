// Copyright (c) Microsoft. All rights reserved.

// Command ollama-agent runs a tool-calling assistant on a local Ollama
// model (or Azure AI Foundry) with reasoning spans stripped from replies.
//
// Usage:
//
//	ollama-agent chat                     # interactive chat
//	ollama-agent tools                    # chat with the custom tool set
//	ollama-agent run "What is 2 + 2?"     # single task
//	ollama-agent batch --file tasks.txt   # batch of tasks
//	ollama-agent serve                    # REST backend on :8000
//	ollama-agent launch                   # backend and web frontend
//	ollama-agent check                    # setup diagnostics
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/assistant"
	"github.com/local-agents/ollama-agent/config"
	"github.com/local-agents/ollama-agent/logging"
	"github.com/local-agents/ollama-agent/store"
	"github.com/local-agents/ollama-agent/ui"
)

// app carries the state shared by the subcommands.
type app struct {
	configPath string
	model      string
	endpoint   string
	provider   string
	verbose    bool
	logLevel   string

	cfg    config.Config
	logger *zap.Logger
	db     *store.DB
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ollama-agent",
		Short: "Tool-calling assistant for local Ollama models",
		Long: `ollama-agent runs a tool-calling assistant against a local Ollama model
(qwen3:latest by default) or an Azure AI Foundry deployment.

<think> reasoning spans are removed from every reply and code fences are
normalized before they reach you.

Settings come from a YAML file (--config), a .env file and environment
variables such as OLLAMA_HOST and OLLAMA_MODEL, in that order; flags win.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "ollama-agent.yaml", "path to the YAML configuration file")
	flags.StringVarP(&a.model, "model", "m", "", "model ID (overrides OLLAMA_MODEL)")
	flags.StringVar(&a.endpoint, "endpoint", "", "Ollama endpoint (overrides OLLAMA_HOST)")
	flags.StringVar(&a.provider, "provider", "", "model provider: ollama or azure")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log sanitizer activity and debug output")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newChatCmd(a),
		newToolsCmd(a),
		newRunCmd(a),
		newBatchCmd(a),
		newServeCmd(a),
		newLaunchCmd(a),
		newCheckCmd(a),
	)
	return root
}

// setup loads configuration and builds the logger before any subcommand.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.model != "" {
		if cfg.Model.Provider == config.ProviderAzure {
			cfg.Model.Azure.Model = a.model
		} else {
			cfg.Model.ID = a.model
		}
	}
	if a.endpoint != "" {
		cfg.Model.Endpoint = a.endpoint
	}
	if a.provider != "" {
		cfg.Model.Provider = a.provider
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.verbose {
		cfg.Agent.Verbose = true
	}

	logger, _, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Verbose:     cfg.Agent.Verbose,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	logger.Debug("configuration loaded",
		zap.String("config", a.configPath),
		zap.String("provider", cfg.Model.Provider),
		zap.String("model", cfg.ModelID()),
		zap.String("endpoint", cfg.ModelEndpoint()))
	return nil
}

// openStore opens the SQLite store once when a path is configured.
func (a *app) openStore() (*store.DB, error) {
	if a.db != nil || a.cfg.Store.Path == "" {
		return a.db, nil
	}
	db, err := store.Open(a.cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("store opened", zap.String("path", a.cfg.Store.Path))
	a.db = db
	return db, nil
}

// assistant builds the assistant from the loaded configuration, persisting
// sessions when a store is configured.
func (a *app) assistant(opts ...assistant.Option) (*assistant.Assistant, error) {
	db, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if db != nil {
		limit := a.cfg.Agent.HistoryLimit
		opts = append(opts, assistant.WithMessageStoreFactory(func(id string) agent.MessageStore {
			return db.SessionStore(id).WithHistoryLimit(limit)
		}))
	}
	return assistant.New(a.cfg, logging.Slog(a.logger), opts...)
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.logger != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
		a.db = nil
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func printBanner(w io.Writer, asst *assistant.Assistant) {
	fmt.Fprintln(w, ui.TitleStyle.Render("Ollama Agent"))
	fmt.Fprintln(w, ui.KeyValues([][2]string{
		{"Provider", asst.Provider()},
		{"Model", asst.Model()},
		{"Endpoint", asst.Endpoint()},
		{"Tools", fmt.Sprint(asst.Registry().Names())},
	}))
}

func main() {
	a := &app{}
	err := newRootCmd(a).ExecuteContext(context.Background())
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Line(ui.StatusFail, "%v", err))
		os.Exit(1)
	}
}
