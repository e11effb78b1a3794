// Copyright (c) Microsoft. All rights reserved.

package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/local-agents/ollama-agent/config"
	"github.com/local-agents/ollama-agent/launcher"
	"github.com/local-agents/ollama-agent/logging"
	"github.com/local-agents/ollama-agent/ollama"
	"github.com/local-agents/ollama-agent/server"
	"github.com/local-agents/ollama-agent/ui"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API used by the web frontend",
		Long: `Starts the REST backend: GET /, /health and /status, POST /chat,
/chat/stop and /invoke. The server still starts when the assistant cannot
be built; it then reports itself degraded and rejects chat requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			if addr != "" {
				a.cfg.Server.ListenAddr = addr
			}

			var runner server.Runner
			asst, err := a.assistant()
			if err != nil {
				a.logger.Error("assistant unavailable", zap.Error(err))
			} else {
				runner = asst
			}

			var health server.HealthChecker
			if a.cfg.Model.Provider == config.ProviderOllama {
				probe, err := ollama.NewProbe(a.cfg.Model.Endpoint, nil)
				if err != nil {
					return err
				}
				health = probe
			}

			srvCfg := server.Config{
				Addr:            a.cfg.Server.ListenAddr,
				APIKey:          a.cfg.Server.APIKey,
				CORSOrigins:     a.cfg.Server.CORSOrigins,
				RequestTimeout:  config.Duration(a.cfg.Server.RequestTimeout, 5*time.Minute),
				ShutdownTimeout: config.Duration(a.cfg.Server.ShutdownTimeout, 10*time.Second),
				MaxSessions:     a.cfg.Server.MaxSessions,
				Model:           a.cfg.ModelID(),
				Endpoint:        a.cfg.ModelEndpoint(),
			}
			if asst != nil {
				srvCfg.Card = server.CardFromTools(asst.Name(), asst.Description(), asst.Registry().Tools())
			}
			if srvCfg.APIKey == "" {
				a.logger.Warn("AGENT_API_KEY not set, /invoke is unauthenticated")
			} else {
				a.logger.Info("invoke protected", zap.String("api_key", logging.Mask(srvCfg.APIKey)))
			}
			printEndpoints(cmd.OutOrStdout(), localURL(srvCfg.Addr))

			return server.New(srvCfg, runner, health, a.logger).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8000)")
	return cmd
}

func printEndpoints(w io.Writer, base string) {
	fmt.Fprintln(w, ui.TitleStyle.Render("Ollama Agent API"))
	fmt.Fprintln(w, ui.KeyValues([][2]string{
		{"API", base + "/"},
		{"Health", base + "/health"},
		{"Status", base + "/status"},
		{"Chat", base + "/chat (POST)"},
		{"Invoke", base + "/invoke (POST)"},
		{"Agent Card", base + "/.well-known/agent.json"},
	}))
}

// localURL turns a listen address into a URL a browser on this machine
// can open.
func localURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func newLaunchCmd(a *app) *cobra.Command {
	var skipInstall bool
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the REST backend and the web frontend together",
		Long: `Checks for Node.js and the frontend project, installs its dependencies
when node_modules is missing, then starts "ollama-agent serve" and, after a
short delay, "npm run dev". Ctrl+C stops both; so does either one exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			out := cmd.OutOrStdout()

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}
			var pinger launcher.Pinger
			if a.cfg.Model.Provider == config.ProviderOllama {
				probe, err := ollama.NewProbe(a.cfg.Model.Endpoint, nil)
				if err != nil {
					return err
				}
				pinger = probe
			}

			l := launcher.New(launcher.Config{
				UIDir:        a.cfg.Launcher.UIDir,
				Backend:      launcher.Command{Name: exe, Args: backendArgs(a)},
				StartupDelay: config.Duration(a.cfg.Launcher.StartupDelay, 3*time.Second),
				Output:       out,
			}, pinger, a.logger)

			fmt.Fprintln(out, ui.TitleStyle.Render("Ollama Agent Chat UI Launcher"))
			checks, err := l.CheckRequirements(ctx)
			for _, c := range checks {
				fmt.Fprintln(out, ui.Line(checkStatus(c.Severity), "%s", c.Detail))
			}
			if err != nil {
				return err
			}

			if !skipInstall {
				installed, err := l.InstallDependencies(ctx)
				if err != nil {
					return err
				}
				if installed {
					fmt.Fprintln(out, ui.Line(ui.StatusOK, "Frontend dependencies installed"))
				}
			}

			fmt.Fprintln(out, ui.KeyValues([][2]string{
				{"Backend", localURL(a.cfg.Server.ListenAddr)},
				{"Frontend", a.cfg.Launcher.FrontendURL},
			}))
			fmt.Fprintln(out, ui.MutedStyle.Render("Press Ctrl+C to stop both servers"))
			return l.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipInstall, "skip-install", false, "do not run npm install")
	return cmd
}

// backendArgs forwards the flags that shape the backend's configuration.
func backendArgs(a *app) []string {
	args := []string{"serve", "--config", a.configPath}
	if a.model != "" {
		args = append(args, "--model", a.model)
	}
	if a.endpoint != "" {
		args = append(args, "--endpoint", a.endpoint)
	}
	if a.provider != "" {
		args = append(args, "--provider", a.provider)
	}
	if a.verbose {
		args = append(args, "--verbose")
	}
	if a.logLevel != "" {
		args = append(args, "--log-level", strings.ToLower(a.logLevel))
	}
	return args
}

func checkStatus(s launcher.Severity) ui.Status {
	switch s {
	case launcher.SeverityOK:
		return ui.StatusOK
	case launcher.SeverityWarning:
		return ui.StatusWarn
	default:
		return ui.StatusFail
	}
}
