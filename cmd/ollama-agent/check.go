// Copyright (c) Microsoft. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/local-agents/ollama-agent/config"
	"github.com/local-agents/ollama-agent/logging"
	"github.com/local-agents/ollama-agent/ollama"
	"github.com/local-agents/ollama-agent/ui"
)

// checkResult is one line of the final summary.
type checkResult struct {
	name string
	ok   bool
}

func newCheckCmd(a *app) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Diagnose the model connection, tools and environment",
		Long: `Verifies that the model backend is reachable and the model is pulled,
builds the assistant and lists its tools, and reports the environment.
With --query a sample question is sent as an end-to-end test.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			out := cmd.OutOrStdout()
			var results []checkResult

			fmt.Fprintln(out, ui.TitleStyle.Render("Ollama Agent Setup Check"))

			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.SectionStyle.Render("Model backend"))
			if a.cfg.Model.Provider == config.ProviderOllama {
				ok, err := checkOllama(cmd, out, a.cfg)
				if err != nil {
					return err
				}
				results = append(results, checkResult{"Ollama connection", ok})
			} else {
				fmt.Fprintln(out, ui.Line(ui.StatusInfo, "Azure AI Foundry at %s, model %s", a.cfg.ModelEndpoint(), a.cfg.ModelID()))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.SectionStyle.Render("Environment"))
			fmt.Fprintln(out, ui.KeyValues(envReport(os.LookupEnv)))

			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.SectionStyle.Render("Assistant"))
			asst, err := a.assistant()
			if err != nil {
				fmt.Fprintln(out, ui.Line(ui.StatusFail, "Failed to create assistant: %v", err))
			} else {
				fmt.Fprintln(out, ui.Line(ui.StatusOK, "Assistant created"))
				printTools(out, asst.Registry())
			}
			results = append(results, checkResult{"Assistant creation", err == nil})

			if query != "" && asst != nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, ui.SectionStyle.Render("Sample query"))
				fmt.Fprintln(out, ui.Line(ui.StatusInfo, "Asking: %q", query))
				start := time.Now()
				answer, err := asst.Ask(ctx, query)
				if err != nil {
					fmt.Fprintln(out, ui.Line(ui.StatusFail, "Query failed: %v", err))
				} else {
					fmt.Fprintln(out, ui.Line(ui.StatusOK, "Answered in %.2fs: %s", time.Since(start).Seconds(), ui.Truncate(answer, 200)))
				}
				results = append(results, checkResult{"Sample query", err == nil})
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.SectionStyle.Render("Summary"))
			failed := false
			for _, r := range results {
				if r.ok {
					fmt.Fprintln(out, ui.Line(ui.StatusOK, "%s: PASS", r.name))
				} else {
					failed = true
					fmt.Fprintln(out, ui.Line(ui.StatusFail, "%s: FAIL", r.name))
				}
			}
			if failed {
				return errors.New("some checks failed")
			}
			fmt.Fprintln(out, ui.SuccessStyle.Render("All checks passed. Run 'ollama-agent chat' to start."))
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "send a sample question, e.g. \"What is 2 + 2?\"")
	return cmd
}

func checkOllama(cmd *cobra.Command, out io.Writer, cfg config.Config) (bool, error) {
	probe, err := ollama.NewProbe(cfg.Model.Endpoint, nil)
	if err != nil {
		return false, err
	}
	report := probe.Check(cmd.Context(), cfg.ModelID())
	if !report.Reachable {
		fmt.Fprintln(out, ui.Line(ui.StatusFail, "Cannot connect to Ollama at %s: %v", report.Endpoint, report.Err))
		fmt.Fprintln(out, ui.MutedStyle.Render("  Make sure Ollama is running: ollama serve"))
		return false, nil
	}

	version := report.Version
	if version == "" {
		version = "unknown version"
	}
	fmt.Fprintln(out, ui.Line(ui.StatusOK, "Ollama is running at %s (%s)", report.Endpoint, version))
	fmt.Fprintln(out, ui.Line(ui.StatusInfo, "Available models: %d", len(report.Models)))
	for _, m := range report.Models {
		detail := m.ParameterSize
		if m.Quantization != "" {
			detail += " " + m.Quantization
		}
		fmt.Fprintf(out, "    - %s %s\n", m.Name, ui.MutedStyle.Render(detail))
	}
	if !report.HasModel {
		fmt.Fprintln(out, ui.Line(ui.StatusFail, "Model %s not found", report.Model))
		fmt.Fprintln(out, ui.MutedStyle.Render("  Run: ollama pull "+report.Model))
		return false, nil
	}
	fmt.Fprintln(out, ui.Line(ui.StatusOK, "Model %s found", report.Model))
	return true, nil
}

var secretEnv = map[string]bool{
	config.EnvAPIKey:   true,
	config.EnvAzureKey: true,
}

// envReport lists the recognized environment variables with secrets masked.
func envReport(lookup func(string) (string, bool)) [][2]string {
	names := []string{
		config.EnvOllamaHost,
		config.EnvOllamaModel,
		config.EnvProvider,
		config.EnvAPIKey,
		config.EnvListenAddr,
		config.EnvVerbose,
		config.EnvStorePath,
		config.EnvAzureEndpoint,
		config.EnvAzureKey,
		config.EnvAzureModel,
	}
	rows := make([][2]string, 0, len(names))
	for _, name := range names {
		v, ok := lookup(name)
		switch {
		case !ok || v == "":
			v = ui.MutedStyle.Render("(not set)")
		case secretEnv[name]:
			v = logging.Mask(v)
		}
		rows = append(rows, [2]string{name, v})
	}
	return rows
}
