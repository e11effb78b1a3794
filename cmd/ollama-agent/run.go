// Copyright (c) Microsoft. All rights reserved.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/ui"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		sessionID string
		thinking  bool
	)
	cmd := &cobra.Command{
		Use:   "run <task...>",
		Short: "Run a single task and print the result",
		Example: `  ollama-agent run "What is the square root of 144?"
  ollama-agent run --session notes "Remember that my name is Ada"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			asst, err := a.assistant()
			if err != nil {
				return err
			}
			task := strings.Join(args, " ")

			var opts []agent.RunOption
			if sessionID != "" {
				opts = append(opts, agent.WithSession(asst.ResumeSession(sessionID)))
			}

			start := time.Now()
			resp, err := asst.Run(ctx, []agent.Message{agent.NewUserMessage(task)}, opts...)
			if err != nil {
				return err
			}
			a.logger.Info("task completed",
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("output_tokens", resp.Usage.OutputTokens))

			out := cmd.OutOrStdout()
			if r := resp.Reasoning(); thinking && r != "" {
				fmt.Fprintln(out, ui.ReasoningStyle.Render(r))
			}
			text := resp.Text()
			if text == "" {
				return fmt.Errorf("model returned an empty response")
			}
			fmt.Fprintln(out, text)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue a stored conversation by ID")
	cmd.Flags().BoolVar(&thinking, "thinking", false, "print the model's reasoning before the answer")
	return cmd
}
