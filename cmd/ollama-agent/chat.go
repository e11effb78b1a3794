// Copyright (c) Microsoft. All rights reserved.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/local-agents/ollama-agent/agent"
	"github.com/local-agents/ollama-agent/assistant"
	"github.com/local-agents/ollama-agent/tools"
	"github.com/local-agents/ollama-agent/ui"
)

var chatExamples = []string{
	"Calculate the 10th Fibonacci number",
	"What is the square root of 144?",
	"Write a Python function to reverse a string and test it with 'hello world'",
	"Generate a random number between 1 and 100 and tell me if it's even or odd",
}

var toolExamples = []string{
	"What's the weather like in Tokyo?",
	"Analyze this text: 'The quick brown fox jumps over the lazy dog. This is a sample sentence for testing.'",
	"Shorten this URL: https://www.example.com/very/long/path/to/some/resource",
	"Calculate the factorial of 5 and then analyze the result as text",
}

func newChatCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant interactively",
		Long: `Starts an interactive conversation. Type 'quit', 'exit' or 'q' to leave.
Prefix a message with 'stream ' to stream the reply as it is generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asst, err := a.assistant()
			if err != nil {
				return err
			}
			return a.repl(cmd, asst, chatExamples, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume a stored conversation by ID")
	return cmd
}

func newToolsCmd(a *app) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Chat with the custom tool set enabled",
		Long: `Enables the custom tools (weather, text analyzer, URL shortener) next to
the base tools, lists them and starts an interactive conversation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.Agent.CustomTools = true
			asst, err := a.assistant(assistant.WithToolSets(tools.Sets...))
			if err != nil {
				return err
			}
			printTools(cmd.OutOrStdout(), asst.Registry())
			if list {
				return nil
			}
			return a.repl(cmd, asst, toolExamples, "")
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list the tools and exit")
	return cmd
}

func printTools(w io.Writer, reg *agent.Registry) {
	fmt.Fprintln(w, ui.SectionStyle.Render(fmt.Sprintf("Available tools (%d)", reg.Len())))
	for _, name := range reg.Names() {
		t, _ := reg.Get(name)
		fmt.Fprintln(w, ui.Line(ui.StatusInfo, "%s: %s", name, ui.Truncate(t.Description(), 80)))
	}
}

// repl runs the interactive loop until EOF or a quit command.
func (a *app) repl(cmd *cobra.Command, asst *assistant.Assistant, examples []string, sessionID string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	session := asst.NewSession()
	if sessionID != "" {
		session = asst.ResumeSession(sessionID)
	}

	printBanner(out, asst)
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.SectionStyle.Render("Example tasks you can try"))
	for i, task := range examples {
		fmt.Fprintf(out, "%d. %s\n", i+1, task)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.MutedStyle.Render("Session "+session.ID()+". Type 'quit' to exit, prefix with 'stream ' to stream."))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "\n"+ui.PromptStyle.Render("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		if prompt, ok := strings.CutPrefix(input, "stream "); ok {
			a.streamTurn(ctx, out, asst, session, prompt)
		} else {
			a.turn(ctx, out, asst, session, input)
		}
	}
	return scanner.Err()
}

func (a *app) turn(ctx context.Context, out io.Writer, asst *assistant.Assistant, session *agent.Session, input string) {
	fmt.Fprintln(out, ui.MutedStyle.Render("Thinking..."))
	resp, err := asst.Run(ctx, []agent.Message{agent.NewUserMessage(input)}, agent.WithSession(session))
	if err != nil {
		a.logger.Debug("chat turn failed", zap.Error(err))
		fmt.Fprintln(out, ui.Line(ui.StatusFail, "Error: %v", err))
		return
	}
	if r := resp.Reasoning(); r != "" && a.cfg.Agent.Verbose {
		fmt.Fprintln(out, ui.ReasoningStyle.Render(r))
	}
	fmt.Fprintf(out, "%s %s\n", ui.PromptStyle.Render("Agent:"), resp.Text())
	printUsage(out, resp.Usage)
}

func (a *app) streamTurn(ctx context.Context, out io.Writer, asst *assistant.Assistant, session *agent.Session, input string) {
	rs, err := asst.RunStream(ctx, []agent.Message{agent.NewUserMessage(input)}, agent.WithSession(session))
	if err != nil {
		fmt.Fprintln(out, ui.Line(ui.StatusFail, "Error: %v", err))
		return
	}
	defer rs.Close()

	fmt.Fprint(out, ui.PromptStyle.Render("Agent:")+" ")
	for {
		update, ok, err := rs.Next(ctx)
		if err != nil {
			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.Line(ui.StatusFail, "Stream error: %v", err))
			return
		}
		if !ok {
			break
		}
		fmt.Fprint(out, update.Text())
	}
	fmt.Fprintln(out)

	resp, err := rs.FinalResponse(ctx)
	if err != nil {
		a.logger.Warn("stream final response", zap.Error(err))
		return
	}
	printUsage(out, resp.Usage)
}

func printUsage(w io.Writer, u agent.UsageDetails) {
	if u.TotalTokens == 0 {
		return
	}
	fmt.Fprintln(w, ui.MutedStyle.Render(fmt.Sprintf("  [tokens: %d in, %d out]", u.InputTokens, u.OutputTokens)))
}
