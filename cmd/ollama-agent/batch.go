// Copyright (c) Microsoft. All rights reserved.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/local-agents/ollama-agent/batch"
	"github.com/local-agents/ollama-agent/config"
	"github.com/local-agents/ollama-agent/ui"
)

type batchFlags struct {
	file        string
	out         string
	workers     int
	attempts    int
	timeout     time.Duration
	interactive bool
}

func newBatchCmd(a *app) *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a batch of tasks and save the results as JSON",
		Long: `Runs every task through a fresh conversation and writes the results to
batch_results_YYYYMMDD_HHMMSS.json. Tasks come from --file (one per line,
'#' starts a comment), from stdin with --interactive, or the built-in
sample set. Ctrl+C marks the remaining tasks interrupted and still saves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBatch(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "file with one task per line")
	flags.StringVarP(&f.out, "out", "o", "", "directory for the results file")
	flags.IntVarP(&f.workers, "workers", "w", 0, "tasks run concurrently")
	flags.IntVar(&f.attempts, "attempts", 0, "tries per task")
	flags.DurationVar(&f.timeout, "timeout", 0, "time limit per attempt")
	flags.BoolVarP(&f.interactive, "interactive", "i", false, "enter tasks on stdin")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, f batchFlags) error {
	ctx, stop := signalContext(cmd)
	defer stop()
	out := cmd.OutOrStdout()

	tasks, prefix, err := batchTasks(cmd.InOrStdin(), out, f)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(out, ui.Line(ui.StatusWarn, "No tasks to run"))
		return nil
	}

	asst, err := a.assistant()
	if err != nil {
		return err
	}

	opts := batchOptions(a.cfg.Batch, f)
	opts.OutputPrefix = prefix
	opts.Logger = a.logger
	if a.db != nil {
		opts.Sink = a.db
	}
	opts.Progress = func(total int, r batch.Result) { printProgress(out, total, r) }

	fmt.Fprintln(out, ui.TitleStyle.Render(fmt.Sprintf("Processing %d tasks with %s", len(tasks), asst.Model())))
	runner := batch.NewRunner(func(ctx context.Context, prompt string) (string, error) {
		return asst.Ask(ctx, prompt)
	}, opts)
	run, err := runner.Run(ctx, tasks)
	if run != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, batch.Summarize(run.Results).Report())
		if run.OutputFile != "" {
			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.Line(ui.StatusOK, "Results saved to %s", run.OutputFile))
		}
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, ui.Line(ui.StatusWarn, "Batch interrupted"))
		return nil
	}
	return err
}

func batchOptions(cfg config.BatchConfig, f batchFlags) batch.Options {
	opts := batch.DefaultOptions()
	opts.Workers = cfg.Workers
	opts.MaxAttempts = cfg.MaxAttempts
	opts.Delay = config.Duration(cfg.Delay, opts.Delay)
	opts.TaskTimeout = config.Duration(cfg.TaskTimeout, 0)
	opts.OutputDir = cfg.OutputDir
	if f.workers > 0 {
		opts.Workers = f.workers
	}
	if f.attempts > 0 {
		opts.MaxAttempts = f.attempts
	}
	if f.timeout > 0 {
		opts.TaskTimeout = f.timeout
	}
	if f.out != "" {
		opts.OutputDir = f.out
	}
	return opts
}

// batchTasks returns the tasks to run and the results file prefix.
func batchTasks(in io.Reader, out io.Writer, f batchFlags) ([]string, string, error) {
	switch {
	case f.file != "":
		file, err := os.Open(f.file)
		if err != nil {
			return nil, "", fmt.Errorf("open tasks: %w", err)
		}
		defer file.Close()
		tasks, err := batch.ReadTasks(file)
		return tasks, "batch_results", err
	case f.interactive:
		tasks, err := promptTasks(in, out)
		return tasks, "custom_batch", err
	default:
		return batch.SampleTasks, "batch_results", nil
	}
}

func promptTasks(in io.Reader, out io.Writer) ([]string, error) {
	fmt.Fprintln(out, "Enter your tasks (one per line). Press Enter on an empty line to finish.")
	var tasks []string
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Task %d: ", len(tasks)+1)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		task := strings.TrimSpace(scanner.Text())
		if task == "" {
			break
		}
		tasks = append(tasks, task)
	}
	return tasks, scanner.Err()
}

func printProgress(w io.Writer, total int, r batch.Result) {
	switch r.Status {
	case batch.StatusRunning:
		fmt.Fprintf(w, "\n[%d/%d] %s\n", r.TaskID, total, ui.Truncate(r.Task, 70))
	case batch.StatusSucceeded:
		fmt.Fprintln(w, ui.Line(ui.StatusOK, "Completed in %.2fs", r.ExecutionTime))
		fmt.Fprintln(w, ui.MutedStyle.Render("  "+ui.Truncate(strings.ReplaceAll(r.Result, "\n", " "), 100)))
	case batch.StatusFailed:
		fmt.Fprintln(w, ui.Line(ui.StatusFail, "Failed after %d attempt(s): %s", r.Attempts, r.Error))
	case batch.StatusInterrupted:
		fmt.Fprintln(w, ui.Line(ui.StatusWarn, "Task %d interrupted", r.TaskID))
	}
}
