// Copyright (c) Microsoft. All rights reserved.

// Package batch runs a list of prompts through an agent, one result record
// per prompt, with retries, per-task timeouts and an optional worker pool.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SampleTasks is the default batch.
var SampleTasks = []string{
	"Calculate the factorial of 7",
	"What is the square root of 256?",
	"Generate the first 8 prime numbers",
	"Convert 100 degrees Fahrenheit to Celsius",
	"Write a Python function to check if a number is palindrome",
	"Calculate the area of a circle with radius 5",
	"Find the greatest common divisor of 48 and 18",
	"Generate a random password with 12 characters",
	"Calculate compound interest: principal=1000, rate=5%, time=3 years",
	"Sort this list in descending order: [64, 34, 25, 12, 22, 11, 90]",
}

// RunFunc executes a single prompt.
type RunFunc func(ctx context.Context, prompt string) (string, error)

// Result is the record kept for each task.
type Result struct {
	TaskID        int       `json:"task_id"`
	Task          string    `json:"task"`
	Result        string    `json:"result"`
	Error         string    `json:"error,omitempty"`
	ExecutionTime float64   `json:"execution_time"`
	Timestamp     time.Time `json:"timestamp"`
	Status        Status    `json:"status"`
	Attempts      int       `json:"attempts"`
}

// Sink persists the results of a run.
type Sink interface {
	SaveBatchResults(ctx context.Context, runID string, results []Result) error
}

// Run is the outcome of [Runner.Run].
type Run struct {
	ID         string
	StartedAt  time.Time
	Results    []Result
	OutputFile string
}

// Options configures a [Runner].
type Options struct {
	// Workers bounds concurrent tasks. 1 keeps the input order strictly.
	Workers int
	// MaxAttempts is the number of tries per task, at least 1.
	MaxAttempts int
	// Backoff is the wait before the second attempt; it doubles after
	// that up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Delay is the pause a worker takes between two tasks.
	Delay time.Duration
	// TaskTimeout bounds each attempt. Zero means no limit.
	TaskTimeout time.Duration
	// OutputDir receives <OutputPrefix>_YYYYMMDD_HHMMSS.json. Empty disables
	// the file.
	OutputDir    string
	OutputPrefix string
	Sink         Sink
	Logger       *zap.Logger
	// Progress is called when a task starts and when it finishes. Calls
	// may come from several goroutines when Workers > 1.
	Progress func(total int, r Result)
}

// DefaultOptions mirrors the sequential behavior of the interactive tool.
func DefaultOptions() Options {
	return Options{
		Workers:      1,
		MaxAttempts:  1,
		Backoff:      time.Second,
		MaxBackoff:   30 * time.Second,
		Delay:        time.Second,
		OutputPrefix: "batch_results",
	}
}

// Runner executes batches.
type Runner struct {
	run  RunFunc
	opts Options
	now  func() time.Time
}

// NewRunner creates a Runner. Zero values in opts fall back to
// [DefaultOptions] where a zero would be invalid.
func NewRunner(run RunFunc, opts Options) *Runner {
	def := DefaultOptions()
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.OutputPrefix == "" {
		opts.OutputPrefix = def.OutputPrefix
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{run: run, opts: opts, now: time.Now}
}

// Run processes tasks and returns one result per task in input order.
// Cancelling ctx marks every unfinished task interrupted; the partial
// results are still written and returned together with ctx's error.
func (r *Runner) Run(ctx context.Context, tasks []string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		Results:   make([]Result, len(tasks)),
	}
	log := r.opts.Logger.With(zap.String("run_id", run.ID))
	log.Info("batch started", zap.Int("tasks", len(tasks)), zap.Int("workers", r.opts.Workers))

	var progressMu sync.Mutex
	progress := func(res Result) {
		if r.opts.Progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		r.opts.Progress(len(tasks), res)
	}

	// Tasks are independent; errgroup is used only for its limit.
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, prompt := range tasks {
		t := &task{id: i + 1, prompt: prompt, status: StatusPending}
		if ctx.Err() != nil {
			run.Results[i] = r.interrupted(t, ctx.Err())
			continue
		}
		last := i == len(tasks)-1
		g.Go(func() error {
			res := r.runTask(ctx, t, progress, log)
			run.Results[i] = res
			progress(res)
			if !last && r.opts.Delay > 0 {
				sleep(ctx, r.opts.Delay)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := r.persist(context.WithoutCancel(ctx), run); err != nil {
		return run, err
	}
	s := Summarize(run.Results)
	log.Info("batch finished",
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("interrupted", s.Interrupted),
		zap.String("output", run.OutputFile))
	return run, ctx.Err()
}

func (r *Runner) runTask(ctx context.Context, t *task, progress func(Result), log *zap.Logger) Result {
	if ctx.Err() != nil {
		return r.interrupted(t, ctx.Err())
	}
	_ = t.transition(StatusRunning)
	progress(Result{TaskID: t.id, Task: t.prompt, Status: t.status, Timestamp: r.now()})

	start := time.Now()
	var lastErr error
	for t.attempts < r.opts.MaxAttempts {
		if t.attempts > 0 {
			wait := r.backoff(t.attempts)
			log.Debug("retrying task", zap.Int("task_id", t.id), zap.Int("attempt", t.attempts+1), zap.Duration("wait", wait))
			if !sleep(ctx, wait) {
				break
			}
		}
		t.attempts++

		out, err := r.attempt(ctx, t.prompt)
		if err == nil {
			_ = t.transition(StatusSucceeded)
			return r.result(t, out, nil, time.Since(start))
		}
		lastErr = err
		log.Warn("task attempt failed", zap.Int("task_id", t.id), zap.Int("attempt", t.attempts), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		_ = t.transition(StatusInterrupted)
		if lastErr == nil {
			lastErr = ctx.Err()
		}
		return r.result(t, "", lastErr, time.Since(start))
	}
	_ = t.transition(StatusFailed)
	return r.result(t, "", lastErr, time.Since(start))
}

func (r *Runner) attempt(ctx context.Context, prompt string) (string, error) {
	if r.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.TaskTimeout)
		defer cancel()
	}
	out, err := r.run(ctx, prompt)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("task timed out after %s: %w", r.opts.TaskTimeout, err)
	}
	return out, err
}

func (r *Runner) backoff(attempt int) time.Duration {
	d := r.opts.Backoff * time.Duration(math.Pow(2, float64(attempt-1)))
	if d > r.opts.MaxBackoff || d < 0 {
		return r.opts.MaxBackoff
	}
	return d
}

func (r *Runner) interrupted(t *task, cause error) Result {
	_ = t.transition(StatusInterrupted)
	return r.result(t, "", cause, 0)
}

func (r *Runner) result(t *task, out string, err error, elapsed time.Duration) Result {
	res := Result{
		TaskID:        t.id,
		Task:          t.prompt,
		Result:        out,
		ExecutionTime: math.Round(elapsed.Seconds()*100) / 100,
		Timestamp:     r.now(),
		Status:        t.status,
		Attempts:      t.attempts,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (r *Runner) persist(ctx context.Context, run *Run) error {
	var errs []error
	if r.opts.OutputDir != "" {
		name := fmt.Sprintf("%s_%s.json", r.opts.OutputPrefix, run.StartedAt.Format("20060102_150405"))
		path := filepath.Join(r.opts.OutputDir, name)
		if err := WriteResults(path, run.Results); err != nil {
			errs = append(errs, err)
		} else {
			run.OutputFile = path
		}
	}
	if r.opts.Sink != nil {
		if err := r.opts.Sink.SaveBatchResults(ctx, run.ID, run.Results); err != nil {
			errs = append(errs, fmt.Errorf("save batch results: %w", err))
		}
	}
	return errors.Join(errs...)
}

// WriteResults writes results as indented JSON.
func WriteResults(path string, results []Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// ReadTasks reads one task per line. Blank lines and lines starting with
// '#' are skipped.
func ReadTasks(r io.Reader) ([]string, error) {
	var tasks []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tasks = append(tasks, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return tasks, nil
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
