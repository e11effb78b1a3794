// Copyright (c) Microsoft. All rights reserved.

package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echo(ctx context.Context, prompt string) (string, error) {
	return "done: " + prompt, nil
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusRunning))
	assert.True(t, StatusPending.CanTransition(StatusInterrupted))
	assert.True(t, StatusRunning.CanTransition(StatusSucceeded))
	assert.False(t, StatusPending.CanTransition(StatusSucceeded))
	assert.False(t, StatusSucceeded.CanTransition(StatusRunning))
	assert.False(t, StatusFailed.CanTransition(StatusInterrupted))
	assert.True(t, StatusInterrupted.Terminal())
	assert.False(t, StatusRunning.Terminal())

	tk := &task{id: 1, status: StatusPending}
	require.Error(t, tk.transition(StatusFailed))
	require.NoError(t, tk.transition(StatusRunning))
}

func TestRunSequential(t *testing.T) {
	dir := t.TempDir()
	var order []string
	var seen []Status
	r := NewRunner(func(ctx context.Context, p string) (string, error) {
		order = append(order, p)
		if p == "bad" {
			return "", errors.New("model exploded")
		}
		return "ok " + p, nil
	}, Options{
		OutputDir: dir,
		Progress:  func(total int, r Result) { seen = append(seen, r.Status) },
	})
	r.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	run, err := r.Run(context.Background(), []string{"a", "bad", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bad", "c"}, order)
	require.Len(t, run.Results, 3)

	assert.Equal(t, 1, run.Results[0].TaskID)
	assert.Equal(t, StatusSucceeded, run.Results[0].Status)
	assert.Equal(t, "ok a", run.Results[0].Result)
	assert.Equal(t, StatusFailed, run.Results[1].Status)
	assert.Equal(t, "model exploded", run.Results[1].Error)
	assert.Equal(t, 1, run.Results[1].Attempts)
	assert.Equal(t, StatusSucceeded, run.Results[2].Status)
	assert.Equal(t, []Status{
		StatusRunning, StatusSucceeded,
		StatusRunning, StatusFailed,
		StatusRunning, StatusSucceeded,
	}, seen)

	assert.Equal(t, filepath.Join(dir, "batch_results_20240102_030405.json"), run.OutputFile)
	data, err := os.ReadFile(run.OutputFile)
	require.NoError(t, err)
	var written []map[string]any
	require.NoError(t, json.Unmarshal(data, &written))
	require.Len(t, written, 3)
	assert.Equal(t, "error", written[1]["status"])
	assert.Equal(t, "bad", written[1]["task"])
	assert.True(t, strings.Contains(string(data), "\n  {"), "indented output")
}

func TestRunRetries(t *testing.T) {
	var calls atomic.Int32
	r := NewRunner(func(ctx context.Context, p string) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("flaky")
		}
		return "finally", nil
	}, Options{MaxAttempts: 3, Backoff: time.Millisecond})

	run, err := r.Run(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Results[0].Status)
	assert.Equal(t, 3, run.Results[0].Attempts)
	assert.Empty(t, run.Results[0].Error)
	assert.Empty(t, run.OutputFile)
}

func TestRunRetriesExhausted(t *testing.T) {
	r := NewRunner(func(ctx context.Context, p string) (string, error) {
		return "", errors.New("always")
	}, Options{MaxAttempts: 2, Backoff: time.Millisecond})

	run, err := r.Run(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Results[0].Status)
	assert.Equal(t, 2, run.Results[0].Attempts)
}

func TestRunTaskTimeout(t *testing.T) {
	r := NewRunner(func(ctx context.Context, p string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, Options{TaskTimeout: 10 * time.Millisecond})

	run, err := r.Run(context.Background(), []string{"slow"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Results[0].Status)
	assert.Contains(t, run.Results[0].Error, "timed out")
}

func TestRunCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(func(ctx context.Context, p string) (string, error) {
		if p == "second" {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}, Options{})

	run, err := r.Run(ctx, []string{"first", "second", "third"})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, run.Results, 3)
	assert.Equal(t, StatusSucceeded, run.Results[0].Status)
	assert.Equal(t, StatusInterrupted, run.Results[1].Status)
	assert.Equal(t, StatusInterrupted, run.Results[2].Status)
	assert.Equal(t, 0, run.Results[2].Attempts)
}

func TestRunWorkers(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	r := NewRunner(func(ctx context.Context, p string) (string, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return p, nil
	}, Options{Workers: 2})

	tasks := []string{"1", "2", "3", "4", "5", "6"}
	run, err := r.Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
	for i, res := range run.Results {
		assert.Equal(t, i+1, res.TaskID)
		assert.Equal(t, tasks[i], res.Result)
	}
}

type memSink struct {
	runID   string
	results []Result
}

func (s *memSink) SaveBatchResults(_ context.Context, runID string, results []Result) error {
	s.runID = runID
	s.results = results
	return nil
}

func TestRunSink(t *testing.T) {
	sink := &memSink{}
	r := NewRunner(echo, Options{Sink: sink})
	run, err := r.Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, run.ID, sink.runID)
	assert.Len(t, sink.results, 2)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Result{
		{TaskID: 1, Status: StatusSucceeded, ExecutionTime: 1.5},
		{TaskID: 2, Status: StatusSucceeded, ExecutionTime: 2.5},
		{TaskID: 3, Status: StatusFailed, Task: "bad", Error: "boom"},
		{TaskID: 4, Status: StatusInterrupted},
	})
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Interrupted)
	assert.InDelta(t, 50.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, s.AverageTime, 1e-9)
	require.Len(t, s.Failures, 1)

	report := ansi.Strip(s.Report())
	assert.Contains(t, report, "Success Rate:")
	assert.Contains(t, report, "50.0%")
	assert.Contains(t, report, "Task 3: bad")
	assert.Contains(t, report, "Error: boom")

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestReadTasks(t *testing.T) {
	tasks, err := ReadTasks(strings.NewReader("# header\nfirst\n\n  second  \n#skip\nthird"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, tasks)
}
