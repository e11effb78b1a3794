// Copyright (c) Microsoft. All rights reserved.

package batch

import "fmt"

// Status is the lifecycle state of a task. The JSON values of the terminal
// states match the historical result file format.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "success"
	StatusFailed      Status = "error"
	StatusInterrupted Status = "interrupted"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusInterrupted},
	StatusRunning: {StatusSucceeded, StatusFailed, StatusInterrupted},
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusInterrupted
}

// CanTransition reports whether a task may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// task is the mutable state of one batch entry. It is owned by a single
// worker goroutine at a time.
type task struct {
	id       int
	prompt   string
	status   Status
	attempts int
}

func (t *task) transition(next Status) error {
	if !t.status.CanTransition(next) {
		return fmt.Errorf("task %d: invalid transition %s -> %s", t.id, t.status, next)
	}
	t.status = next
	return nil
}
