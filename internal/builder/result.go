package builder

import (
	"errors"
	"fmt"
	"time"
)

// ErrCallFailed is matched by CallFailure.
var ErrCallFailed = errors.New("call failed")

// RunStatus is the state of a build run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// TaskStatus is the outcome of a single task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
)

// CallFailure records a call that reported failure. Recovered is set when
// the owning task allows the run to continue.
type CallFailure struct {
	Task      string `json:"task"`
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	Recovered bool   `json:"recovered"`
	Err       error  `json:"-"`
}

func (f *CallFailure) Error() string {
	return fmt.Sprintf("task %q call #%d (%s) failed: %s", f.Task, f.Index+1, f.Type, f.Reason)
}

// Is matches ErrCallFailed.
func (f *CallFailure) Is(target error) bool {
	return target == ErrCallFailed
}

// Unwrap returns the error reported by the call.
func (f *CallFailure) Unwrap() error {
	return f.Err
}

// TaskResult holds the outcome of one task.
type TaskResult struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      TaskStatus     `json:"status"`
	Calls       int            `json:"calls"`
	Executed    int            `json:"executed"`
	Failures    []*CallFailure `json:"failures,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// Result is the outcome of a build run. Fatal is the failure that aborted
// the run, if any; Failures holds every failure including recovered ones.
type Result struct {
	Profile   string         `json:"profile,omitempty"`
	Status    RunStatus      `json:"status"`
	Tasks     []TaskResult   `json:"tasks"`
	Failures  []*CallFailure `json:"failures,omitempty"`
	Fatal     *CallFailure   `json:"fatal,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
}

// Succeeded reports whether the run finished without a fatal failure.
// Recovered failures may still be present in Failures.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == RunSucceeded
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Recovered returns the failures that did not abort the run.
func (r *Result) Recovered() []*CallFailure {
	var out []*CallFailure
	for _, f := range r.Failures {
		if f.Recovered {
			out = append(out, f)
		}
	}
	return out
}

// Task returns the result for the named task.
func (r *Result) Task(name string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskResult{}, false
}
