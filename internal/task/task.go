// Package task holds the task model and the per-run registry of tasks
// selected for execution.
package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/marcus/bldr/internal/call"
)

// ErrUnknownTask is matched by UnknownTaskError.
var ErrUnknownTask = errors.New("unknown task")

// Definition is a task catalog entry as loaded from configuration.
type Definition struct {
	Description  string      `json:"description,omitempty"`
	RunOnFailure *bool       `json:"runOnFailure,omitempty"`
	Calls        []call.Spec `json:"calls"`
}

// Catalog maps task names to their definitions.
type Catalog map[string]Definition

// Names returns the catalog task names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Task is one named, ordered sequence of calls selected for a run.
type Task struct {
	Name         string
	Description  string
	RunOnFailure bool
	Calls        []call.Spec
}

// New builds a Task from a catalog entry, applying defaults for the
// optional fields.
func New(name string, def Definition) *Task {
	t := &Task{
		Name:        name,
		Description: def.Description,
		Calls:       make([]call.Spec, len(def.Calls)),
	}
	if def.RunOnFailure != nil {
		t.RunOnFailure = *def.RunOnFailure
	}
	copy(t.Calls, def.Calls)
	return t
}

// UnknownTaskError reports a task name missing from the catalog.
type UnknownTaskError struct {
	Name  string
	Known []string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("task `%s` does not exist. Found: %s", e.Name, strings.Join(e.Known, ", "))
}

// Is matches ErrUnknownTask.
func (e *UnknownTaskError) Is(target error) bool {
	return target == ErrUnknownTask
}
