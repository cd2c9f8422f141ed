// Package builder runs the tasks selected for a build. Tasks execute one at
// a time in registry order and their calls execute one at a time in
// declaration order; lifecycle events are delivered to registered handlers
// at every boundary.
package builder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/marcus/bldr/internal/call"
	"github.com/marcus/bldr/internal/logging"
	"github.com/marcus/bldr/internal/profile"
	"github.com/marcus/bldr/internal/task"
)

// Request selects what a build runs. A non-empty Tasks list is used verbatim
// and Profile is ignored.
type Request struct {
	Profile string
	Tasks   []string
}

// Builder orchestrates build runs.
type Builder struct {
	calls    *call.Registry
	tasks    task.Catalog
	profiles profile.Catalog
	out      io.Writer
	workDir  string
	services call.Services
	logger   *logging.Logger
	events   dispatcher
	status   RunStatus
}

// Option configures a Builder.
type Option func(*Builder)

// WithCalls sets the registry used to construct calls.
func WithCalls(r *call.Registry) Option {
	return func(b *Builder) {
		b.calls = r
	}
}

// WithTasks sets the task catalog.
func WithTasks(c task.Catalog) Option {
	return func(b *Builder) {
		b.tasks = c
	}
}

// WithProfiles sets the profile catalog.
func WithProfiles(c profile.Catalog) Option {
	return func(b *Builder) {
		b.profiles = c
	}
}

// WithOutput sets the sink calls write their output to.
func WithOutput(w io.Writer) Option {
	return func(b *Builder) {
		b.out = w
	}
}

// WithWorkDir sets the working directory handed to calls.
func WithWorkDir(dir string) Option {
	return func(b *Builder) {
		b.workDir = dir
	}
}

// WithServices sets the host services calls may invoke.
func WithServices(s call.Services) Option {
	return func(b *Builder) {
		b.services = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithEventHandler registers an event handler. Handlers run in the order
// they were registered.
func WithEventHandler(h EventHandler) Option {
	return func(b *Builder) {
		b.events.add(h)
	}
}

// New creates a builder with the given options.
func New(opts ...Option) *Builder {
	b := &Builder{
		calls:  call.NewRegistry(),
		out:    io.Discard,
		logger: logging.Component("builder"),
		status: RunIdle,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.events.logger = b.logger
	return b
}

// Subscribe registers an additional event handler.
func (b *Builder) Subscribe(h EventHandler) {
	b.events.add(h)
}

// Status returns the state of the most recent run.
func (b *Builder) Status() RunStatus {
	return b.status
}

// Plan resolves a request into a populated task registry without running
// anything. Unknown profiles, unknown tasks and cyclic profile references
// are reported here.
func (b *Builder) Plan(req Request) (*task.Registry, error) {
	reg := task.NewRegistry(b.tasks)

	names := req.Tasks
	if len(names) == 0 {
		resolved, err := profile.NewResolver(b.profiles).Resolve(req.Profile)
		if err != nil {
			return nil, err
		}
		names = resolved
	}

	if err := reg.AddAll(names); err != nil {
		return nil, err
	}
	return reg, nil
}

// Build plans and runs a request. Profile builds are wrapped in
// EventPreProfile/EventPostProfile; explicit task lists are not. Planning
// errors are returned before any task executes.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	reg, err := b.Plan(req)
	if err != nil {
		b.logger.ErrorCtx("build plan failed", map[string]any{
			"profile": req.Profile,
			"tasks":   req.Tasks,
			"error":   err.Error(),
		})
		return nil, err
	}

	if len(req.Tasks) > 0 {
		return b.RunTasks(ctx, reg)
	}

	b.events.emit(Event{Type: EventPreProfile, Profile: req.Profile, Starting: true})
	result, runErr := b.RunTasks(ctx, reg)
	result.Profile = req.Profile

	post := Event{Type: EventPostProfile, Profile: req.Profile, Starting: false, Duration: result.Duration()}
	if runErr != nil {
		post.Error = runErr.Error()
	}
	b.events.emit(post)

	return result, runErr
}

// runContext is the state of one in-flight run.
type runContext struct {
	registry *task.Registry
	result   *Result
}

// RunTasks executes every task in reg in order. A failing call aborts the
// run unless its task has RunOnFailure set, in which case the failure is
// recorded and execution continues. The returned Result is never nil; the
// error is the fatal *CallFailure or the context error that stopped the run.
func (b *Builder) RunTasks(ctx context.Context, reg *task.Registry) (*Result, error) {
	rc := &runContext{
		registry: reg,
		result: &Result{
			Status:    RunRunning,
			Tasks:     make([]TaskResult, 0, reg.Len()),
			StartTime: time.Now(),
		},
	}
	b.status = RunRunning
	b.logger.InfoCtx("build started", map[string]any{"tasks": reg.Names()})

	var runErr error
	for _, t := range reg.Tasks() {
		if runErr != nil {
			rc.result.Tasks = append(rc.result.Tasks, skippedResult(t))
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("build interrupted before task %q: %w", t.Name, err)
			rc.result.Tasks = append(rc.result.Tasks, skippedResult(t))
			continue
		}

		tr, err := b.runTask(ctx, rc, t)
		rc.result.Tasks = append(rc.result.Tasks, tr)
		if err != nil {
			runErr = err
		}
	}

	rc.result.EndTime = time.Now()
	if runErr != nil {
		rc.result.Status = RunFailed
	} else {
		rc.result.Status = RunSucceeded
	}
	b.status = rc.result.Status

	fields := map[string]any{
		"status":    string(rc.result.Status),
		"duration":  rc.result.Duration().String(),
		"failures":  len(rc.result.Failures),
		"recovered": len(rc.result.Recovered()),
	}
	if runErr != nil {
		fields["error"] = runErr.Error()
		b.logger.ErrorCtx("build failed", fields)
	} else {
		b.logger.InfoCtx("build complete", fields)
	}

	return rc.result, runErr
}

// runTask executes the calls of t. It returns a non-nil error only when the
// run must stop.
func (b *Builder) runTask(ctx context.Context, rc *runContext, t *task.Task) (TaskResult, error) {
	start := time.Now()
	tr := TaskResult{
		Name:        t.Name,
		Description: t.Description,
		Status:      StatusRunning,
		Calls:       len(t.Calls),
	}

	b.logger.InfoCtx("task start", map[string]any{"task": t.Name, "calls": len(t.Calls)})
	b.events.emit(Event{Type: EventPreTask, Task: t})

	finish := func(status TaskStatus, errMsg string) TaskResult {
		tr.Status = status
		tr.Duration = time.Since(start)
		b.events.emit(Event{Type: EventPostTask, Task: t, Status: status, Duration: tr.Duration, Error: errMsg})
		b.logger.InfoCtx("task end", map[string]any{
			"task":     t.Name,
			"status":   string(status),
			"duration": tr.Duration.String(),
		})
		return tr
	}

	for i, spec := range t.Calls {
		if err := ctx.Err(); err != nil {
			stop := fmt.Errorf("build interrupted in task %q: %w", t.Name, err)
			return finish(StatusFailed, stop.Error()), stop
		}

		b.events.emit(Event{Type: EventPreCall, Task: t, Call: i, CallType: spec.Type})
		callStart := time.Now()
		err := b.execute(ctx, t, i, spec)
		tr.Executed++

		if err == nil {
			b.events.emit(Event{
				Type: EventPostCall, Task: t, Call: i, CallType: spec.Type,
				Status: StatusSucceeded, Duration: time.Since(callStart),
			})
			continue
		}

		failure := &CallFailure{
			Task:      t.Name,
			Index:     i,
			Type:      spec.Type,
			Reason:    err.Error(),
			Recovered: t.RunOnFailure,
			Err:       err,
		}
		tr.Failures = append(tr.Failures, failure)
		rc.result.Failures = append(rc.result.Failures, failure)
		b.events.emit(Event{
			Type: EventPostCall, Task: t, Call: i, CallType: spec.Type,
			Status: StatusFailed, Duration: time.Since(callStart), Error: failure.Reason,
		})

		if !t.RunOnFailure {
			rc.result.Fatal = failure
			b.logger.ErrorCtx("call failed", map[string]any{"task": t.Name, "call": i, "type": spec.Type, "error": failure.Reason})
			return finish(StatusFailed, failure.Error()), failure
		}
		b.logger.WarnCtx("call failed, continuing (runOnFailure)", map[string]any{"task": t.Name, "call": i, "type": spec.Type, "error": failure.Reason})
	}

	if len(tr.Failures) > 0 {
		return finish(StatusFailed, fmt.Sprintf("%d call(s) failed", len(tr.Failures))), nil
	}
	return finish(StatusSucceeded, ""), nil
}

// execute constructs a fresh call from spec and runs it. Construction
// errors and panics are reported as the call's failure.
func (b *Builder) execute(ctx context.Context, t *task.Task, index int, spec call.Spec) (err error) {
	c, err := b.calls.New(spec)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("call panicked: %v", r)
		}
	}()

	return c.Execute(ctx, &call.Context{
		Task:     t.Name,
		Index:    index,
		WorkDir:  b.workDir,
		Output:   b.out,
		Logger:   b.logger.WithComponent("call." + spec.Type),
		Services: b.services,
	})
}

func skippedResult(t *task.Task) TaskResult {
	return TaskResult{
		Name:        t.Name,
		Description: t.Description,
		Status:      StatusSkipped,
		Calls:       len(t.Calls),
	}
}
