// Package scheduler runs build jobs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcus/bldr/internal/config"
	"github.com/marcus/bldr/internal/logging"
)

var (
	ErrNoSchedule     = errors.New("no schedule configured")
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
)

// Job is a scheduled unit of work. Its context is cancelled by Stop.
type Job func(ctx context.Context) error

// Scheduler fires its jobs on a cron schedule. A tick that arrives while
// the previous one is still running is skipped, so builds never overlap.
type Scheduler struct {
	mu       sync.Mutex
	expr     string
	schedule cron.Schedule
	jobs     []Job
	cron     *cron.Cron
	entry    cron.EntryID
	cancel   context.CancelFunc
	running  bool
	logger   *logging.Logger
}

// New creates a scheduler with no schedule.
func New() *Scheduler {
	return &Scheduler{logger: logging.Component("scheduler")}
}

// NewFromConfig creates a scheduler from the schedule section.
func NewFromConfig(cfg *config.ScheduleConfig) (*Scheduler, error) {
	if cfg == nil || cfg.Cron == "" {
		return nil, ErrNoSchedule
	}
	s := New()
	if err := s.SetCron(cfg.Cron); err != nil {
		return nil, err
	}
	return s, nil
}

// SetCron sets the schedule from a standard five-field expression or a
// descriptor such as @hourly or @every 10m.
func (s *Scheduler) SetCron(expr string) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expr = expr
	s.schedule = schedule
	return nil
}

// Cron returns the configured expression.
func (s *Scheduler) Cron() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// AddJob appends a job. Jobs run in order on every tick.
func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Start begins firing jobs. Cancelling ctx cancels running jobs but does
// not stop the scheduler; call Stop for that.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.schedule == nil {
		return ErrNoSchedule
	}

	jobCtx, cancel := context.WithCancel(ctx)
	log := cronLogger{l: s.logger}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	s.entry = c.Schedule(s.schedule, cron.FuncJob(func() { s.run(jobCtx) }))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.logger.InfoCtx("scheduler started", map[string]any{"cron": s.expr})
	return nil
}

// Stop stops the schedule, cancels running jobs and waits for them.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.running = false
	s.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether the scheduler has been started.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next activation time, or the zero time without a
// schedule.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	c, entry, schedule := s.cron, s.entry, s.schedule
	s.mu.Unlock()

	if c != nil {
		if next := c.Entry(entry).Next; !next.IsZero() {
			return next
		}
	}
	if schedule == nil {
		return time.Time{}
	}
	return schedule.Next(time.Now())
}

// run executes every job once. A failing job is logged and does not stop
// the ones after it.
func (s *Scheduler) run(ctx context.Context) {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for i, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := job(ctx); err != nil {
			s.logger.ErrorCtx("scheduled job failed", map[string]any{"job": i, "error": err.Error()})
		}
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.DebugCtx(msg, pairs(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := pairs(keysAndValues)
	fields["error"] = err.Error()
	c.l.ErrorCtx(msg, fields)
}

func pairs(kv []any) map[string]any {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
