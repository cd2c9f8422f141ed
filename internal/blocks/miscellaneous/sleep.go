package miscellaneous

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/bldr/internal/call"
)

// SleepOptions configures a sleep call. Exactly one of Seconds or Duration
// must be set.
type SleepOptions struct {
	Seconds  *float64       `mapstructure:"seconds"`
	Duration *time.Duration `mapstructure:"duration"`
}

// Sleep pauses the build.
type Sleep struct {
	wait time.Duration
}

// NewSleep builds a sleep call from its configuration.
func NewSleep(config map[string]any) (call.Call, error) {
	var opts SleepOptions
	if err := call.Decode(config, &opts); err != nil {
		return nil, err
	}

	switch {
	case opts.Seconds != nil && opts.Duration != nil:
		return nil, errors.New("sleep: set either seconds or duration, not both")
	case opts.Seconds != nil:
		if *opts.Seconds < 0 {
			return nil, fmt.Errorf("sleep: seconds must not be negative, got %v", *opts.Seconds)
		}
		return &Sleep{wait: time.Duration(*opts.Seconds * float64(time.Second))}, nil
	case opts.Duration != nil:
		if *opts.Duration < 0 {
			return nil, fmt.Errorf("sleep: duration must not be negative, got %s", *opts.Duration)
		}
		return &Sleep{wait: *opts.Duration}, nil
	default:
		return nil, errors.New("sleep: seconds or duration is required")
	}
}

// Wait returns the configured pause.
func (s *Sleep) Wait() time.Duration {
	return s.wait
}

// Execute blocks for the configured pause or until ctx is done.
func (s *Sleep) Execute(ctx context.Context, c *call.Context) error {
	fmt.Fprintf(c.Stdout(), "Sleeping for %s\n", s.wait)
	c.Log().DebugCtx("sleep", map[string]any{"task": c.Task, "wait": s.wait.String()})

	timer := time.NewTimer(s.wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	}
}
