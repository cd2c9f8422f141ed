// Package call defines the unit of work executed inside a task and the
// registry that turns configured call specs into runnable calls.
package call

import (
	"context"
	"io"

	"github.com/marcus/bldr/internal/logging"
)

// Call is a single step of a task. A nil error reports success; any other
// error is the failure reason.
type Call interface {
	Execute(ctx context.Context, c *Context) error
}

// Func adapts an ordinary function to the Call interface.
type Func func(ctx context.Context, c *Context) error

// Execute calls f(ctx, c).
func (f Func) Execute(ctx context.Context, c *Context) error {
	return f(ctx, c)
}

// Spec is the configured form of a call: a type tag and its options.
type Spec struct {
	Type   string         `json:"type" mapstructure:"type"`
	Config map[string]any `json:"config,omitempty" mapstructure:"config"`
}

// Context carries the host facilities a call may use while executing.
type Context struct {
	Task     string // owning task name
	Index    int    // zero-based position within the task
	WorkDir  string
	Output   io.Writer
	Logger   *logging.Logger
	Services Services
}

// Stdout returns the output sink, falling back to io.Discard.
func (c *Context) Stdout() io.Writer {
	if c == nil || c.Output == nil {
		return io.Discard
	}
	return c.Output
}

// Log returns the call logger, falling back to the global builder logger.
func (c *Context) Log() *logging.Logger {
	if c == nil || c.Logger == nil {
		return logging.Component("call")
	}
	return c.Logger
}

// Service is an operation the host exposes to calls by name.
type Service func(ctx context.Context, args []any) error

// Services maps service names to host operations.
type Services map[string]Service

// Lookup returns the named service.
func (s Services) Lookup(name string) (Service, bool) {
	if s == nil {
		return nil, false
	}
	svc, ok := s[name]
	return svc, ok
}
