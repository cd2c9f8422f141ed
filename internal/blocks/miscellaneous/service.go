package miscellaneous

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/bldr/internal/call"
)

// ErrUnknownService is returned when a service call names a service the
// host does not provide.
var ErrUnknownService = errors.New("unknown service")

// ServiceOptions configures a service call.
type ServiceOptions struct {
	Service   string `mapstructure:"service"`
	Arguments []any  `mapstructure:"arguments"`
}

// Service invokes a host-provided service by name.
type Service struct {
	name string
	args []any
}

// NewService builds a service call from its configuration.
func NewService(config map[string]any) (call.Call, error) {
	var opts ServiceOptions
	if err := call.Decode(config, &opts); err != nil {
		return nil, err
	}
	if opts.Service == "" {
		return nil, errors.New("service: service name is required")
	}
	return &Service{name: opts.Service, args: opts.Arguments}, nil
}

// Execute looks the service up in the call context and runs it.
func (s *Service) Execute(ctx context.Context, c *call.Context) error {
	svc, ok := c.Services.Lookup(s.name)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownService, s.name)
	}

	c.Log().DebugCtx("service", map[string]any{"task": c.Task, "service": s.name, "args": len(s.args)})
	if err := svc(ctx, s.args); err != nil {
		return fmt.Errorf("service %s: %w", s.name, err)
	}
	return nil
}
