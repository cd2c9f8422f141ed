package execute

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marcus/bldr/internal/call"
)

// waitDelay bounds how long output copying may outlive a killed command.
const waitDelay = 2 * time.Second

// Options configures an exec call.
type Options struct {
	Executable   string            `mapstructure:"executable"`
	Arguments    []string          `mapstructure:"arguments"`
	Cwd          string            `mapstructure:"cwd"`
	Env          map[string]string `mapstructure:"env"`
	SuccessCodes []int             `mapstructure:"successCodes"`
	Timeout      time.Duration     `mapstructure:"timeout"`
}

// Exec runs an external command. Its combined output goes to the call
// output sink.
type Exec struct {
	opts Options
}

// NewExec builds an exec call from its configuration.
func NewExec(config map[string]any) (call.Call, error) {
	var opts Options
	if err := call.Decode(config, &opts); err != nil {
		return nil, err
	}
	if opts.Executable == "" {
		return nil, errors.New("exec: executable is required")
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("exec: timeout must not be negative, got %s", opts.Timeout)
	}
	if len(opts.SuccessCodes) == 0 {
		opts.SuccessCodes = []int{0}
	}
	return &Exec{opts: opts}, nil
}

// Options returns the decoded options.
func (e *Exec) Options() Options {
	return e.opts
}

// CommandLine returns the command as a single display string.
func (e *Exec) CommandLine() string {
	return strings.TrimSpace(e.opts.Executable + " " + strings.Join(e.opts.Arguments, " "))
}

// Execute runs the command and fails when its exit code is not one of the
// configured success codes.
func (e *Exec) Execute(ctx context.Context, c *call.Context) error {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.opts.Executable, e.opts.Arguments...)
	cmd.Dir = e.dir(c.WorkDir)
	cmd.Env = e.environ()
	cmd.Stdout = c.Stdout()
	cmd.Stderr = c.Stdout()
	cmd.WaitDelay = waitDelay

	fmt.Fprintf(c.Stdout(), "$ %s\n", e.CommandLine())
	start := time.Now()
	err := cmd.Run()

	code := 0
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("run %s: %w", e.opts.Executable, ctx.Err())
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("run %s: %w", e.opts.Executable, err)
		}
		code = exitErr.ExitCode()
	}

	c.Log().InfoCtx("exec finished", map[string]any{
		"task":     c.Task,
		"command":  e.CommandLine(),
		"exit":     code,
		"duration": time.Since(start).String(),
	})

	if !e.succeeded(code) {
		return fmt.Errorf("%s exited with code %d", e.opts.Executable, code)
	}
	return nil
}

func (e *Exec) succeeded(code int) bool {
	for _, ok := range e.opts.SuccessCodes {
		if code == ok {
			return true
		}
	}
	return false
}

// dir resolves the command directory against the build working directory.
func (e *Exec) dir(workDir string) string {
	switch {
	case e.opts.Cwd == "":
		return workDir
	case filepath.IsAbs(e.opts.Cwd) || workDir == "":
		return e.opts.Cwd
	default:
		return filepath.Join(workDir, e.opts.Cwd)
	}
}

// environ returns the process environment with the configured overrides.
// Names are upper-cased since configuration keys are case-insensitive.
func (e *Exec) environ() []string {
	if len(e.opts.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(e.opts.Env))
	for k := range e.opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, strings.ToUpper(k)+"="+e.opts.Env[k])
	}
	return env
}
