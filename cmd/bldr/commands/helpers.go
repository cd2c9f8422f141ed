package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/blocks"
	"github.com/marcus/bldr/internal/builder"
	"github.com/marcus/bldr/internal/call"
	"github.com/marcus/bldr/internal/config"
	"github.com/marcus/bldr/internal/logging"
	"github.com/marcus/bldr/internal/profile"
	"github.com/marcus/bldr/internal/task"
)

// project is a loaded project configuration and its catalogs.
type project struct {
	cfg      *config.Config
	dir      string
	tasks    task.Catalog
	profiles profile.Catalog
}

func newProject(cfg *config.Config, dir string) *project {
	tasks, profiles := cfg.Catalog()
	return &project{cfg: cfg, dir: dir, tasks: tasks, profiles: profiles}
}

// name is the project name used in banners, history and reports.
func (p *project) name() string {
	if p.cfg.Name != "" {
		return p.cfg.Name
	}
	return filepath.Base(p.dir)
}

// loadProject reads the project selected by the --config and --dir flags.
func loadProject(cmd *cobra.Command) (*project, error) {
	file, _ := cmd.Flags().GetString("config")
	dir, err := projectDir(cmd)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if file != "" {
		cfg, err = config.LoadFile(file, config.GlobalConfigPath())
		if err == nil {
			dir, err = filepath.Abs(cfg.ProjectDir())
		}
	} else {
		cfg, err = config.LoadFromPaths(dir, config.GlobalConfigPath())
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newProject(cfg, dir), nil
}

// projectDir returns the absolute --dir value, defaulting to the working
// directory.
func projectDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid project path: %w", err)
	}
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		return "", fmt.Errorf("project path does not exist: %s", abs)
	}
	return abs, nil
}

// setupCommand applies output flags, loads the project and initializes
// logging.
func setupCommand(cmd *cobra.Command) (*project, error) {
	applyColorFlags(cmd)
	p, err := loadProject(cmd)
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := initLogging(p.cfg, verbose); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return p, nil
}

// applyColorFlags forces plain output for --no-color and NO_COLOR.
func applyColorFlags(cmd *cobra.Command) {
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// initLogging initializes the logging subsystem.
func initLogging(cfg *config.Config, verbose bool) error {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.Init(logging.Config{
		Level:  level,
		Path:   cfg.Logging.Path,
		Format: cfg.Logging.Format,
	})
}

// newBuilder wires the core builder for p.
func newBuilder(p *project, out io.Writer, handlers ...builder.EventHandler) *builder.Builder {
	opts := []builder.Option{
		builder.WithCalls(blocks.Registry()),
		builder.WithTasks(p.tasks),
		builder.WithProfiles(p.profiles),
		builder.WithOutput(out),
		builder.WithWorkDir(p.dir),
		builder.WithServices(hostServices(out)),
	}
	for _, h := range handlers {
		opts = append(opts, builder.WithEventHandler(h))
	}
	return builder.New(opts...)
}

// hostServices are the operations `service` calls can invoke.
func hostServices(out io.Writer) call.Services {
	log := logging.Component("service")
	return call.Services{
		"echo": func(_ context.Context, args []any) error {
			_, err := fmt.Fprintln(out, joinArgs(args))
			return err
		},
		"log": func(_ context.Context, args []any) error {
			log.Info(joinArgs(args))
			return nil
		},
		"fail": func(_ context.Context, args []any) error {
			if len(args) == 0 {
				return errors.New("failed")
			}
			return errors.New(joinArgs(args))
		},
	}
}

func joinArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}

// parseRequest builds a request from the profile argument and --tasks.
// Names are lower-cased like the configuration keys.
func parseRequest(args, tasks []string) (builder.Request, error) {
	var req builder.Request
	if len(args) > 0 {
		req.Profile = strings.ToLower(strings.TrimSpace(args[0]))
	}
	for _, t := range tasks {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			req.Tasks = append(req.Tasks, t)
		}
	}
	if req.Profile == "" && len(req.Tasks) == 0 {
		return req, errors.New("a profile or --tasks is required")
	}
	return req, nil
}

// target describes what a request builds.
func target(req builder.Request) string {
	if len(req.Tasks) > 0 {
		return "tasks: " + strings.Join(req.Tasks, ", ")
	}
	return req.Profile
}
