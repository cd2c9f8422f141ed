package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/builder"
	"github.com/marcus/bldr/internal/history"
	"github.com/marcus/bldr/internal/logging"
	"github.com/marcus/bldr/internal/ui"
)

// buildFailedError marks a build failure that has already been reported
// on the terminal.
type buildFailedError struct {
	err error
}

func (e *buildFailedError) Error() string { return e.err.Error() }
func (e *buildFailedError) Unwrap() error { return e.err }

var buildCmd = &cobra.Command{
	Use:   "build [profile]",
	Short: "Build the project",
	Long: `Builds the project for the directory you are in. Must contain a config file.

The profile's tasks run in order. Tasks imported through the profile's
uses.before and uses.after lists run before and after its own tasks.

Examples:
  bldr build ci                              # Run the 'ci' profile
  bldr build --tasks=lint                    # Run a single task
  bldr build --tasks=lint -t test            # Run several tasks
  bldr build --tasks=lint,test               # Same, comma separated
  bldr build ci --dry-run                    # Show the resolved task list
  bldr build ci --tui                        # Live dashboard`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringSliceP("tasks", "t", nil, "Tasks to run")
	buildCmd.Flags().Bool("tui", false, "Show a live dashboard while building")
	buildCmd.Flags().Bool("dry-run", false, "Print the resolved task list and exit")
	buildCmd.Flags().Bool("no-report", false, "Do not write a build report")
	buildCmd.Flags().Bool("no-history", false, "Do not record the build in history")
	rootCmd.AddCommand(buildCmd)
}

// buildOptions controls one build invocation.
type buildOptions struct {
	req       builder.Request
	trigger   string
	tui       bool
	noReport  bool
	noHistory bool
	quiet     bool // skip the logo
}

func runBuild(cmd *cobra.Command, args []string) error {
	tasks, _ := cmd.Flags().GetStringSlice("tasks")
	req, err := parseRequest(args, tasks)
	if err != nil {
		return err
	}

	p, err := setupCommand(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		reg, err := newBuilder(p, io.Discard).Plan(req)
		if err != nil {
			return err
		}
		printPlan(out, req, reg.Names(), p.profiles)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := buildOptions{req: req, trigger: history.TriggerManual}
	opts.tui, _ = cmd.Flags().GetBool("tui")
	if opts.tui && !isTerminal(os.Stdout) {
		logging.Component("build").Warn("--tui needs a terminal, using plain output")
		opts.tui = false
	}
	opts.noReport, _ = cmd.Flags().GetBool("no-report")
	opts.noHistory, _ = cmd.Flags().GetBool("no-history")

	_, err = executeBuild(ctx, p, out, opts)
	return err
}

// executeBuild runs one build, prints its outcome and records it. A failed
// build is returned as *buildFailedError.
func executeBuild(ctx context.Context, p *project, out io.Writer, opts buildOptions) (*builder.Result, error) {
	log := logging.Component("build")
	log.InfoCtx("build requested", map[string]any{
		"project": p.name(),
		"target":  target(opts.req),
		"trigger": opts.trigger,
	})

	var (
		res *builder.Result
		err error
	)
	if opts.tui {
		res, err = buildWithDashboard(ctx, p, opts.req)
	} else {
		b := newBuilder(p, out, newLiveRenderer(out).HandleEvent)
		// Unknown names fail before any banner is shown.
		if _, planErr := b.Plan(opts.req); planErr == nil {
			if !opts.quiet {
				printLogo(out)
			}
			printBanner(out, p, opts.req)
		}
		res, err = b.Build(ctx, opts.req)
	}

	reportPath := recordBuild(ctx, p, opts, res, err)
	printOutcome(out, res, err, reportPath)

	if err != nil {
		return res, &buildFailedError{err: err}
	}
	return res, nil
}

// buildWithDashboard runs the build behind the bubbletea dashboard.
// Planning errors are returned before the dashboard opens.
func buildWithDashboard(ctx context.Context, p *project, req builder.Request) (*builder.Result, error) {
	reg, err := newBuilder(p, io.Discard).Plan(req)
	if err != nil {
		return nil, err
	}
	model := ui.New(p.name(), target(req), reg.Names())
	return ui.Run(ctx, model, func(ctx context.Context, bridge *ui.Bridge) (*builder.Result, error) {
		return newBuilder(p, bridge, bridge.Handler()).Build(ctx, req)
	})
}
