package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/history"
	"github.com/marcus/bldr/internal/logging"
	"github.com/marcus/bldr/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [profile]",
	Short: "Rebuild when files change",
	Long: `Build once, then rebuild whenever files under the watched paths change.

Changes are collected until they settle for the configured debounce, then
trigger a single build. Changes made while a build runs are picked up by
the next one. Editing the project config reloads it before rebuilding.

Configure paths, ignore patterns and the debounce in the watch section:

  watch:
    paths: [src, tests]
    ignore: [.git, "*.log"]
    debounce: 500ms`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceP("tasks", "t", nil, "Tasks to run")
	watchCmd.Flags().Bool("skip-initial", false, "Wait for the first change before building")
	watchCmd.Flags().Bool("no-report", false, "Do not write build reports")
	watchCmd.Flags().Bool("no-history", false, "Do not record builds in history")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	tasks, _ := cmd.Flags().GetStringSlice("tasks")
	req, err := parseRequest(args, tasks)
	if err != nil {
		return err
	}
	p, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	if _, err := newBuilder(p, io.Discard).Plan(req); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := buildOptions{req: req, trigger: history.TriggerWatch}
	opts.noReport, _ = cmd.Flags().GetBool("no-report")
	opts.noHistory, _ = cmd.Flags().GetBool("no-history")
	skipInitial, _ := cmd.Flags().GetBool("skip-initial")

	w := &watchSession{cmd: cmd, project: p, opts: opts, out: cmd.OutOrStdout()}
	return w.run(ctx, !skipInitial)
}

// watchSession rebuilds a project on file changes.
type watchSession struct {
	cmd     *cobra.Command
	project *project
	opts    buildOptions
	out     io.Writer
}

func (s *watchSession) run(ctx context.Context, initial bool) error {
	log := logging.Component("watch")
	st := newBuildStyles()

	w, err := watcher.New(s.project.dir, s.project.cfg.Watch)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	log.InfoCtx("watching", map[string]any{
		"project": s.project.name(),
		"target":  target(s.opts.req),
		"paths":   len(w.Watched()),
	})

	if initial {
		s.build(ctx)
	} else {
		printLogo(s.out)
	}
	// Later builds in this session skip the logo.
	s.opts.quiet = true
	fmt.Fprintf(s.out, "\n%s\n", st.Muted.Render(fmt.Sprintf("Watching %d directories for changes. Press Ctrl+C to stop.", len(w.Watched()))))

	return w.Run(ctx, func(ctx context.Context, changed []string) error {
		fmt.Fprintf(s.out, "\n%s %s\n", st.Accent.Render("Changed:"), summarizeChanges(changed))
		if configFile, err := filepath.Abs(s.project.cfg.File); err == nil && slices.Contains(changed, configFile) {
			s.reload()
		}
		s.build(ctx)
		fmt.Fprintf(s.out, "\n%s\n", st.Muted.Render("Waiting for changes..."))
		return nil
	})
}

// build runs one build. Failures are already printed, so only
// non-build errors are logged.
func (s *watchSession) build(ctx context.Context) {
	_, err := executeBuild(ctx, s.project, s.out, s.opts)
	var failed *buildFailedError
	if err != nil && !errors.As(err, &failed) {
		logging.Component("watch").Errorf("build: %v", err)
	}
}

// reload re-reads the project config, keeping the previous one when the
// new file does not load.
func (s *watchSession) reload() {
	log := logging.Component("watch")
	p, err := loadProject(s.cmd)
	if err != nil {
		log.Warnf("config reload: %v", err)
		printError(s.out, err)
		return
	}
	s.project = p
	log.Infof("config reloaded: %s", p.cfg.File)
}

// summarizeChanges lists up to three changed paths.
func summarizeChanges(changed []string) string {
	const shown = 3
	if len(changed) <= shown {
		return fmt.Sprint(changed)
	}
	return fmt.Sprintf("%v and %d more", changed[:shown], len(changed)-shown)
}
