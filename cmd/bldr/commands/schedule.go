package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/config"
	"github.com/marcus/bldr/internal/history"
	"github.com/marcus/bldr/internal/logging"
	"github.com/marcus/bldr/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [profile]",
	Short: "Build on a cron schedule",
	Long: `Run builds on a cron schedule until interrupted.

The expression comes from --cron or the schedule.cron setting and uses the
standard five fields, or descriptors such as @hourly and @every 30m.
A build that is still running when the next one is due skips that run.

Examples:
  bldr schedule nightly --cron "0 2 * * *"
  bldr schedule ci --cron "@every 15m"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringSliceP("tasks", "t", nil, "Tasks to run")
	scheduleCmd.Flags().String("cron", "", "Cron expression (overrides schedule.cron)")
	scheduleCmd.Flags().Bool("no-report", false, "Do not write build reports")
	scheduleCmd.Flags().Bool("no-history", false, "Do not record builds in history")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
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

	schedCfg := p.cfg.Schedule
	if expr, _ := cmd.Flags().GetString("cron"); expr != "" {
		schedCfg.Cron = expr
	}
	sched, err := newBuildScheduler(&schedCfg)
	if err != nil {
		return err
	}

	opts := buildOptions{req: req, trigger: history.TriggerSchedule, quiet: true}
	opts.noReport, _ = cmd.Flags().GetBool("no-report")
	opts.noHistory, _ = cmd.Flags().GetBool("no-history")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	sched.AddJob(scheduledBuild(p, out, opts, sched))

	printLogo(out)
	return runScheduler(ctx, out, sched, p.name(), target(req))
}

// scheduledBuild returns the job run on each activation. Build failures
// are printed and recorded but do not count as job errors.
func scheduledBuild(p *project, out io.Writer, opts buildOptions, sched *scheduler.Scheduler) scheduler.Job {
	return func(ctx context.Context) error {
		_, err := executeBuild(ctx, p, out, opts)
		printNextRun(out, sched)
		var failed *buildFailedError
		if errors.As(err, &failed) {
			return nil
		}
		return err
	}
}

// newBuildScheduler validates the schedule settings.
func newBuildScheduler(cfg *config.ScheduleConfig) (*scheduler.Scheduler, error) {
	sched, err := scheduler.NewFromConfig(cfg)
	if errors.Is(err, scheduler.ErrNoSchedule) {
		return nil, errors.New("no schedule configured: pass --cron or set schedule.cron")
	}
	return sched, err
}

// runScheduler starts sched and blocks until ctx is done.
func runScheduler(ctx context.Context, out io.Writer, sched *scheduler.Scheduler, project, what string) error {
	log := logging.Component("schedule")
	s := newBuildStyles()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	log.InfoCtx("schedule started", map[string]any{
		"project": project,
		"target":  what,
		"cron":    sched.Cron(),
	})
	fmt.Fprintf(out, "%s %s %s\n", s.Title.Render("Scheduled"), what, s.Muted.Render("("+sched.Cron()+")"))
	printNextRun(out, sched)
	fmt.Fprintln(out, s.Muted.Render("Press Ctrl+C to stop."))

	<-ctx.Done()

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		return err
	}
	log.Info("schedule stopped")
	return nil
}

func printNextRun(w io.Writer, sched *scheduler.Scheduler) {
	next := sched.NextRun()
	if next.IsZero() {
		return
	}
	s := newBuildStyles()
	fmt.Fprintf(w, "%s %s (%s)\n", s.Label.Render("Next build:"), next.Format(time.DateTime), humanize.Time(next))
}
