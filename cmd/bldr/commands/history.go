package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/builder"
	"github.com/marcus/bldr/internal/history"
	"github.com/marcus/bldr/internal/reporting"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent builds",
	Long: `List recent builds recorded in the history database, newest first.

Use --summary for per-profile success rates and the tasks that fail most.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of builds to show")
	historyCmd.Flags().StringP("profile", "p", "", "Only show builds of this profile")
	historyCmd.Flags().Bool("summary", false, "Show aggregate statistics instead of a list")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	profile, _ := cmd.Flags().GetString("profile")
	summary, _ := cmd.Flags().GetBool("summary")

	applyColorFlags(cmd)
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	if !p.cfg.History.Enabled {
		return fmt.Errorf("history is disabled in %s", p.cfg.File)
	}

	store, err := history.Open(p.cfg.History.Path)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.Recent(cmd.Context(), limit, profile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if summary {
		fmt.Fprint(out, reporting.RenderSummary(reporting.Summarize(records), time.Now()))
		return nil
	}
	renderHistory(out, records, time.Now())
	return nil
}

// renderHistory prints one line per build. now anchors relative times.
func renderHistory(w io.Writer, records []history.Record, now time.Time) {
	s := newBuildStyles()
	if len(records) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No builds recorded."))
		return
	}

	for _, rec := range records {
		status := s.Success.Render("ok    ")
		if rec.Status != builder.RunSucceeded {
			status = s.Error.Render("failed")
		}
		fmt.Fprintf(w, "%s  %s  %-20s %s %s\n",
			status,
			s.Muted.Render(shortID(rec.ID)),
			rec.Target(),
			s.Label.Render(fmt.Sprintf("%-9s", rec.Trigger)),
			s.Muted.Render(fmt.Sprintf("%s, took %s", humanize.RelTime(rec.StartTime, now, "ago", "from now"), rec.Duration().Round(time.Millisecond))),
		)
		if rec.Error != "" {
			fmt.Fprintf(w, "        %s\n", s.Error.Render(rec.Error))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
