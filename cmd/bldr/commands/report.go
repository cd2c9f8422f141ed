package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/history"
	"github.com/marcus/bldr/internal/reporting"
)

var reportCmd = &cobra.Command{
	Use:   "report [build-id]",
	Short: "Show a build report",
	Long: `Print the report written for a build. Defaults to the most recent build.

A build ID may be abbreviated to any unique prefix of at least 4 characters
among the recent builds.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().Bool("json", false, "Print the structured results instead of markdown")
	reportCmd.Flags().Bool("path", false, "Print only the report path")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	pathOnly, _ := cmd.Flags().GetBool("path")

	applyColorFlags(cmd)
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}

	store, err := history.Open(p.cfg.History.Path)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer func() { _ = store.Close() }()

	id := ""
	if len(args) == 1 {
		id = args[0]
	}
	rec, err := findBuild(cmd, store, id)
	if err != nil {
		return err
	}
	if rec.ReportPath == "" {
		return fmt.Errorf("build %s has no report", shortID(rec.ID))
	}

	out := cmd.OutOrStdout()
	path := rec.ReportPath
	if asJSON {
		path = resultsPath(rec.ReportPath)
	}
	if pathOnly {
		fmt.Fprintln(out, path)
		return nil
	}

	if asJSON {
		results, err := reporting.LoadRunResults(path)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}
	_, err = out.Write(content)
	return err
}

// findBuild resolves id, a full ID or a prefix, to a stored build. An empty
// id selects the newest build.
func findBuild(cmd *cobra.Command, store *history.Store, id string) (*history.Record, error) {
	ctx := cmd.Context()
	if id != "" {
		rec, err := store.Get(ctx, id)
		if err == nil || !errors.Is(err, history.ErrNotFound) || len(id) < 4 {
			return rec, err
		}
	}

	recent, err := store.Recent(ctx, 100, "")
	if err != nil {
		return nil, err
	}
	if id == "" {
		if len(recent) == 0 {
			return nil, errors.New("no builds recorded")
		}
		return &recent[0], nil
	}

	var match *history.Record
	for i := range recent {
		if strings.HasPrefix(recent[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("build ID prefix %q is ambiguous", id)
			}
			match = &recent[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", history.ErrNotFound, id)
	}
	return match, nil
}

// resultsPath returns the JSON results file written next to a report.
func resultsPath(reportPath string) string {
	return strings.TrimSuffix(reportPath, ".md") + ".json"
}
