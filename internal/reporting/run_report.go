package reporting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marcus/bldr/internal/builder"
)

// DefaultRunReportPath returns the markdown report path inside dir.
func DefaultRunReportPath(dir string, results *RunResults) string {
	return filepath.Join(dir, reportName(results, ".md"))
}

// RenderRunReport renders a markdown report for a single build.
func RenderRunReport(results *RunResults, logPath string) (string, error) {
	if results == nil {
		return "", fmt.Errorf("results cannot be nil")
	}

	var succeeded, failed, skipped []TaskResult
	for _, task := range results.Tasks {
		switch task.Status {
		case builder.StatusSucceeded:
			succeeded = append(succeeded, task)
		case builder.StatusFailed:
			failed = append(failed, task)
		case builder.StatusSkipped:
			skipped = append(skipped, task)
		}
	}

	var buf bytes.Buffer
	title := results.Profile
	if title == "" {
		title = "custom tasks"
	}
	fmt.Fprintf(&buf, "# Bldr Build - %s - %s\n\n", title, results.StartTime.Format("2006-01-02 15:04"))

	buf.WriteString("## Summary\n")
	if results.Project != "" {
		fmt.Fprintf(&buf, "- Project: %s\n", results.Project)
	}
	fmt.Fprintf(&buf, "- Status: %s\n", results.Status)
	fmt.Fprintf(&buf, "- Duration: %s\n", formatDuration(results.Duration()))
	fmt.Fprintf(&buf, "- Tasks: %d succeeded, %d failed, %d skipped\n",
		len(succeeded), len(failed), len(skipped))

	failures := results.Failures()
	recovered := 0
	for _, f := range failures {
		if f.Recovered {
			recovered++
		}
	}
	if recovered > 0 {
		fmt.Fprintf(&buf, "- Recovered failures: %d\n", recovered)
	}
	if results.Error != "" {
		fmt.Fprintf(&buf, "- Error: %s\n", results.Error)
	}
	if logPath != "" {
		fmt.Fprintf(&buf, "- Logs: %s\n", logPath)
	}
	if results.ID != "" {
		fmt.Fprintf(&buf, "- Build ID: %s\n", results.ID)
	}
	buf.WriteString("\n")

	writeTaskSection(&buf, "Tasks Succeeded", succeeded)
	writeTaskSection(&buf, "Tasks Failed", failed)
	writeTaskSection(&buf, "Tasks Skipped", skipped)

	if len(failures) > 0 {
		buf.WriteString("## Failures\n")
		for _, f := range failures {
			line := fmt.Sprintf("- %s call #%d (%s): %s", f.Task, f.Call, f.Type, f.Reason)
			if f.Recovered {
				line += " (recovered)"
			}
			buf.WriteString(line + "\n")
		}
		buf.WriteString("\n")
	}

	return buf.String(), nil
}

// SaveRunReport writes a run report to disk.
func SaveRunReport(results *RunResults, path string, logPath string) error {
	content, err := RenderRunReport(results, logPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func writeTaskSection(buf *bytes.Buffer, title string, tasks []TaskResult) {
	if len(tasks) == 0 {
		return
	}
	buf.WriteString("## " + title + "\n")
	for _, task := range tasks {
		line := "- " + task.Name
		if task.Description != "" {
			line += ": " + task.Description
		}
		line += fmt.Sprintf(" (%d/%d calls)", task.Executed, task.Calls)
		if task.Duration > 0 {
			line += " in " + formatDuration(task.Duration)
		}
		buf.WriteString(line + "\n")
	}
	buf.WriteString("\n")
}

// formatDuration renders d rounded for reading.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// formatCount renders n with thousands separators.
func formatCount(n int) string {
	return humanize.Comma(int64(n))
}
