package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/bldr/internal/builder"
	"github.com/marcus/bldr/internal/profile"
)

const logo = `  _     _     _
 | |__ | | __| |_ __
 | '_ \| |/ _' | '__|
 | |_) | | (_| | |
 |_.__/|_|\__,_|_|`

// buildStyles holds lipgloss styles for colored build output.
type buildStyles struct {
	Logo    lipgloss.Style
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Accent  lipgloss.Style

	InfoBlock    lipgloss.Style
	SuccessBlock lipgloss.Style
	ErrorBlock   lipgloss.Style
}

func newBuildStyles() buildStyles {
	block := lipgloss.NewStyle().Padding(0, 2)
	return buildStyles{
		Logo:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),

		InfoBlock:    block.Background(lipgloss.Color("4")).Foreground(lipgloss.Color("0")),
		SuccessBlock: block.Bold(true).Background(lipgloss.Color("2")).Foreground(lipgloss.Color("15")),
		ErrorBlock:   block.Bold(true).Background(lipgloss.Color("1")).Foreground(lipgloss.Color("15")),
	}
}

// formatBlock renders lines as a padded block of equal width.
func formatBlock(style lipgloss.Style, lines ...string) string {
	width := 0
	for _, l := range lines {
		width = max(width, lipgloss.Width(l))
	}
	rendered := make([]string, 0, len(lines)+2)
	rendered = append(rendered, style.Render(strings.Repeat(" ", width)))
	for _, l := range lines {
		rendered = append(rendered, style.Render(l+strings.Repeat(" ", width-lipgloss.Width(l))))
	}
	rendered = append(rendered, style.Render(strings.Repeat(" ", width)))
	return strings.Join(rendered, "\n")
}

func printLogo(w io.Writer) {
	s := newBuildStyles()
	fmt.Fprintf(w, "\n%s\n\n", s.Logo.Render(logo))
}

// printBanner prints the project and profile blocks shown before a
// profile build.
func printBanner(w io.Writer, p *project, req builder.Request) {
	if len(req.Tasks) > 0 {
		return
	}
	s := newBuildStyles()

	var projectLines []string
	if p.cfg.Name != "" {
		projectLines = append(projectLines, fmt.Sprintf("Building the '%s' project", p.cfg.Name))
	}
	if p.cfg.Description != "" {
		projectLines = append(projectLines, fmt.Sprintf(" - %s - ", p.cfg.Description))
	}
	if len(projectLines) > 0 {
		fmt.Fprintf(w, "%s\n\n", formatBlock(s.InfoBlock, projectLines...))
	}

	profileLines := []string{fmt.Sprintf("Using the '%s' profile", req.Profile)}
	if prof, ok := p.profiles[req.Profile]; ok && prof.Description != "" {
		profileLines = append(profileLines, fmt.Sprintf(" - %s - ", prof.Description))
	}
	fmt.Fprintf(w, "%s\n\n", formatBlock(s.InfoBlock, profileLines...))
}

// liveRenderer prints builder events as they happen. Events are emitted
// synchronously from the builder goroutine, so no locking is needed.
type liveRenderer struct {
	w      io.Writer
	styles buildStyles
}

func newLiveRenderer(w io.Writer) *liveRenderer {
	return &liveRenderer{w: w, styles: newBuildStyles()}
}

// HandleEvent implements builder.EventHandler.
func (r *liveRenderer) HandleEvent(e builder.Event) error {
	switch e.Type {
	case builder.EventPreTask:
		line := fmt.Sprintf("\n%s %s", r.styles.Accent.Render(">>>"), r.styles.Title.Render(e.Task.Name))
		if e.Task.Description != "" {
			line += r.styles.Muted.Render(" - " + e.Task.Description)
		}
		_, err := fmt.Fprintln(r.w, line)
		return err

	case builder.EventPreCall:
		_, err := fmt.Fprintf(r.w, "  %s\n", r.styles.Label.Render(fmt.Sprintf("[%d/%d] %s", e.Call+1, len(e.Task.Calls), e.CallType)))
		return err

	case builder.EventPostCall:
		if e.Status != builder.StatusFailed {
			return nil
		}
		style := r.styles.Error
		if e.Task.RunOnFailure {
			style = r.styles.Warn
		}
		_, err := fmt.Fprintf(r.w, "  %s\n", style.Render(fmt.Sprintf("call #%d (%s) failed: %s", e.Call+1, e.CallType, e.Error)))
		return err

	case builder.EventPostTask:
		elapsed := r.styles.Muted.Render(fmt.Sprintf("(%s)", e.Duration.Round(time.Millisecond)))
		var status string
		switch e.Status {
		case builder.StatusSucceeded:
			status = r.styles.Success.Render("done")
		case builder.StatusFailed:
			status = r.styles.Error.Render("failed")
		default:
			status = r.styles.Muted.Render(string(e.Status))
		}
		_, err := fmt.Fprintf(r.w, "%s %s %s %s\n", r.styles.Accent.Render("<<<"), e.Task.Name, status, elapsed)
		return err
	}
	return nil
}

// printOutcome prints the final status block, recovered failures and the
// task tally.
func printOutcome(w io.Writer, res *builder.Result, err error, reportPath string) {
	s := newBuildStyles()
	fmt.Fprintln(w)

	if err != nil {
		fmt.Fprintf(w, "%s\n", formatBlock(s.ErrorBlock, "Build Failed: "+err.Error()))
	} else {
		fmt.Fprintf(w, "%s\n", formatBlock(s.SuccessBlock, "Build Success!"))
		if recovered := res.Recovered(); len(recovered) > 0 {
			fmt.Fprintf(w, "\n%s\n", s.Warn.Render(fmt.Sprintf("Completed with %d recovered failure(s):", len(recovered))))
			for _, f := range recovered {
				fmt.Fprintf(w, "  - %s call #%d (%s): %s\n", f.Task, f.Index+1, f.Type, f.Reason)
			}
		}
	}

	if res != nil {
		fmt.Fprintf(w, "\n%s\n", s.Muted.Render(tally(res)))
	}
	if reportPath != "" {
		fmt.Fprintf(w, "%s %s\n", s.Label.Render("Report:"), reportPath)
	}
}

// tally summarizes task outcomes, e.g. "3 tasks: 2 succeeded, 1 failed in 1.2s".
func tally(res *builder.Result) string {
	counts := map[builder.TaskStatus]int{}
	for _, t := range res.Tasks {
		counts[t.Status]++
	}
	var parts []string
	for _, st := range []builder.TaskStatus{builder.StatusSucceeded, builder.StatusFailed, builder.StatusSkipped} {
		if counts[st] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
		}
	}
	noun := "tasks"
	if len(res.Tasks) == 1 {
		noun = "task"
	}
	summary := fmt.Sprintf("%d %s", len(res.Tasks), noun)
	if len(parts) > 0 {
		summary += ": " + strings.Join(parts, ", ")
	}
	return summary + " in " + res.Duration().Round(time.Millisecond).String()
}

// printPlan prints the tasks a request would run, without running them.
func printPlan(w io.Writer, req builder.Request, tasks []string, profiles profile.Catalog) {
	s := newBuildStyles()
	header := "Plan for " + target(req)
	if prof, ok := profiles[req.Profile]; ok && len(req.Tasks) == 0 && prof.Description != "" {
		header += s.Muted.Render(" - " + prof.Description)
	}
	fmt.Fprintln(w, s.Title.Render(header))
	for i, name := range tasks {
		fmt.Fprintf(w, "  %d. %s\n", i+1, name)
	}
}

func printError(w io.Writer, err error) {
	s := newBuildStyles()
	fmt.Fprintf(w, "%s %v\n", s.Error.Render("Error:"), err)
}
