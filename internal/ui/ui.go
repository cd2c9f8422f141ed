// Package ui provides the live terminal dashboard shown by `bldr build --tui`.
// The model is fed builder events and call output through a Bridge.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/bldr/internal/builder"
)

// Panel represents which panel is currently focused.
type Panel int

const (
	PanelStatus Panel = iota
	PanelTasks
	PanelLogs
)

// maxLogs bounds the log panel history.
const maxLogs = 2000

// TaskItem is a row in the task list.
type TaskItem struct {
	Name     string
	Status   builder.TaskStatus
	Calls    int
	Current  int // index of the running call
	Failures int
}

// LogEntry represents a log line.
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
}

// Model holds the dashboard state.
type Model struct {
	width       int
	height      int
	activePanel Panel
	quitting    bool

	project     string
	target      string
	runStatus   builder.RunStatus
	currentTask string
	currentCall string
	started     time.Time
	finished    time.Time
	failure     string
	recovered   int

	tasks        []TaskItem
	taskScroll   int
	selectedTask int

	logs      []LogEntry
	logScroll int

	progressTick int
	cancel       context.CancelFunc

	styles *Styles
}

// Styles holds lipgloss styles for the UI.
type Styles struct {
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	Title     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Highlight lipgloss.Style
	Muted     lipgloss.Style

	StatusOK      lipgloss.Style
	StatusWarn    lipgloss.Style
	StatusError   lipgloss.Style
	StatusRunning lipgloss.Style

	TaskSelected lipgloss.Style

	LogDebug lipgloss.Style
	LogInfo  lipgloss.Style
	LogWarn  lipgloss.Style
	LogError lipgloss.Style

	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		ActiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight),
		InactiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			MarginBottom(1),
		Label:     lipgloss.NewStyle().Foreground(subtle),
		Value:     lipgloss.NewStyle().Bold(true),
		Highlight: lipgloss.NewStyle().Foreground(highlight).Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(subtle),

		StatusOK:      lipgloss.NewStyle().Foreground(green).Bold(true),
		StatusWarn:    lipgloss.NewStyle().Foreground(yellow).Bold(true),
		StatusError:   lipgloss.NewStyle().Foreground(red).Bold(true),
		StatusRunning: lipgloss.NewStyle().Foreground(blue).Bold(true),

		TaskSelected: lipgloss.NewStyle().
			Background(highlight).
			Foreground(lipgloss.Color("#fff")).
			Bold(true),

		LogDebug: lipgloss.NewStyle().Foreground(subtle),
		LogInfo:  lipgloss.NewStyle().Foreground(blue),
		LogWarn:  lipgloss.NewStyle().Foreground(yellow),
		LogError: lipgloss.NewStyle().Foreground(red),

		HelpKey:  lipgloss.NewStyle().Foreground(highlight).Bold(true),
		HelpText: lipgloss.NewStyle().Foreground(subtle),
	}
}

// EventMsg delivers a builder event to the model.
type EventMsg builder.Event

// OutputMsg is one line of call output.
type OutputMsg string

// DoneMsg reports the end of the build.
type DoneMsg struct {
	Result *builder.Result
	Err    error
}

type tickMsg time.Time

// New creates a dashboard for a build of target in project. planned lists
// the registered tasks in run order.
func New(project, target string, planned []string) *Model {
	m := &Model{
		width:       80,
		height:      24,
		activePanel: PanelTasks,
		project:     project,
		target:      target,
		runStatus:   builder.RunIdle,
		tasks:       make([]TaskItem, 0, len(planned)),
		logs:        make([]LogEntry, 0),
		styles:      newStyles(),
	}
	for _, name := range planned {
		m.tasks = append(m.tasks, TaskItem{Name: name, Status: builder.StatusPending})
	}
	return m
}

// SetCancel registers the function called when the user quits while the
// build is still running.
func (m *Model) SetCancel(cancel context.CancelFunc) {
	m.cancel = cancel
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.progressTick++
		return m, tickCmd()

	case EventMsg:
		m.applyEvent(builder.Event(msg))
		return m, nil

	case OutputMsg:
		m.AddLog("info", string(msg))
		return m, nil

	case DoneMsg:
		m.finish(msg.Result, msg.Err)
		return m, nil
	}

	return m, nil
}

func (m *Model) applyEvent(e builder.Event) {
	switch e.Type {
	case builder.EventPreProfile:
		m.runStatus = builder.RunRunning
		m.started = e.Time
		m.AddLog("info", fmt.Sprintf("Using the '%s' profile", e.Profile))

	case builder.EventPreTask:
		if m.runStatus != builder.RunRunning {
			m.runStatus = builder.RunRunning
			m.started = e.Time
		}
		item := m.task(e.Task.Name)
		item.Status = builder.StatusRunning
		item.Calls = len(e.Task.Calls)
		m.currentTask = e.Task.Name
		m.currentCall = ""
		m.AddLog("info", "Running task "+e.Task.Name)

	case builder.EventPreCall:
		item := m.task(e.Task.Name)
		item.Current = e.Call
		m.currentCall = fmt.Sprintf("#%d %s", e.Call+1, e.CallType)

	case builder.EventPostCall:
		if e.Status == builder.StatusFailed {
			m.task(e.Task.Name).Failures++
			m.AddLog("error", fmt.Sprintf("%s call #%d (%s) failed: %s", e.Task.Name, e.Call+1, e.CallType, e.Error))
		}

	case builder.EventPostTask:
		m.task(e.Task.Name).Status = e.Status
		m.currentCall = ""
		level := "info"
		if e.Status == builder.StatusFailed {
			level = "warn"
		}
		m.AddLog(level, fmt.Sprintf("Task %s %s in %s", e.Task.Name, e.Status, e.Duration.Round(time.Millisecond)))
	}
}

func (m *Model) finish(res *builder.Result, err error) {
	m.finished = time.Now()
	m.currentTask = ""
	m.currentCall = ""
	m.runStatus = builder.RunFailed
	if res != nil {
		m.runStatus = res.Status
		m.recovered = len(res.Recovered())
		for _, t := range res.Tasks {
			m.task(t.Name).Status = t.Status
		}
	}
	if err != nil {
		m.runStatus = builder.RunFailed
		m.failure = err.Error()
		m.AddLog("error", "Build Failed: "+err.Error())
		return
	}
	m.AddLog("info", "Build Success!")
}

// task returns the row for name, appending one if the task was not planned.
func (m *Model) task(name string) *TaskItem {
	for i := range m.tasks {
		if m.tasks[i].Name == name {
			return &m.tasks[i]
		}
	}
	m.tasks = append(m.tasks, TaskItem{Name: name, Status: builder.StatusPending})
	return &m.tasks[len(m.tasks)-1]
}

// Done reports whether the build has finished.
func (m Model) Done() bool {
	return !m.finished.IsZero()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		if !m.Done() && m.cancel != nil {
			m.cancel()
		}
		m.quitting = true
		return m, tea.Quit

	case "tab", "right", "l":
		m.activePanel = (m.activePanel + 1) % 3
		return m, nil

	case "shift+tab", "left", "h":
		m.activePanel = (m.activePanel + 2) % 3
		return m, nil

	case "up", "k":
		return m.handleUp(), nil

	case "down", "j":
		return m.handleDown(), nil

	case "home", "g":
		return m.handleHome(), nil

	case "end", "G":
		return m.handleEnd(), nil
	}

	return m, nil
}

func (m Model) handleUp() Model {
	switch m.activePanel {
	case PanelTasks:
		if m.selectedTask > 0 {
			m.selectedTask--
		}
	case PanelLogs:
		if m.logScroll > 0 {
			m.logScroll--
		}
	}
	return m
}

func (m Model) handleDown() Model {
	switch m.activePanel {
	case PanelTasks:
		if m.selectedTask < len(m.tasks)-1 {
			m.selectedTask++
		}
	case PanelLogs:
		if m.logScroll < len(m.logs)-1 {
			m.logScroll++
		}
	}
	return m
}

func (m Model) handleHome() Model {
	switch m.activePanel {
	case PanelTasks:
		m.selectedTask = 0
	case PanelLogs:
		m.logScroll = 0
	}
	return m
}

func (m Model) handleEnd() Model {
	switch m.activePanel {
	case PanelTasks:
		if len(m.tasks) > 0 {
			m.selectedTask = len(m.tasks) - 1
		}
	case PanelLogs:
		if len(m.logs) > 0 {
			m.logScroll = len(m.logs) - 1
		}
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	topHeight := m.height / 2
	bottomHeight := m.height - topHeight - 3
	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth

	statusPanel := m.renderStatusPanel(leftWidth - 2)
	taskPanel := m.renderTaskPanel(topHeight - 2)
	logPanel := m.renderLogPanel(m.width-2, bottomHeight-2)

	statusBorder := m.getBorder(PanelStatus).Width(leftWidth - 2).Height(topHeight - 2)
	taskBorder := m.getBorder(PanelTasks).Width(rightWidth - 2).Height(topHeight - 2)
	logBorder := m.getBorder(PanelLogs).Width(m.width - 2).Height(bottomHeight - 2)

	topRow := lipgloss.JoinHorizontal(
		lipgloss.Top,
		statusBorder.Render(statusPanel),
		taskBorder.Render(taskPanel),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		topRow,
		logBorder.Render(logPanel),
		m.renderHelpBar(),
	)
}

func (m Model) getBorder(panel Panel) lipgloss.Style {
	if m.activePanel == panel {
		return m.styles.ActiveBorder
	}
	return m.styles.InactiveBorder
}

func (m Model) renderStatusPanel(width int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Bldr " + m.project))
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Target: "))
	b.WriteString(m.styles.Value.Render(m.target))
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Status: "))
	b.WriteString(m.statusStyle().Render(m.statusText()))
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Task: "))
	if m.currentTask != "" {
		b.WriteString(m.styles.Value.Render(m.currentTask))
		if m.currentCall != "" {
			b.WriteString(m.styles.Muted.Render(" " + m.currentCall))
		}
	} else {
		b.WriteString(m.styles.Muted.Render("None"))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Elapsed: "))
	b.WriteString(m.styles.Value.Render(m.elapsed()))
	b.WriteString("\n\n")

	done, total := m.progress()
	pct := 0
	if total > 0 {
		pct = done * 100 / total
	}
	b.WriteString(m.renderProgressBar(pct, width-4))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" %d/%d", done, total)))

	if m.failure != "" {
		b.WriteString("\n\n")
		b.WriteString(m.styles.StatusError.Render(m.failure))
	} else if m.recovered > 0 {
		b.WriteString("\n\n")
		b.WriteString(m.styles.StatusWarn.Render(fmt.Sprintf("%d recovered failure(s)", m.recovered)))
	}

	return b.String()
}

func (m Model) statusText() string {
	switch m.runStatus {
	case builder.RunRunning:
		return "Running " + m.spinner()
	case builder.RunSucceeded:
		return "Build Success!"
	case builder.RunFailed:
		return "Build Failed"
	default:
		return "Waiting"
	}
}

func (m Model) statusStyle() lipgloss.Style {
	switch m.runStatus {
	case builder.RunRunning:
		return m.styles.StatusRunning
	case builder.RunSucceeded:
		return m.styles.StatusOK
	case builder.RunFailed:
		return m.styles.StatusError
	default:
		return m.styles.StatusWarn
	}
}

func (m Model) elapsed() string {
	switch {
	case m.started.IsZero():
		return "-"
	case m.Done():
		return formatDuration(m.finished.Sub(m.started))
	default:
		return formatDuration(time.Since(m.started))
	}
}

// progress counts finished tasks.
func (m Model) progress() (done, total int) {
	for _, t := range m.tasks {
		switch t.Status {
		case builder.StatusSucceeded, builder.StatusFailed, builder.StatusSkipped:
			done++
		}
	}
	return done, len(m.tasks)
}

func (m Model) renderProgressBar(pct, width int) string {
	if width < 10 {
		width = 10
	}

	filled := width * pct / 100
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("=", filled) + strings.Repeat("-", width-filled)

	style := m.styles.StatusRunning
	switch m.runStatus {
	case builder.RunFailed:
		style = m.styles.StatusError
	case builder.RunSucceeded:
		style = m.styles.StatusOK
	}

	return "[" + style.Render(bar) + "]"
}

func (m Model) renderTaskPanel(height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Tasks"))
	b.WriteString("\n")

	if len(m.tasks) == 0 {
		b.WriteString(m.styles.Muted.Render("No tasks registered"))
		return b.String()
	}

	visible := height - 3
	if visible < 1 {
		visible = 1
	}

	scroll := m.taskScroll
	if m.selectedTask < scroll {
		scroll = m.selectedTask
	} else if m.selectedTask >= scroll+visible {
		scroll = m.selectedTask - visible + 1
	}

	for i := scroll; i < len(m.tasks) && i < scroll+visible; i++ {
		item := m.tasks[i]

		var icon string
		var style lipgloss.Style
		switch item.Status {
		case builder.StatusRunning:
			icon, style = m.spinner(), m.styles.StatusRunning
		case builder.StatusSucceeded:
			icon, style = "*", m.styles.StatusOK
		case builder.StatusFailed:
			icon, style = "x", m.styles.StatusError
		case builder.StatusSkipped:
			icon, style = "-", m.styles.Muted
		default:
			icon, style = "o", m.styles.Muted
		}

		line := fmt.Sprintf(" %s %s", style.Render(icon), item.Name)
		if i == m.selectedTask && m.activePanel == PanelTasks {
			line = m.styles.TaskSelected.Render(line)
		}
		if item.Status == builder.StatusRunning && item.Calls > 0 {
			line += m.styles.Muted.Render(fmt.Sprintf(" (call %d/%d)", item.Current+1, item.Calls))
		}
		if item.Failures > 0 {
			line += m.styles.StatusWarn.Render(fmt.Sprintf(" [%d failed]", item.Failures))
		}

		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.tasks) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", scroll+1, len(m.tasks))))
	}

	return b.String()
}

func (m Model) spinner() string {
	frames := []string{"|", "/", "-", "\\"}
	return frames[m.progressTick%len(frames)]
}

func (m Model) renderLogPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Output"))
	b.WriteString("\n")

	if len(m.logs) == 0 {
		b.WriteString(m.styles.Muted.Render("No output yet"))
		return b.String()
	}

	visible := height - 3
	if visible < 1 {
		visible = 1
	}

	start := m.logScroll - visible + 1
	if start < 0 {
		start = 0
	}

	for i := start; i <= m.logScroll && i < len(m.logs); i++ {
		entry := m.logs[i]

		var levelStyle lipgloss.Style
		switch entry.Level {
		case "debug":
			levelStyle = m.styles.LogDebug
		case "info":
			levelStyle = m.styles.LogInfo
		case "warn":
			levelStyle = m.styles.LogWarn
		case "error":
			levelStyle = m.styles.LogError
		default:
			levelStyle = m.styles.Muted
		}

		maxLen := width - 20
		msg := entry.Message
		if len(msg) > maxLen && maxLen > 3 {
			msg = msg[:maxLen-3] + "..."
		}

		b.WriteString(fmt.Sprintf("%s %s %s\n",
			m.styles.Muted.Render(entry.Time.Format("15:04:05")),
			levelStyle.Render(fmt.Sprintf("[%-5s]", entry.Level)),
			msg,
		))
	}

	return b.String()
}

func (m Model) renderHelpBar() string {
	helpItems := []struct {
		key  string
		desc string
	}{
		{"tab", "switch panel"},
		{"j/k", "up/down"},
		{"q", "quit"},
	}
	if !m.Done() {
		helpItems[2].desc = "abort build"
	}

	var parts []string
	for _, item := range helpItems {
		parts = append(parts, fmt.Sprintf("%s %s",
			m.styles.HelpKey.Render(item.key),
			m.styles.HelpText.Render(item.desc),
		))
	}

	return "  " + strings.Join(parts, "  |  ")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// AddLog appends a log line, following the tail unless the user has
// scrolled up.
func (m *Model) AddLog(level, message string) {
	following := len(m.logs) == 0 || m.logScroll >= len(m.logs)-1
	m.logs = append(m.logs, LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: message,
	})
	if len(m.logs) > maxLogs {
		drop := len(m.logs) - maxLogs
		m.logs = m.logs[drop:]
		m.logScroll -= drop
		if m.logScroll < 0 {
			m.logScroll = 0
		}
	}
	if following {
		m.logScroll = len(m.logs) - 1
	}
}

// Logs returns the log lines.
func (m Model) Logs() []LogEntry {
	return m.logs
}

// Tasks returns the task rows.
func (m Model) Tasks() []TaskItem {
	return m.tasks
}
