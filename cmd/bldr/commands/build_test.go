package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/blocks"
	"github.com/marcus/bldr/internal/builder"
	"github.com/marcus/bldr/internal/call"
	"github.com/marcus/bldr/internal/config"
	"github.com/marcus/bldr/internal/history"
	"github.com/marcus/bldr/internal/profile"
	"github.com/marcus/bldr/internal/task"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

const demoConfig = `name: demo
description: Demo project
profiles:
  default:
    description: Everything
    uses:
      before: [prep]
    tasks: [greet]
  prep:
    tasks: [wait]
  broken:
    tasks: [boom, greet]
  tolerant:
    tasks: [soft, greet]
tasks:
  wait:
    calls:
      - type: sleep
        seconds: 0
  greet:
    description: Say hello
    calls:
      - type: service
        service: echo
        arguments: [hello, world]
  boom:
    calls:
      - type: service
        service: fail
        arguments: [kaboom]
  soft:
    runOnFailure: true
    calls:
      - type: service
        service: fail
        arguments: [soft failure]
watch:
  debounce: 50ms
`

// writeProject writes a project file into a fresh directory and points the
// data and config directories into the test's temp space.
func writeProject(t *testing.T, content string) string {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.ProjectConfigName), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func loadTestProject(t *testing.T, dir string) *project {
	t.Helper()
	cfg, err := config.LoadFromPaths(dir, "")
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	return newProject(cfg, dir)
}

// newTestCmd returns a command carrying the root persistent flags.
func newTestCmd(dir string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("dir", dir, "")
	cmd.Flags().Bool("no-color", true, "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.SetContext(context.Background())
	return cmd
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func recentBuilds(t *testing.T, p *project) []history.Record {
	t.Helper()
	store, err := history.Open(p.cfg.History.Path)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer func() { _ = store.Close() }()
	recs, err := store.Recent(context.Background(), 50, "")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	return recs
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		tasks   []string
		want    builder.Request
		wantErr bool
	}{
		{name: "profile", args: []string{"CI"}, want: builder.Request{Profile: "ci"}},
		{name: "tasks", tasks: []string{" Lint", "", "test"}, want: builder.Request{Tasks: []string{"lint", "test"}}},
		{name: "both", args: []string{"ci"}, tasks: []string{"lint"}, want: builder.Request{Profile: "ci", Tasks: []string{"lint"}}},
		{name: "neither", wantErr: true},
		{name: "blank task only", tasks: []string{" "}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRequest(tt.args, tt.tasks)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRequest: %v", err)
			}
			if got.Profile != tt.want.Profile || strings.Join(got.Tasks, ",") != strings.Join(tt.want.Tasks, ",") {
				t.Errorf("parseRequest = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTarget(t *testing.T) {
	if got := target(builder.Request{Profile: "ci"}); got != "ci" {
		t.Errorf("target = %q, want ci", got)
	}
	if got := target(builder.Request{Profile: "ci", Tasks: []string{"a", "b"}}); got != "tasks: a, b" {
		t.Errorf("target = %q, want tasks: a, b", got)
	}
}

func TestFormatBlockEqualWidths(t *testing.T) {
	s := newBuildStyles()
	out := formatBlock(s.InfoBlock, "short", "a much longer line")
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	width := lipgloss.Width(lines[0])
	for i, l := range lines {
		if lipgloss.Width(l) != width {
			t.Errorf("line %d width = %d, want %d", i, lipgloss.Width(l), width)
		}
	}
	if !strings.Contains(out, "a much longer line") {
		t.Errorf("block missing content: %q", out)
	}
}

func TestTally(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		tasks []builder.TaskStatus
		want  string
	}{
		{name: "empty", want: "0 tasks in 1.5s"},
		{name: "single", tasks: []builder.TaskStatus{builder.StatusSucceeded}, want: "1 task: 1 succeeded in 1.5s"},
		{
			name:  "mixed",
			tasks: []builder.TaskStatus{builder.StatusSucceeded, builder.StatusFailed, builder.StatusSkipped, builder.StatusSkipped},
			want:  "4 tasks: 1 succeeded, 1 failed, 2 skipped in 1.5s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &builder.Result{StartTime: start, EndTime: start.Add(1500 * time.Millisecond)}
			for i, st := range tt.tasks {
				res.Tasks = append(res.Tasks, builder.TaskResult{Name: string(rune('a' + i)), Status: st})
			}
			if got := tally(res); got != tt.want {
				t.Errorf("tally = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLiveRendererOutput(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))

	var out bytes.Buffer
	b := newBuilder(p, &out, newLiveRenderer(&out).HandleEvent)
	if _, err := b.Build(context.Background(), builder.Request{Profile: "tolerant"}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		">>> soft",
		"[1/1] service",
		"call #1 (service) failed: service fail: soft failure",
		"<<< soft failed",
		">>> greet - Say hello",
		"hello world",
		"<<< greet done",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, ">>> soft") > strings.Index(got, ">>> greet") {
		t.Errorf("tasks rendered out of order:\n%s", got)
	}
}

func TestExecuteBuildSuccess(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))

	var out bytes.Buffer
	opts := buildOptions{req: builder.Request{Profile: "default"}, trigger: history.TriggerManual, quiet: true}
	res, err := executeBuild(context.Background(), p, &out, opts)
	if err != nil {
		t.Fatalf("executeBuild: %v", err)
	}
	if res.Status != builder.RunSucceeded {
		t.Errorf("status = %s, want succeeded", res.Status)
	}
	if len(res.Tasks) != 2 || res.Tasks[0].Name != "wait" || res.Tasks[1].Name != "greet" {
		t.Errorf("tasks = %+v, want wait then greet", res.Tasks)
	}

	got := out.String()
	for _, want := range []string{
		"Building the 'demo' project",
		" - Demo project - ",
		"Using the 'default' profile",
		" - Everything - ",
		"hello world",
		"Build Success!",
		"2 tasks: 2 succeeded",
		"Report:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "|_.__/") {
		t.Errorf("quiet build printed the logo")
	}

	recs := recentBuilds(t, p)
	if len(recs) != 1 {
		t.Fatalf("history has %d builds, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Status != builder.RunSucceeded || rec.Profile != "default" || rec.Trigger != history.TriggerManual {
		t.Errorf("record = %+v", rec)
	}
	if rec.ReportPath == "" {
		t.Fatal("record has no report path")
	}
	if _, err := os.Stat(rec.ReportPath); err != nil {
		t.Errorf("report not written: %v", err)
	}
	if _, err := os.Stat(resultsPath(rec.ReportPath)); err != nil {
		t.Errorf("results not written: %v", err)
	}
}

func TestExecuteBuildFailure(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))

	var out bytes.Buffer
	opts := buildOptions{req: builder.Request{Profile: "broken"}, trigger: history.TriggerManual, quiet: true}
	res, err := executeBuild(context.Background(), p, &out, opts)

	var failed *buildFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want *buildFailedError", err)
	}
	if !errors.Is(err, builder.ErrCallFailed) {
		t.Errorf("err = %v, want ErrCallFailed in chain", err)
	}
	if greet, _ := res.Task("greet"); greet.Status != builder.StatusSkipped {
		t.Errorf("greet status = %s, want skipped", greet.Status)
	}
	if strings.Contains(out.String(), "hello world") {
		t.Error("task after fatal failure ran")
	}
	if !strings.Contains(out.String(), "Build Failed: ") || !strings.Contains(out.String(), "kaboom") {
		t.Errorf("output missing failure block:\n%s", out.String())
	}

	recs := recentBuilds(t, p)
	if len(recs) != 1 || recs[0].Status != builder.RunFailed || !strings.Contains(recs[0].Error, "kaboom") {
		t.Errorf("history = %+v, want one failed build", recs)
	}
}

func TestExecuteBuildRecoveredFailure(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))

	var out bytes.Buffer
	opts := buildOptions{req: builder.Request{Profile: "tolerant"}, quiet: true, noHistory: true, noReport: true}
	if _, err := executeBuild(context.Background(), p, &out, opts); err != nil {
		t.Fatalf("executeBuild: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Completed with 1 recovered failure(s):") {
		t.Errorf("output missing recovered summary:\n%s", got)
	}
	if !strings.Contains(got, "soft call #1 (service): service fail: soft failure") {
		t.Errorf("output missing recovered failure:\n%s", got)
	}
}

func TestExecuteBuildUnknownProfile(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))

	var out bytes.Buffer
	opts := buildOptions{req: builder.Request{Profile: "nope"}}
	res, err := executeBuild(context.Background(), p, &out, opts)
	if !errors.Is(err, profile.ErrUnknownProfile) {
		t.Fatalf("err = %v, want ErrUnknownProfile", err)
	}
	for _, unwanted := range []string{"Using the 'nope' profile", "|_.__/"} {
		if strings.Contains(out.String(), unwanted) {
			t.Errorf("output shows %q before the profile error:\n%s", unwanted, out.String())
		}
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if !strings.Contains(out.String(), "there is no profile with the name 'nope'") {
		t.Errorf("output missing profile error:\n%s", out.String())
	}
	if recs := recentBuilds(t, p); len(recs) != 1 || recs[0].Status != builder.RunFailed {
		t.Errorf("history = %+v, want one failed build", recs)
	}
}

func TestExecuteBuildExplicitTasks(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))

	var out bytes.Buffer
	opts := buildOptions{req: builder.Request{Tasks: []string{"greet", "wait"}}, quiet: true, noReport: true}
	res, err := executeBuild(context.Background(), p, &out, opts)
	if err != nil {
		t.Fatalf("executeBuild: %v", err)
	}
	if len(res.Tasks) != 2 || res.Tasks[0].Name != "greet" {
		t.Errorf("tasks = %+v, want greet then wait", res.Tasks)
	}
	if strings.Contains(out.String(), "Using the") {
		t.Errorf("explicit task build printed a profile banner:\n%s", out.String())
	}
	recs := recentBuilds(t, p)
	if len(recs) != 1 || recs[0].Profile != "" || recs[0].Target() != "tasks: greet, wait" {
		t.Errorf("history = %+v", recs)
	}
	if recs[0].ReportPath != "" {
		t.Errorf("report written despite noReport: %s", recs[0].ReportPath)
	}
}

func TestExecuteBuildNoHistory(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))

	opts := buildOptions{req: builder.Request{Profile: "prep"}, quiet: true, noHistory: true, noReport: true}
	if _, err := executeBuild(context.Background(), p, io.Discard, opts); err != nil {
		t.Fatalf("executeBuild: %v", err)
	}
	if _, err := os.Stat(p.cfg.History.Path); !os.IsNotExist(err) {
		t.Errorf("history database created: %v", err)
	}
	if _, err := os.Stat(p.cfg.Reporting.Dir); !os.IsNotExist(err) {
		t.Errorf("reports dir created: %v", err)
	}
}

func TestExecuteBuildInterrupted(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := buildOptions{req: builder.Request{Profile: "default"}, quiet: true, noReport: true}
	_, err := executeBuild(ctx, p, io.Discard, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if recs := recentBuilds(t, p); len(recs) != 1 {
		t.Errorf("interrupted build not recorded: %d builds", len(recs))
	}
}

func TestPrintPlan(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))
	req := builder.Request{Profile: "default"}
	reg, err := newBuilder(p, io.Discard).Plan(req)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var out bytes.Buffer
	printPlan(&out, req, reg.Names(), p.profiles)
	want := "Plan for default - Everything\n  1. wait\n  2. greet\n"
	if out.String() != want {
		t.Errorf("printPlan = %q, want %q", out.String(), want)
	}
}

func TestRenderList(t *testing.T) {
	p := loadTestProject(t, writeProject(t, demoConfig))
	p.tasks["odd"] = task.Definition{Calls: []call.Spec{{Type: "bogus"}}}

	var out bytes.Buffer
	renderList(&out, p, blocks.Registry())
	got := out.String()
	for _, want := range []string{
		"Profiles",
		"default - Everything",
		"before: prep",
		"tasks:  greet",
		"Tasks",
		"greet - Say hello",
		"soft [runOnFailure]",
		"calls: bogus?",
		"Call types",
		"execute: exec",
		"miscellaneous: service, sleep",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("list missing %q:\n%s", want, got)
		}
	}
}

func TestHostServices(t *testing.T) {
	var out bytes.Buffer
	svc := hostServices(&out)

	if err := svc["echo"](context.Background(), []any{"a", 1, true}); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if out.String() != "a 1 true\n" {
		t.Errorf("echo wrote %q", out.String())
	}
	if err := svc["log"](context.Background(), []any{"x"}); err != nil {
		t.Errorf("log: %v", err)
	}
	if err := svc["fail"](context.Background(), nil); err == nil || err.Error() != "failed" {
		t.Errorf("fail() = %v, want failed", err)
	}
	if err := svc["fail"](context.Background(), []any{"bad", "thing"}); err == nil || err.Error() != "bad thing" {
		t.Errorf("fail(args) = %v, want bad thing", err)
	}
}

func TestProjectName(t *testing.T) {
	dir := writeProject(t, "tasks:\n  a:\n    calls:\n      - type: sleep\n        seconds: 0\n")
	p := loadTestProject(t, dir)
	if got := p.name(); got != filepath.Base(dir) {
		t.Errorf("name = %q, want dir base %q", got, filepath.Base(dir))
	}
}

func TestLoadProjectFromFlags(t *testing.T) {
	dir := writeProject(t, demoConfig)

	p, err := loadProject(newTestCmd(dir))
	if err != nil {
		t.Fatalf("loadProject --dir: %v", err)
	}
	if p.dir != dir || p.name() != "demo" {
		t.Errorf("project = %s %s", p.dir, p.name())
	}

	cmd := newTestCmd("")
	if err := cmd.Flags().Set("config", filepath.Join(dir, config.ProjectConfigName)); err != nil {
		t.Fatal(err)
	}
	p, err = loadProject(cmd)
	if err != nil {
		t.Fatalf("loadProject --config: %v", err)
	}
	if p.dir != dir {
		t.Errorf("dir = %s, want %s", p.dir, dir)
	}

	if _, err := loadProject(newTestCmd(t.TempDir())); !errors.Is(err, config.ErrNoProjectConfig) {
		t.Errorf("empty dir err = %v, want ErrNoProjectConfig", err)
	}
}
