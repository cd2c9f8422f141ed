package execute

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/marcus/bldr/internal/call"
	"github.com/marcus/bldr/internal/logging"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func run(t *testing.T, config map[string]any, workDir string) (string, error) {
	t.Helper()
	c, err := NewExec(config)
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}
	var out strings.Builder
	err = c.Execute(context.Background(), &call.Context{
		Task:    "t",
		WorkDir: workDir,
		Output:  &out,
		Logger:  logging.Nop(),
	})
	return out.String(), err
}

func TestNewExec(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		want    Options
		wantErr bool
	}{
		{
			name:   "defaults",
			config: map[string]any{"executable": "make"},
			want:   Options{Executable: "make", SuccessCodes: []int{0}},
		},
		{
			name: "full",
			config: map[string]any{
				"executable":   "go",
				"arguments":    []any{"test", "./..."},
				"cwd":          "src",
				"env":          map[string]any{"CGO_ENABLED": "0"},
				"successCodes": []any{0, 1},
				"timeout":      "5m",
			},
			want: Options{
				Executable:   "go",
				Arguments:    []string{"test", "./..."},
				Cwd:          "src",
				Env:          map[string]string{"CGO_ENABLED": "0"},
				SuccessCodes: []int{0, 1},
				Timeout:      5 * time.Minute,
			},
		},
		{
			name:   "comma separated arguments",
			config: map[string]any{"executable": "echo", "arguments": "a,b"},
			want:   Options{Executable: "echo", Arguments: []string{"a", "b"}, SuccessCodes: []int{0}},
		},
		{name: "missing executable", config: map[string]any{}, wantErr: true},
		{name: "negative timeout", config: map[string]any{"executable": "x", "timeout": "-1s"}, wantErr: true},
		{name: "unknown key", config: map[string]any{"executable": "x", "args": "y"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewExec(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewExec() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := c.(*Exec).Options(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Options() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExecSuccess(t *testing.T) {
	skipWithoutShell(t)

	out, err := run(t, map[string]any{
		"executable": "sh",
		"arguments":  []any{"-c", "echo hello; echo oops 1>&2"},
	}, "")
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	for _, want := range []string{"$ sh -c", "hello", "oops"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestExecExitCodes(t *testing.T) {
	skipWithoutShell(t)

	_, err := run(t, map[string]any{"executable": "sh", "arguments": []any{"-c", "exit 3"}}, "")
	if err == nil || !strings.Contains(err.Error(), "exited with code 3") {
		t.Errorf("error = %v, want exit code 3", err)
	}

	_, err = run(t, map[string]any{
		"executable":   "sh",
		"arguments":    []any{"-c", "exit 3"},
		"successCodes": []any{0, 3},
	}, "")
	if err != nil {
		t.Errorf("exit 3 should be accepted: %v", err)
	}
}

func TestExecWorkDirAndEnv(t *testing.T) {
	skipWithoutShell(t)

	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, map[string]any{
		"executable": "sh",
		"arguments":  []any{"-c", "pwd; echo $BLDR_TEST_VALUE"},
		"cwd":        "sub",
		"env":        map[string]any{"BLDR_TEST_VALUE": "from-env"},
	}, root)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	resolved, _ := filepath.EvalSymlinks(sub)
	if !strings.Contains(out, "sub") && !strings.Contains(out, resolved) {
		t.Errorf("command did not run in %s: %q", sub, out)
	}
	if !strings.Contains(out, "from-env") {
		t.Errorf("env override missing: %q", out)
	}
}

func TestExecMissingExecutable(t *testing.T) {
	_, err := run(t, map[string]any{"executable": "bldr-does-not-exist-anywhere"}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, exec.ErrNotFound) && !strings.Contains(err.Error(), "bldr-does-not-exist-anywhere") {
		t.Errorf("error = %v", err)
	}
}

func TestExecTimeout(t *testing.T) {
	skipWithoutShell(t)

	_, err := run(t, map[string]any{
		"executable": "sh",
		"arguments":  []any{"-c", "sleep 5"},
		"timeout":    "50ms",
	}, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestDir(t *testing.T) {
	tests := []struct {
		cwd, workDir, want string
	}{
		{"", "/work", "/work"},
		{"sub", "/work", filepath.Join("/work", "sub")},
		{"/abs", "/work", "/abs"},
		{"rel", "", "rel"},
	}
	for _, tt := range tests {
		e := &Exec{opts: Options{Cwd: tt.cwd}}
		if got := e.dir(tt.workDir); got != tt.want {
			t.Errorf("dir(%q) with cwd %q = %q, want %q", tt.workDir, tt.cwd, got, tt.want)
		}
	}
}
