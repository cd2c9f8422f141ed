package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPrintLogLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "json with component",
			line: `{"level":"info","time":"2026-01-02T15:04:05Z","component":"build","message":"build requested"}`,
			want: "15:04:05 INF [build] build requested\n",
		},
		{
			name: "json with error",
			line: `{"level":"error","time":"2026-01-02T15:04:05Z","message":"save failed","error":"disk full"}`,
			want: "15:04:05 ERR save failed error=disk full\n",
		},
		{name: "plain text", line: "not json", want: "not json\n"},
		{name: "json without level", line: `{"a":1}`, want: "{\"a\":1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			printLogLine(&out, tt.line)
			if got := out.String(); got != tt.want {
				t.Errorf("printLogLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatLogLevel(t *testing.T) {
	tests := map[string]string{"debug": "DBG", "info": "INF", "warn": "WRN", "error": "ERR", "fatal": "FAT", "x": "X"}
	for in, want := range tests {
		if got := formatLogLevel(in); got != want {
			t.Errorf("formatLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadLastLines(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "bldr-2026-01-01.log")
	newer := filepath.Join(dir, "bldr-2026-01-02.log")
	if err := os.WriteFile(older, []byte("a\nb\nc\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, []byte("d\ne\n"), 0644); err != nil {
		t.Fatal(err)
	}
	files := []string{newer, older}

	tests := []struct {
		n    int
		want string
	}{
		{n: 1, want: "e"},
		{n: 2, want: "d,e"},
		{n: 4, want: "b,c,d,e"},
		{n: 10, want: "a,b,c,d,e"},
	}
	for _, tt := range tests {
		if got := strings.Join(readLastLines(files, tt.n), ","); got != tt.want {
			t.Errorf("readLastLines(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFollowLogs(t *testing.T) {
	dir := t.TempDir()
	path := todayLogFile(dir)
	if err := os.WriteFile(path, []byte(`{"level":"info","time":"2026-01-02T15:04:05Z","message":"old"}`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- followLogs(ctx, out, dir) }()
	waitForOutput(t, out, "Following logs", 1)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"level":"warn","time":"2026-01-02T15:04:06Z","message":"fresh"}` + "\n")
	_ = f.Close()

	waitForOutput(t, out, "WRN fresh", 1)
	if strings.Contains(out.String(), "old") {
		t.Errorf("follow replayed existing lines:\n%s", out.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("followLogs: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("followLogs did not stop")
	}
}
