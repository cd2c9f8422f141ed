package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func logName(t time.Time) string {
	return "bldr-" + t.Format("2006-01-02") + ".log"
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "json to file",
			cfg:     Config{Path: tmpDir, Level: "info", Format: "json"},
			wantErr: false,
		},
		{
			name:    "text format",
			cfg:     Config{Path: tmpDir, Level: "debug", Format: "text"},
			wantErr: false,
		},
		{
			name:    "invalid level",
			cfg:     Config{Path: tmpDir, Level: "invalid"},
			wantErr: true,
		},
		{
			name:    "stream only",
			cfg:     Config{Level: "info", Format: "json", Output: &bytes.Buffer{}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && logger != nil {
				_ = logger.Close()
			}
		})
	}
}

func TestLoggerWritesFile(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(Config{Path: tmpDir, Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Debug("debug msg")
	logger.Infof("info %s", "formatted")
	logger.WarnCtx("warn ctx", map[string]any{"task": "lint"})
	logger.ErrorCtx("error ctx", map[string]any{"call": 2})
	_ = logger.Close()

	logFile := filepath.Join(tmpDir, logName(time.Now()))
	if logger.CurrentLogPath() != logFile {
		t.Errorf("CurrentLogPath() = %q, want %q", logger.CurrentLogPath(), logFile)
	}
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	for _, want := range []string{"debug msg", "info formatted", `"task":"lint"`, `"call":2`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q:\n%s", want, data)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be written")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	componentLogger := logger.WithComponent("builder")
	if componentLogger.component != "builder" {
		t.Errorf("expected component 'builder', got '%s'", componentLogger.component)
	}
	componentLogger.Info("test message")
	if !strings.Contains(buf.String(), `"component":"builder"`) {
		t.Errorf("component field missing: %s", buf.String())
	}
}

func TestLogRetention(t *testing.T) {
	tmpDir := t.TempDir()

	for _, days := range []int{-10, -8, -3} {
		name := filepath.Join(tmpDir, logName(time.Now().AddDate(0, 0, days)))
		if err := os.WriteFile(name, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create test log file: %v", err)
		}
	}

	logger, err := New(Config{Path: tmpDir, Level: "info", RetentionDays: 7})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	// cleanup runs in the background
	time.Sleep(100 * time.Millisecond)

	cutoff := time.Now().AddDate(0, 0, -7)
	entries, _ := os.ReadDir(tmpDir)
	for _, entry := range entries {
		if logDate, ok := parseLogDate(entry.Name()); ok && logDate.Before(cutoff) {
			t.Errorf("old log file should have been deleted: %s", entry.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(tmpDir, logName(time.Now().AddDate(0, 0, -3)))); err != nil {
		t.Errorf("recent log file should be kept: %v", err)
	}
}

func TestLogFiles(t *testing.T) {
	tmpDir := t.TempDir()

	for _, days := range []int{0, -1, -2} {
		name := filepath.Join(tmpDir, logName(time.Now().AddDate(0, 0, days)))
		if err := os.WriteFile(name, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create test log file: %v", err)
		}
	}
	_ = os.WriteFile(filepath.Join(tmpDir, "other.txt"), []byte("x"), 0644)

	logger := &Logger{logDir: tmpDir}
	files, err := logger.LogFiles()
	if err != nil {
		t.Fatalf("LogFiles() error: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("expected 3 log files, got %d", len(files))
	}
	if len(files) >= 2 && files[0] < files[1] {
		t.Error("log files not sorted newest first")
	}
}

func TestGlobalLogger(t *testing.T) {
	if err := Init(Config{Path: t.TempDir(), Level: "info"}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	t.Cleanup(func() {
		globalMu.Lock()
		if globalLogger != nil {
			_ = globalLogger.Close()
		}
		globalLogger = nil
		globalMu.Unlock()
	})

	if Get() == nil {
		t.Error("Get() returned nil")
	}
	if c := Component("test"); c.component != "test" {
		t.Errorf("Component() returned wrong component %q", c.component)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("expected default retention 7, got %d", cfg.RetentionDays)
	}
	if !strings.Contains(cfg.Path, filepath.Join("bldr", "logs")) {
		t.Errorf("expected default path to contain 'bldr/logs', got '%s'", cfg.Path)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"DEBUG", false},
		{"invalid", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			_, err := ParseLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("ExpandPath(~/logs) = %q", got)
	}
	if got := ExpandPath("/var/log"); got != "/var/log" {
		t.Errorf("ExpandPath(/var/log) = %q", got)
	}
}
