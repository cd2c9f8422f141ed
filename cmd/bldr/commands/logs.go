package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View logs",
	Long: `View bldr logs.

Displays recent log entries from the configured log directory.
Use --follow to stream logs while builds run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")

		if _, err := setupCommand(cmd); err != nil {
			return err
		}
		logger := logging.Get()
		files, err := logger.LogFiles()
		if err != nil {
			return fmt.Errorf("reading log dir: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(files) == 0 && !follow {
			fmt.Fprintln(out, "No log files found.")
			return nil
		}
		for _, line := range readLastLines(files, tail) {
			printLogLine(out, line)
		}
		if !follow {
			return nil
		}

		current := logger.CurrentLogPath()
		if current == "" {
			return fmt.Errorf("logging to stderr, nothing to follow")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followLogs(ctx, out, filepath.Dir(current))
	},
}

func init() {
	logsCmd.Flags().IntP("tail", "n", 50, "Number of log lines to show")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	rootCmd.AddCommand(logsCmd)
}

// logEntry is a parsed JSON log line.
type logEntry struct {
	Level     string    `json:"level"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// followLogs prints lines appended to today's log file until ctx is done,
// switching files at date rollover.
func followLogs(ctx context.Context, w io.Writer, logDir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(logDir); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	var (
		currentFile string
		file        *os.File
		reader      *bufio.Reader
	)
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()
	open := func(path string, fromEnd bool) {
		if file != nil {
			_ = file.Close()
			file, reader = nil, nil
		}
		currentFile = path
		f, err := os.Open(path)
		if err != nil {
			return
		}
		if fromEnd {
			_, _ = f.Seek(0, io.SeekEnd)
		}
		file, reader = f, bufio.NewReader(f)
	}
	open(todayLogFile(logDir), true)

	fmt.Fprintln(w, "--- Following logs (Ctrl+C to exit) ---")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if today := todayLogFile(logDir); today != currentFile || reader == nil {
				open(today, false)
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || reader == nil {
				continue
			}
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					// Keep a partial line for the next write.
					if line != "" {
						_, _ = file.Seek(-int64(len(line)), io.SeekCurrent)
						reader.Reset(file)
					}
					break
				}
				printLogLine(w, strings.TrimSuffix(line, "\n"))
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Component("logs").Warnf("watcher error: %v", err)
		}
	}
}

func todayLogFile(logDir string) string {
	return filepath.Join(logDir, fmt.Sprintf("bldr-%s.log", time.Now().Format("2006-01-02")))
}

// readLastLines returns the last n lines across files, which are ordered
// newest first.
func readLastLines(files []string, n int) []string {
	var lines []string
	for _, file := range files {
		if len(lines) >= n {
			break
		}
		fileLines := readFileLines(file)
		remaining := n - len(lines)
		if len(fileLines) > remaining {
			fileLines = fileLines[len(fileLines)-remaining:]
		}
		lines = append(fileLines, lines...)
	}
	return lines
}

func readFileLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// printLogLine formats JSON log lines; anything else is printed as is.
func printLogLine(w io.Writer, line string) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Level == "" {
		fmt.Fprintln(w, line)
		return
	}

	s := newBuildStyles()
	level := formatLogLevel(entry.Level)
	switch entry.Level {
	case "warn":
		level = s.Warn.Render(level)
	case "error", "fatal", "panic":
		level = s.Error.Render(level)
	default:
		level = s.Muted.Render(level)
	}

	msg := entry.Message
	if entry.Component != "" {
		msg = fmt.Sprintf("[%s] %s", entry.Component, msg)
	}
	if entry.Error != "" {
		msg += " error=" + entry.Error
	}
	fmt.Fprintf(w, "%s %s %s\n", entry.Time.Format("15:04:05"), level, msg)
}

func formatLogLevel(level string) string {
	switch level {
	case "debug":
		return "DBG"
	case "info":
		return "INF"
	case "warn":
		return "WRN"
	case "error":
		return "ERR"
	default:
		if len(level) > 3 {
			level = level[:3]
		}
		return strings.ToUpper(level)
	}
}
