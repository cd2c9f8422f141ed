// Package config handles loading and validating bldr configuration.
// Project files may be YAML, JSON, TOML or HCL; an optional global YAML file
// supplies defaults and BLDR_* environment variables override both.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcus/bldr/internal/call"
	"github.com/marcus/bldr/internal/logging"
	"github.com/marcus/bldr/internal/profile"
	"github.com/marcus/bldr/internal/task"
)

// Default values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultDebounce  = 500 * time.Millisecond
)

// ProjectConfigName is the file written by `bldr init`.
const ProjectConfigName = ".bldr.yml"

// ProjectConfigNames lists the project files looked up in a project
// directory, in order of preference. The .dist file is a committed fallback.
var ProjectConfigNames = []string{
	".bldr.yml",
	".bldr.yaml",
	".bldr.json",
	".bldr.toml",
	".bldr.hcl",
	".bldr.yml.dist",
}

// DefaultWatchIgnore lists the patterns the watcher skips unless configured.
var DefaultWatchIgnore = []string{".git", "vendor", "node_modules"}

var (
	ErrNoProjectConfig  = errors.New("no bldr project file found")
	ErrNoTasks          = errors.New("no tasks defined")
	ErrInvalidLogLevel  = errors.New("invalid log level: must be debug, info, warn, or error")
	ErrInvalidLogFormat = errors.New("invalid log format: must be json or text")
	ErrEmptyCallType    = errors.New("call type must not be empty")
	ErrInvalidDebounce  = errors.New("watch debounce must not be negative")
	ErrInvalidCron      = errors.New("invalid cron expression")
)

// Config holds all bldr configuration.
type Config struct {
	Name        string                   `mapstructure:"name"`
	Description string                   `mapstructure:"description"`
	Profiles    map[string]ProfileConfig `mapstructure:"profiles"`
	Tasks       map[string]TaskConfig    `mapstructure:"tasks"`
	Logging     LoggingConfig            `mapstructure:"logging"`
	History     HistoryConfig            `mapstructure:"history"`
	Reporting   ReportingConfig          `mapstructure:"reporting"`
	Watch       WatchConfig              `mapstructure:"watch"`
	Schedule    ScheduleConfig           `mapstructure:"schedule"`

	// File is the project file the configuration was read from.
	File string `mapstructure:"-"`
}

// ProfileConfig is a profile entry.
type ProfileConfig struct {
	Description string     `mapstructure:"description"`
	Tasks       []string   `mapstructure:"tasks"`
	Uses        UsesConfig `mapstructure:"uses"`
}

// UsesConfig lists profiles imported around a profile's own tasks.
type UsesConfig struct {
	Before []string `mapstructure:"before"`
	After  []string `mapstructure:"after"`
}

// TaskConfig is a task entry. Each call is a mapping with a "type" key; its
// options are either nested under "config" or given inline next to "type".
type TaskConfig struct {
	Description  string           `mapstructure:"description"`
	RunOnFailure *bool            `mapstructure:"runonfailure"`
	Calls        []map[string]any `mapstructure:"calls"`
}

// LoggingConfig configures the log files.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// HistoryConfig configures the build history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ReportingConfig configures per-build reports.
type ReportingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// WatchConfig configures `bldr watch`.
type WatchConfig struct {
	Paths    []string      `mapstructure:"paths"`
	Ignore   []string      `mapstructure:"ignore"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// ScheduleConfig configures `bldr schedule`.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// GlobalConfigPath returns the global config file location.
func GlobalConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "bldr", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bldr", "config.yaml")
}

// DataDir returns the directory for history and reports.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "bldr")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "bldr")
}

// FindProjectConfig returns the first project file present in dir.
func FindProjectConfig(dir string) (string, bool) {
	for _, name := range ProjectConfigNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// ProjectDir returns the directory holding the project file.
func (c *Config) ProjectDir() string {
	if c.File == "" {
		return ""
	}
	return filepath.Dir(c.File)
}

// Validate checks configuration values.
func Validate(cfg *Config) error {
	if len(cfg.Tasks) == 0 {
		return ErrNoTasks
	}
	if cfg.Logging.Level != "" {
		if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
			return ErrInvalidLogLevel
		}
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return ErrInvalidLogFormat
	}
	for _, name := range sortedKeys(cfg.Tasks) {
		for _, raw := range cfg.Tasks[name].Calls {
			if typ, _ := raw["type"].(string); strings.TrimSpace(typ) == "" {
				return ErrEmptyCallType
			}
		}
	}
	if cfg.Watch.Debounce < 0 {
		return ErrInvalidDebounce
	}
	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			return ErrInvalidCron
		}
	}
	return nil
}

// Catalog converts the task and profile sections into the catalogs the
// builder runs from. Names and references are lower-cased to match the
// case-insensitive configuration keys.
func (c *Config) Catalog() (task.Catalog, profile.Catalog) {
	tasks := make(task.Catalog, len(c.Tasks))
	for name, tc := range c.Tasks {
		def := task.Definition{
			Description:  tc.Description,
			RunOnFailure: tc.RunOnFailure,
			Calls:        make([]call.Spec, 0, len(tc.Calls)),
		}
		for _, raw := range tc.Calls {
			def.Calls = append(def.Calls, callSpec(raw))
		}
		tasks[strings.ToLower(name)] = def
	}

	profiles := make(profile.Catalog, len(c.Profiles))
	for name, pc := range c.Profiles {
		profiles[strings.ToLower(name)] = profile.Profile{
			Description: pc.Description,
			Tasks:       lowerAll(pc.Tasks),
			Uses: profile.Uses{
				Before: lowerAll(pc.Uses.Before),
				After:  lowerAll(pc.Uses.After),
			},
		}
	}
	return tasks, profiles
}

// callSpec splits a raw call mapping into its type and options.
func callSpec(raw map[string]any) call.Spec {
	spec := call.Spec{Config: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case "type":
			spec.Type, _ = v.(string)
		case "config":
			if nested, ok := v.(map[string]any); ok {
				for nk, nv := range nested {
					spec.Config[nk] = nv
				}
				continue
			}
			spec.Config[k] = v
		default:
			spec.Config[k] = v
		}
	}
	return spec
}

func lowerAll(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
