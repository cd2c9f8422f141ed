package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/marcus/bldr/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. BLDR_LOGGING_LEVEL.
const EnvPrefix = "BLDR"

// keyDelimiter separates nested viper keys. Task and profile names may
// contain dots (build.js), so "." cannot be used.
const keyDelimiter = "::"

func key(parts ...string) string {
	return strings.Join(parts, keyDelimiter)
}

// Load reads the project file in projectDir merged over the global config.
func Load(projectDir string) (*Config, error) {
	return LoadFromPaths(projectDir, GlobalConfigPath())
}

// LoadFromPaths reads the project file found in projectDir merged over the
// global config at globalPath. An empty globalPath skips the global file.
func LoadFromPaths(projectDir, globalPath string) (*Config, error) {
	file, ok := FindProjectConfig(projectDir)
	if !ok {
		return nil, fmt.Errorf("%w in %s (expected one of %s)", ErrNoProjectConfig, projectDir, strings.Join(ProjectConfigNames, ", "))
	}
	return LoadFile(file, globalPath)
}

// LoadFile reads an explicit project file merged over the global config.
func LoadFile(file, globalPath string) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	if globalPath != "" {
		if _, err := os.Stat(globalPath); err == nil {
			v.SetConfigFile(globalPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading global config: %w", err)
			}
		}
	}

	if err := mergeProjectFile(v, file); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = file
	cfg.Logging.Path = logging.ExpandPath(cfg.Logging.Path)
	cfg.History.Path = logging.ExpandPath(cfg.History.Path)
	cfg.Reporting.Dir = logging.ExpandPath(cfg.Reporting.Dir)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return &cfg, nil
}

func mergeProjectFile(v *viper.Viper, file string) error {
	if strings.HasSuffix(file, ".hcl") {
		settings, err := readHCL(file)
		if err != nil {
			return err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return fmt.Errorf("merging %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigFile(file)
	v.SetConfigType(configType(file))
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("reading project config %s: %w", file, err)
	}
	return nil
}

// configType maps a project file name to a viper config type.
func configType(file string) string {
	name := strings.TrimSuffix(filepath.Base(file), ".dist")
	switch ext := strings.TrimPrefix(filepath.Ext(name), "."); ext {
	case "json", "toml", "yaml", "yml":
		return ext
	default:
		return "yaml"
	}
}

func setDefaults(v *viper.Viper) {
	data := DataDir()
	v.SetDefault(key("logging", "level"), DefaultLogLevel)
	v.SetDefault(key("logging", "format"), DefaultLogFormat)
	v.SetDefault(key("logging", "path"), logging.DefaultConfig().Path)
	v.SetDefault(key("history", "enabled"), true)
	v.SetDefault(key("history", "path"), filepath.Join(data, "bldr.db"))
	v.SetDefault(key("reporting", "enabled"), true)
	v.SetDefault(key("reporting", "dir"), filepath.Join(data, "reports"))
	v.SetDefault(key("watch", "paths"), []string{"."})
	v.SetDefault(key("watch", "ignore"), DefaultWatchIgnore)
	v.SetDefault(key("watch", "debounce"), DefaultDebounce.String())
	v.SetDefault(key("schedule", "cron"), "")
}
