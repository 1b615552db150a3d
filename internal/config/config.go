// Package config loads run configuration from a YAML file, environment
// variables and the simulation's key=value parameter file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/raphaelgruber/tharchive/internal/segment"
	"gopkg.in/yaml.v3"
)

// Series describes one time-history series and where its segments live.
type Series struct {
	// Name identifies the series on the command line
	Name string `yaml:"name"`
	// Kind is "entity" or "aggregate"
	Kind string `yaml:"kind"`
	// Base is the segment file base name; archived segments are Base<n>
	Base string `yaml:"base"`
	// Archive is the archive subdirectory, relative to Config.ArchiveDir
	Archive string `yaml:"archive"`
	// Origin is the first step of a run that was never restarted
	Origin int64 `yaml:"origin"`
	// Validate enables the restart consistency check for this series
	Validate bool `yaml:"validate"`
}

// SegmentKind parses Kind.
func (s Series) SegmentKind() (segment.Kind, error) {
	return segment.ParseKind(s.Kind)
}

// Config holds all configuration values.
type Config struct {
	// Locations
	RunDir     string `yaml:"run_dir"`
	ArchiveDir string `yaml:"archive_dir"`
	// ParamsFile is the key=value file providing step_increment and
	// restart_step; relative paths resolve against RunDir
	ParamsFile string `yaml:"params_file"`

	Series []Series `yaml:"series"`

	// Values usually read from ParamsFile; a config value wins
	StepIncrement *float64 `yaml:"step_increment"`
	RestartStep   *int64   `yaml:"restart_step"`

	// Processing
	Concurrency int    `yaml:"concurrency"`
	AuditLog    string `yaml:"audit_log"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
	Level    string     `yaml:"log_level"`
}

// DefaultSeries is used when no series are configured: nodal
// displacements and global energies.
func DefaultSeries() []Series {
	return []Series{
		{Name: "disp", Kind: "entity", Base: "disp", Archive: "disp", Validate: true},
		{Name: "energy", Kind: "aggregate", Base: "energy", Archive: "energy"},
	}
}

// Load reads configuration from environment variables.
func Load() Config {
	cfg := Config{}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg
}

// LoadFile reads a YAML configuration file, then applies environment
// overrides and defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.RunDir = getEnv("THA_RUN_DIR", cfg.RunDir)
	cfg.ArchiveDir = getEnv("THA_ARCHIVE_DIR", cfg.ArchiveDir)
	cfg.ParamsFile = getEnv("THA_PARAMS_FILE", cfg.ParamsFile)
	cfg.AuditLog = getEnv("THA_AUDIT_LOG", cfg.AuditLog)
	cfg.LogFile = getEnv("THA_LOG_FILE", cfg.LogFile)
	cfg.Level = getEnv("THA_LOG_LEVEL", cfg.Level)

	if v := os.Getenv("THA_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.RunDir == "" {
		cfg.RunDir = "."
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(cfg.RunDir, "archive")
	}
	if cfg.ParamsFile == "" {
		cfg.ParamsFile = "run.params"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(os.TempDir(), "tharchive.log")
	}
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.LogLevel = parseLogLevel(cfg.Level)
	if len(cfg.Series) == 0 {
		cfg.Series = DefaultSeries()
	}
	for i := range cfg.Series {
		s := &cfg.Series[i]
		if s.Base == "" {
			s.Base = s.Name
		}
		if s.Archive == "" {
			s.Archive = s.Name
		}
		if s.Kind == "" {
			s.Kind = "entity"
		}
	}
}

// Validate checks series definitions.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Series))
	for _, s := range c.Series {
		if s.Name == "" {
			return fmt.Errorf("series without name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate series %q", s.Name)
		}
		seen[s.Name] = true
		if _, err := s.SegmentKind(); err != nil {
			return fmt.Errorf("series %q: %w", s.Name, err)
		}
	}
	return nil
}

// Lookup returns the named series.
func (c Config) Lookup(name string) (Series, bool) {
	for _, s := range c.Series {
		if s.Name == name {
			return s, true
		}
	}
	return Series{}, false
}

// ArchivePath is the archive directory of s.
func (c Config) ArchivePath(s Series) string {
	if filepath.IsAbs(s.Archive) {
		return s.Archive
	}
	return filepath.Join(c.ArchiveDir, s.Archive)
}

// ParamsPath is the resolved parameter file path.
func (c Config) ParamsPath() string {
	if filepath.IsAbs(c.ParamsFile) {
		return c.ParamsFile
	}
	return filepath.Join(c.RunDir, c.ParamsFile)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
