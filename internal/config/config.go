// Package config handles loading and validating hivemind configuration.
// Supports YAML config files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all hivemind configuration.
type Config struct {
	Colony   ColonyConfig   `mapstructure:"colony"`
	Tasks    TasksConfig    `mapstructure:"tasks"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	World    WorldConfig    `mapstructure:"world"`
	Observer ObserverConfig `mapstructure:"observer"`
}

// ColonyConfig controls spawning and creep defaults.
type ColonyConfig struct {
	Spawn      string   `mapstructure:"spawn"`       // Spawn that new creeps come from and idle creeps rally to
	MaxCreeps  int      `mapstructure:"max_creeps"`  // Population cap
	Role       string   `mapstructure:"role"`        // Role written into new creep memory
	Body       []string `mapstructure:"body"`        // Body parts for new creeps
	NamePrefix string   `mapstructure:"name_prefix"` // Creep names are prefix + tick
}

// TasksConfig controls task generation.
type TasksConfig struct {
	Priorities map[string]int `mapstructure:"priorities"`  // kind -> priority (lower is more urgent)
	EvictStale bool           `mapstructure:"evict_stale"` // Drop tasks whose target no longer exists
}

// ScheduleConfig defines when the daemon runs ticks.
type ScheduleConfig struct {
	Cron     string        `mapstructure:"cron"`
	Interval string        `mapstructure:"interval"`
	Window   *WindowConfig `mapstructure:"window"`
}

// WindowConfig restricts ticks to a time of day.
type WindowConfig struct {
	Start    string `mapstructure:"start"` // HH:MM
	End      string `mapstructure:"end"`   // HH:MM
	Timezone string `mapstructure:"timezone"`
}

// LoggingConfig defines log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Path   string `mapstructure:"path"`   // Log directory
	Format string `mapstructure:"format"` // json, text
}

// StorageConfig locates persisted memory.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// WorldConfig locates the simulated world.
type WorldConfig struct {
	Path     string `mapstructure:"path"`     // YAML world file
	Seed     int64  `mapstructure:"seed"`     // Seed used when generating a room
	Generate bool   `mapstructure:"generate"` // Generate a room when Path does not exist
	Room     string `mapstructure:"room"`     // Name of the generated room
}

// ObserverConfig enables the websocket tick stream.
type ObserverConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the observer
}

// Validation errors.
var (
	ErrCronAndInterval  = errors.New("cron and interval are mutually exclusive")
	ErrInvalidLogLevel  = errors.New("log level must be debug, info, warn, or error")
	ErrInvalidLogFormat = errors.New("log format must be json or text")
	ErrInvalidMaxCreeps = errors.New("max_creeps must not be negative")
	ErrInvalidPriority  = errors.New("task priorities must be positive")
	ErrUnknownTaskKind  = errors.New("unknown task kind in priorities")
)

// Task kinds that may appear in tasks.priorities.
var taskKinds = []string{"harvest", "fill_container", "upgrade"}

const (
	// ProjectConfigName is the per-directory config file.
	ProjectConfigName = "hivemind.yaml"
	envPrefix         = "HIVEMIND"
)

// DefaultDataDir returns the directory for logs, the database and world files.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "hivemind")
}

// GlobalConfigPath returns the path of the user config file.
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "hivemind", "config.yaml")
}

// Load reads configuration from the global file, a hivemind.yaml in the
// current directory, and the environment.
func Load() (*Config, error) {
	cwd, _ := os.Getwd()
	return LoadFromPaths(cwd, GlobalConfigPath())
}

// LoadFromPaths reads the global config, then merges the project config found
// in projectDir. Either may be empty or missing.
func LoadFromPaths(projectDir, globalPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if globalPath != "" {
		if err := mergeFile(v, expandPath(globalPath)); err != nil {
			return nil, err
		}
	}
	if projectDir != "" {
		if err := mergeFile(v, filepath.Join(expandPath(projectDir), ProjectConfigName)); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()

	v.SetDefault("colony.spawn", "Spawn1")
	v.SetDefault("colony.max_creeps", 2)
	v.SetDefault("colony.role", "worker")
	v.SetDefault("colony.body", []string{"work", "carry", "move"})
	v.SetDefault("colony.name_prefix", "Creep")

	v.SetDefault("tasks.priorities", map[string]int{
		"harvest":        1,
		"fill_container": 2,
		"upgrade":        3,
	})
	v.SetDefault("tasks.evict_stale", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", filepath.Join(dataDir, "logs"))
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.db_path", filepath.Join(dataDir, "hivemind.db"))

	v.SetDefault("world.path", filepath.Join(dataDir, "world.yaml"))
	v.SetDefault("world.seed", 1)
	v.SetDefault("world.generate", true)
	v.SetDefault("world.room", "W1N1")
}

// Validate checks a configuration for contradictions.
func Validate(cfg *Config) error {
	if cfg.Schedule.Cron != "" && cfg.Schedule.Interval != "" {
		return ErrCronAndInterval
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "text":
	default:
		return ErrInvalidLogFormat
	}

	if cfg.Colony.MaxCreeps < 0 {
		return ErrInvalidMaxCreeps
	}

	for kind, p := range cfg.Tasks.Priorities {
		if !isTaskKind(kind) {
			return fmt.Errorf("%w: %s", ErrUnknownTaskKind, kind)
		}
		if p <= 0 {
			return ErrInvalidPriority
		}
	}

	return nil
}

func isTaskKind(kind string) bool {
	for _, k := range taskKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TaskPriority returns the configured priority for a task kind, or fallback
// when the kind has no entry.
func (c *Config) TaskPriority(kind string, fallback int) int {
	if p, ok := c.Tasks.Priorities[kind]; ok && p > 0 {
		return p
	}
	return fallback
}

// IntervalDuration parses the schedule interval. Zero when unset.
func (c *Config) IntervalDuration() (time.Duration, error) {
	if c.Schedule.Interval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Schedule.Interval)
}

// ExpandedLogPath returns the log directory with ~ expanded.
func (c *Config) ExpandedLogPath() string {
	return expandPath(c.Logging.Path)
}

// ExpandedDBPath returns the database path with ~ expanded.
func (c *Config) ExpandedDBPath() string {
	return expandPath(c.Storage.DBPath)
}

// ExpandedWorldPath returns the world file path with ~ expanded.
func (c *Config) ExpandedWorldPath() string {
	return expandPath(c.World.Path)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
