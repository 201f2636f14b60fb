// Package config loads the Planforge configuration: defaults, an optional
// YAML config file, and PLANFORGE_* environment overrides, in that order of
// precedence (lowest first).
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/planforge/internal/schedule"
)

// Config represents the complete Planforge configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Generation GenerationConfig `mapstructure:"generation"`
	Scheduler  schedule.Config  `mapstructure:"scheduler"`
	Paths      PathsConfig      `mapstructure:"paths"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// EventMinLevel is the minimum level recorded to the event log
	EventMinLevel string `mapstructure:"event_min_level"`
}

// CheckpointConfig selects and configures the checkpoint backend.
type CheckpointConfig struct {
	// Backend is the persistence backend: "file" or "sqlite"
	Backend string `mapstructure:"backend"`
	// SQLitePath is the database file used by the sqlite backend.
	// Empty means <data_dir>/checkpoints.db
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RetryConfig controls the retry executor for pipeline stages.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `mapstructure:"max_retries"`
	// InitialDelayMs is the backoff before the first retry (in milliseconds)
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
	// BackoffFactor multiplies the delay for each subsequent retry
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	// MaxDelayMs caps the backoff regardless of attempt number (in milliseconds)
	MaxDelayMs int `mapstructure:"max_delay_ms"`
}

// GenerationConfig controls the text-generation collaborator.
type GenerationConfig struct {
	// Backend selects the generator: "offline" is the only built-in
	Backend string `mapstructure:"backend"`
	// RequestTimeoutSeconds bounds a single generation call
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	// Temperature controls sampling randomness; zero means deterministic
	Temperature float64 `mapstructure:"temperature"`
	// MaxOutputTokens caps the reply size; zero means the backend default
	MaxOutputTokens int `mapstructure:"max_output_tokens"`
}

// PathsConfig controls where Planforge keeps its state.
type PathsConfig struct {
	// DataDir holds checkpoints, error reports and logs.
	// Empty means ~/.local/share/planforge (or $XDG_DATA_HOME/planforge)
	DataDir string `mapstructure:"data_dir"`
}

// Default returns the configuration with all default values set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:         "info",
			EventMinLevel: "info",
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialDelayMs: 1000,
			BackoffFactor:  1.5,
			MaxDelayMs:     30000,
		},
		Generation: GenerationConfig{
			Backend:               "offline",
			RequestTimeoutSeconds: 300,
		},
		Scheduler: schedule.DefaultConfig(),
	}
}

// SetDefaults registers all default values with viper.
func SetDefaults() {
	defaults := Default()

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.event_min_level", defaults.Logging.EventMinLevel)

	// Checkpoint defaults
	viper.SetDefault("checkpoint.backend", defaults.Checkpoint.Backend)
	viper.SetDefault("checkpoint.sqlite_path", defaults.Checkpoint.SQLitePath)

	// Retry defaults
	viper.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	viper.SetDefault("retry.initial_delay_ms", defaults.Retry.InitialDelayMs)
	viper.SetDefault("retry.backoff_factor", defaults.Retry.BackoffFactor)
	viper.SetDefault("retry.max_delay_ms", defaults.Retry.MaxDelayMs)

	// Generation defaults
	viper.SetDefault("generation.backend", defaults.Generation.Backend)
	viper.SetDefault("generation.request_timeout_seconds", defaults.Generation.RequestTimeoutSeconds)
	viper.SetDefault("generation.temperature", defaults.Generation.Temperature)
	viper.SetDefault("generation.max_output_tokens", defaults.Generation.MaxOutputTokens)

	// Scheduler defaults
	viper.SetDefault("scheduler.weights.skill", defaults.Scheduler.Weights.Skill)
	viper.SetDefault("scheduler.weights.role", defaults.Scheduler.Weights.Role)
	viper.SetDefault("scheduler.weights.availability", defaults.Scheduler.Weights.Availability)
	viper.SetDefault("scheduler.weights.balance", defaults.Scheduler.Weights.Balance)
	viper.SetDefault("scheduler.weights.history", defaults.Scheduler.Weights.History)
	viper.SetDefault("scheduler.weights.specialty", defaults.Scheduler.Weights.Specialty)
	viper.SetDefault("scheduler.critical_categories", defaults.Scheduler.CriticalCategories)
	viper.SetDefault("scheduler.critical_boost", defaults.Scheduler.CriticalBoost)
	viper.SetDefault("scheduler.missing_critical_penalty", defaults.Scheduler.MissingCriticalPenalty)
	viper.SetDefault("scheduler.specialty_count", defaults.Scheduler.SpecialtyCount)
	viper.SetDefault("scheduler.spread_threshold", defaults.Scheduler.SpreadThreshold)
	viper.SetDefault("scheduler.overload_factor", defaults.Scheduler.OverloadFactor)
	viper.SetDefault("scheduler.underload_factor", defaults.Scheduler.UnderloadFactor)
	viper.SetDefault("scheduler.recovery_fraction", defaults.Scheduler.RecoveryFraction)
	viper.SetDefault("scheduler.min_match_score", defaults.Scheduler.MinMatchScore)
	viper.SetDefault("scheduler.overallocated_pct", defaults.Scheduler.OverallocatedPct)
	viper.SetDefault("scheduler.underallocated_pct", defaults.Scheduler.UnderallocatedPct)

	// Paths defaults
	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)
}

// Load unmarshals the current viper state into a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// viper state cannot be unmarshaled.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// DataDir resolves the effective data directory.
func (c *Config) DataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "planforge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".planforge"
	}
	return filepath.Join(home, ".local", "share", "planforge")
}

// CheckpointDir is where the file backend keeps per-project checkpoints.
func (c *Config) CheckpointDir() string {
	return filepath.Join(c.DataDir(), "checkpoints")
}

// SQLitePath resolves the sqlite backend's database file.
func (c *Config) SQLitePath() string {
	if c.Checkpoint.SQLitePath != "" {
		return c.Checkpoint.SQLitePath
	}
	return filepath.Join(c.DataDir(), "checkpoints.db")
}

// LogDir is where structured logs and error reports are written.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir(), "logs")
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "planforge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".planforge"
	}
	return filepath.Join(home, ".config", "planforge")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// InitViper points the global viper at the config file and environment.
func InitViper(cfgFile string) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(ConfigDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PLANFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}
