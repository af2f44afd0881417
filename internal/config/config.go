// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Library() LibraryConfig
	Supervisor() SupervisorConfig
	Worker() WorkerConfig
	Store() StoreConfig

	// Library Setters
	SetLibraryPaths([]string)
	SetLibraryThreshold(float64)

	// Supervisor Setters
	SetSupervisorRetryBudget(int)
	SetSupervisorWorkDir(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	LibraryCfg    LibraryConfig    `mapstructure:"library" yaml:"library"`
	SupervisorCfg SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	WorkerCfg     WorkerConfig     `mapstructure:"worker" yaml:"worker"`
	StoreCfg      StoreConfig      `mapstructure:"store" yaml:"store"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Library() LibraryConfig       { return c.LibraryCfg }
func (c *Config) Supervisor() SupervisorConfig { return c.SupervisorCfg }
func (c *Config) Worker() WorkerConfig         { return c.WorkerCfg }
func (c *Config) Store() StoreConfig           { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetLibraryPaths(p []string)      { c.LibraryCfg.Paths = append([]string{}, p...) }
func (c *Config) SetLibraryThreshold(t float64)   { c.LibraryCfg.Threshold = t }
func (c *Config) SetSupervisorRetryBudget(n int)  { c.SupervisorCfg.RetryBudget = n }
func (c *Config) SetSupervisorWorkDir(dir string) { c.SupervisorCfg.WorkDir = dir }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LibraryConfig locates the situation library and tunes matching.
type LibraryConfig struct {
	// Paths are directories (searched recursively) or single record files.
	Paths       []string `mapstructure:"paths" yaml:"paths"`
	Threshold   float64  `mapstructure:"threshold" yaml:"threshold"`
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency"`
	// Watch reloads the library when record files change.
	Watch    bool          `mapstructure:"watch" yaml:"watch"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// SupervisorConfig configures job lineages.
type SupervisorConfig struct {
	RetryBudget        int           `mapstructure:"retry_budget" yaml:"retry_budget"`
	RetryInterval      time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	LineageConcurrency int           `mapstructure:"lineage_concurrency" yaml:"lineage_concurrency"`
	WorkDir            string        `mapstructure:"work_dir" yaml:"work_dir"`
}

// WorkerConfig configures the shell worker.
type WorkerConfig struct {
	Shell    string `mapstructure:"shell" yaml:"shell"`
	PollFeed bool   `mapstructure:"poll_feed" yaml:"poll_feed"`
}

// Store backends.
const (
	StoreNone     = "none"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// StoreConfig selects where attempt records are kept.
type StoreConfig struct {
	Type        string `mapstructure:"type" yaml:"type"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "triage")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Library --
	v.SetDefault("library.paths", []string{"situations"})
	v.SetDefault("library.threshold", 1.0)
	v.SetDefault("library.concurrency", 8)
	v.SetDefault("library.watch", false)
	v.SetDefault("library.debounce", "500ms")

	// -- Supervisor --
	v.SetDefault("supervisor.retry_budget", 2)
	v.SetDefault("supervisor.retry_interval", "0s")
	v.SetDefault("supervisor.lineage_concurrency", 4)
	v.SetDefault("supervisor.work_dir", "triage-work")

	// -- Worker --
	v.SetDefault("worker.shell", "/bin/sh")
	v.SetDefault("worker.poll_feed", true)

	// -- Store --
	v.SetDefault("store.type", StoreNone)
	v.SetDefault("store.sqlite_path", "triage.db")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.postgres_url", "TRIAGE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.LibraryCfg.Validate(); err != nil {
		return fmt.Errorf("library configuration invalid: %w", err)
	}
	if err := c.SupervisorCfg.Validate(); err != nil {
		return fmt.Errorf("supervisor configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the library settings.
func (l *LibraryConfig) Validate() error {
	if !(l.Threshold > 0 && l.Threshold <= 1) {
		return fmt.Errorf("threshold must be in (0, 1], got %v", l.Threshold)
	}
	if l.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	if l.Watch && l.Debounce <= 0 {
		return fmt.Errorf("debounce must be a positive duration when watch is enabled")
	}
	return nil
}

// Validate checks the supervisor settings.
func (s *SupervisorConfig) Validate() error {
	if s.RetryBudget < 0 {
		return fmt.Errorf("retry_budget must not be negative")
	}
	if s.RetryInterval < 0 {
		return fmt.Errorf("retry_interval must not be negative")
	}
	if s.LineageConcurrency <= 0 {
		return fmt.Errorf("lineage_concurrency must be a positive integer")
	}
	if s.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	return nil
}

// Validate checks the store settings.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case "", StoreNone:
	case StorePostgres:
		if s.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for the postgres store. Ensure TRIAGE_DATABASE_URL is set")
		}
	case StoreSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store type %q", s.Type)
	}
	return nil
}
