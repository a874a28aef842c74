// Package config provides configuration structures for the load tester.
// The main Config struct ties together the target system, the credentials
// used by simulated actors, and the settings of each subcommand.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigNotFound is returned when an explicit config file is missing.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// EnvPrefix is the prefix of environment variables overriding file values
// (e.g. ODOOLOAD_CREDENTIALS_PASSWORD).
const EnvPrefix = "ODOOLOAD"

// Config is the root configuration structure for the load tester.
type Config struct {
	// Target describes the Odoo instance under test.
	Target TargetConfig

	// Credentials are used by every simulated actor to log in.
	Credentials CredentialsConfig

	// Swarm configures the actor multiplexer.
	Swarm SwarmConfig

	// Runner configures the scenario runner.
	Runner RunnerConfig

	// Monitor configures host resource sampling.
	Monitor MonitorConfig

	// History configures the run history store.
	History HistoryConfig

	// Log configures logging.
	Log LogConfig
}

// TargetConfig holds target system configuration.
type TargetConfig struct {
	// Host is the base URL of the target (e.g. "https://odoo.example.com").
	// It is usually passed with --host and may be empty in the file.
	Host string `validate:"omitempty,url"`

	// Timeout is the per-request timeout.
	// Default: 30s
	Timeout time.Duration `validate:"gt=0"`

	// TLSSkipVerify skips TLS certificate verification (for testing only).
	TLSSkipVerify bool

	// LoginPath is the session login page and form endpoint.
	// Default: /web/login
	LoginPath string `validate:"startswith=/"`

	// ShellPath is the authenticated application shell.
	// Default: /web
	ShellPath string `validate:"startswith=/"`
}

// CredentialsConfig holds the test user.
type CredentialsConfig struct {
	Login    string
	Password string
	// Database is sent as the "db" form field when set.
	Database string
}

// SwarmConfig configures the actor multiplexer.
type SwarmConfig struct {
	// WebAddr is the listen address of the web UI in non-headless mode.
	// Default: :8089
	WebAddr string `validate:"required"`

	// StatsInterval is how often a history row is written.
	// Default: 1s
	StatsInterval time.Duration `validate:"gt=0"`

	// Profiles lists the actor profiles that make up the population.
	// Default: default, heavy, light
	Profiles []string `validate:"min=1,dive,required"`
}

// RunnerConfig configures the scenario runner.
type RunnerConfig struct {
	// Command is the load process to launch. Empty means "this binary swarm".
	Command []string

	// Cooldown is the pause between scenarios in run-all mode.
	// Default: 60s
	Cooldown time.Duration `validate:"gte=0"`

	// ScenariosFile replaces the built-in scenario table when set.
	ScenariosFile string

	// Monitor samples host resources while each scenario runs.
	Monitor bool
}

// MonitorConfig configures host resource sampling.
type MonitorConfig struct {
	// Interval between samples.
	// Default: 5s
	Interval time.Duration `validate:"gt=0"`
}

// HistoryConfig configures the sqlite run history.
type HistoryConfig struct {
	Enabled bool
	// Path of the sqlite database.
	// Default: odooload_history.db
	Path string `validate:"required_if=Enabled true"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"omitempty,oneof=debug info warn warning error"`
	Format string `validate:"omitempty,oneof=json console"`
	Output string
}

// Load loads configuration from a YAML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with ODOOLOAD_ prefix (e.g., ODOOLOAD_TARGET_HOST)
// 2. The file at path, or ./odooload.yaml when path is empty
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("odooload")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		switch {
		case missing && path != "":
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		case missing:
			// No file is fine; defaults and env vars apply.
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Target: TargetConfig{
			Host:          v.GetString("target.host"),
			Timeout:       v.GetDuration("target.timeout"),
			TLSSkipVerify: v.GetBool("target.tls_skip_verify"),
			LoginPath:     v.GetString("target.login_path"),
			ShellPath:     v.GetString("target.shell_path"),
		},
		Credentials: CredentialsConfig{
			Login:    v.GetString("credentials.login"),
			Password: v.GetString("credentials.password"),
			Database: v.GetString("credentials.database"),
		},
		Swarm: SwarmConfig{
			WebAddr:       v.GetString("swarm.web_addr"),
			StatsInterval: v.GetDuration("swarm.stats_interval"),
			Profiles:      splitList(v.GetStringSlice("swarm.profiles")),
		},
		Runner: RunnerConfig{
			Command:       v.GetStringSlice("runner.command"),
			Cooldown:      v.GetDuration("runner.cooldown"),
			ScenariosFile: v.GetString("runner.scenarios_file"),
			Monitor:       v.GetBool("runner.monitor"),
		},
		Monitor: MonitorConfig{
			Interval: v.GetDuration("monitor.interval"),
		},
		History: HistoryConfig{
			Enabled: v.GetBool("history.enabled"),
			Path:    v.GetString("history.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	// Cooldown may legitimately be zero, so only default it when unset.
	if !v.IsSet("runner.cooldown") {
		cfg.Runner.Cooldown = DefaultCooldown
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default values.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultLoginPath     = "/web/login"
	DefaultShellPath     = "/web"
	DefaultWebAddr       = ":8089"
	DefaultStatsInterval = time.Second
	DefaultCooldown      = 60 * time.Second
	DefaultMonitorEvery  = 5 * time.Second
	DefaultHistoryPath   = "odooload_history.db"
)

// DefaultProfiles is the population used when none is configured.
var DefaultProfiles = []string{"default", "heavy", "light"}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Runner: RunnerConfig{Cooldown: DefaultCooldown}}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.Target.Timeout == 0 {
		cfg.Target.Timeout = DefaultTimeout
	}
	if cfg.Target.LoginPath == "" {
		cfg.Target.LoginPath = DefaultLoginPath
	}
	if cfg.Target.ShellPath == "" {
		cfg.Target.ShellPath = DefaultShellPath
	}
	if cfg.Swarm.WebAddr == "" {
		cfg.Swarm.WebAddr = DefaultWebAddr
	}
	if cfg.Swarm.StatsInterval == 0 {
		cfg.Swarm.StatsInterval = DefaultStatsInterval
	}
	if len(cfg.Swarm.Profiles) == 0 {
		cfg.Swarm.Profiles = append([]string(nil), DefaultProfiles...)
	}
	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = DefaultMonitorEvery
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ValidateForSwarm checks the settings the actor swarm cannot run without.
func (c *Config) ValidateForSwarm() error {
	if c.Target.Host == "" {
		return fmt.Errorf("%w: target host is required", ErrInvalidConfig)
	}
	if c.Credentials.Login == "" {
		return fmt.Errorf("%w: credentials login is required", ErrInvalidConfig)
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
