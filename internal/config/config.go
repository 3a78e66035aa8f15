// ABOUTME: Configuration loading and parsing for forgebot
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete forgebot configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Shards   ShardsConfig   `yaml:"shards"`
	Database DatabaseConfig `yaml:"database"`
	Confirm  ConfirmConfig  `yaml:"confirm"`
	Cache    CacheConfig    `yaml:"cache"`
	Notices  NoticesConfig  `yaml:"notices"`
	Rate     RateConfig     `yaml:"rate"`
	Compiler CompilerConfig `yaml:"compiler"`
	Stats    StatsConfig    `yaml:"stats"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the health/status HTTP listener address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// ShardsConfig holds the expected shard topology
type ShardsConfig struct {
	Expected int `yaml:"expected"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ConfirmConfig holds confirmation workflow configuration
type ConfirmConfig struct {
	Window time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	WindowRaw string `yaml:"window"`

	// Custom marker emoji; zero id falls back to the unicode default
	MarkerEmojiID   uint64 `yaml:"marker_emoji_id"`
	MarkerEmojiName string `yaml:"marker_emoji_name"`
}

// CacheConfig holds message history cache sizing
type CacheConfig struct {
	MaxSize int `yaml:"max_size"`
}

// NoticesConfig holds join/leave announcement configuration
type NoticesConfig struct {
	JoinLogChannel uint64 `yaml:"join_log_channel"`
}

// RateConfig holds per-user command rate limiting
type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// CompilerConfig holds the external compilation service configuration
type CompilerConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	Languages []string `yaml:"languages"`
}

// StatsConfig holds external stats publication configuration
type StatsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Schedule string `yaml:"schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values the file may omit.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Shards.Expected == 0 {
		c.Shards.Expected = 1
	}
	if c.Confirm.Window == 0 {
		c.Confirm.Window = 30 * time.Second
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 512
	}
	if c.Rate.PerSecond == 0 {
		c.Rate.PerSecond = 1
	}
	if c.Rate.Burst == 0 {
		c.Rate.Burst = 3
	}
	if c.Stats.Schedule == "" {
		c.Stats.Schedule = "@every 30m"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Shards.Expected < 1 {
		return fmt.Errorf("shards.expected must be at least 1")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Confirm.Window < 0 {
		return fmt.Errorf("confirm.window must not be negative")
	}

	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must not be negative")
	}

	if c.Stats.Enabled && c.Stats.Endpoint == "" {
		return fmt.Errorf("stats.endpoint is required when stats is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Confirm.WindowRaw != "" {
		cfg.Confirm.Window, err = time.ParseDuration(cfg.Confirm.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing confirm.window %q: %w", cfg.Confirm.WindowRaw, err)
		}
	}

	return nil
}
