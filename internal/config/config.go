// Package config loads agileboard.yml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/snapshot"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "agileboard.yml"

// Defaults applied by Validate.
const (
	DefaultPort            = 3000
	DefaultNamespace       = "default"
	DefaultDataDir         = "data"
	DefaultSendBuffer      = 64
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
)

// Environment variables that override the file.
const (
	EnvPort     = "PORT"
	EnvStorage  = "AGILEBOARD_STORAGE"
	EnvRedisURL = "AGILEBOARD_REDIS_URL"
	EnvDataDir  = "AGILEBOARD_DATA_DIR"
	EnvLogLevel = "AGILEBOARD_LOG_LEVEL"
)

// NamespacePattern follows DNS label rules so the namespace is safe inside
// Redis keys and channel names.
var NamespacePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// Config represents the top-level agileboard.yml configuration
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Template TemplateConfig `yaml:"template"`
	Relay    RelayConfig    `yaml:"relay"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig specifies the HTTP and WebSocket listener
type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins,omitempty"` // Empty allows any origin
	SendBuffer      int           `yaml:"send_buffer,omitempty"`     // Outbound frames queued per connection
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// StorageConfig selects the snapshot backend
type StorageConfig struct {
	Backend    string `yaml:"backend"`               // file, redis or sqlite
	DataDir    string `yaml:"data_dir,omitempty"`    // Holds sessions.json or sessions.db
	RedisURL   string `yaml:"redis_url,omitempty"`   // Required for the redis backend
	Namespace  string `yaml:"namespace,omitempty"`   // Prefix of Redis keys and channels
	KeepLatest int    `yaml:"keep_latest,omitempty"` // SQLite snapshots retained
}

// TemplateConfig points at the JSONC board new sessions are seeded from
type TemplateConfig struct {
	Path  string `yaml:"path,omitempty"`
	Watch bool   `yaml:"watch,omitempty"` // Reload on change
}

// RelayConfig mirrors session events onto Redis Pub/Sub
type RelayConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url,omitempty"` // Defaults to storage.redis_url
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // json or console
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return c
}

// Validate performs strict validation on the configuration, filling in
// defaults for anything left unset.
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.Relay.Enabled {
		if c.Relay.RedisURL == "" {
			c.Relay.RedisURL = c.Storage.RedisURL
		}
		if c.Relay.RedisURL == "" {
			return fmt.Errorf("relay.redis_url is required when the relay is enabled")
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logging.FormatJSON
	}
	if c.Logging.Format != logging.FormatJSON && c.Logging.Format != logging.FormatConsole {
		return fmt.Errorf("invalid logging.format: %s (must be '%s' or '%s')", c.Logging.Format, logging.FormatJSON, logging.FormatConsole)
	}

	return nil
}

func (s *ServerConfig) validate() error {
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}

	if s.SendBuffer == 0 {
		s.SendBuffer = DefaultSendBuffer
	}
	if s.SendBuffer < 1 {
		return fmt.Errorf("server.send_buffer must be >= 1, got %d", s.SendBuffer)
	}

	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", s.ShutdownTimeout)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	if s.Backend == "" {
		s.Backend = snapshot.BackendFile
	}
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir
	}
	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
	}
	if !NamespacePattern.MatchString(s.Namespace) {
		return fmt.Errorf("invalid storage.namespace '%s': must contain only lowercase letters, digits and hyphens, and start and end with a letter or digit", s.Namespace)
	}
	if s.KeepLatest == 0 {
		s.KeepLatest = snapshot.DefaultKeepLatest
	}
	if s.KeepLatest < 1 {
		return fmt.Errorf("storage.keep_latest must be >= 1, got %d", s.KeepLatest)
	}

	switch s.Backend {
	case snapshot.BackendFile, snapshot.BackendSQLite:
	case snapshot.BackendRedis:
		if s.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s (must be '%s', '%s' or '%s')",
			s.Backend, snapshot.BackendFile, snapshot.BackendRedis, snapshot.BackendSQLite)
	}
	return nil
}

// SnapshotOptions translates the storage section for snapshot.Open.
func (c *Config) SnapshotOptions() snapshot.Options {
	opts := snapshot.Options{
		Backend:    c.Storage.Backend,
		RedisURL:   c.Storage.RedisURL,
		Namespace:  c.Storage.Namespace,
		KeepLatest: c.Storage.KeepLatest,
	}
	switch c.Storage.Backend {
	case snapshot.BackendFile:
		opts.Path = filepath.Join(c.Storage.DataDir, "sessions.json")
	case snapshot.BackendSQLite:
		opts.Path = filepath.Join(c.Storage.DataDir, "sessions.db")
	}
	return opts
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Load reads agileboard.yml from the specified path, applies environment
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := config.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not a number", EnvPort, v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvStorage); ok && v != "" {
		c.Storage.Backend = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Storage.RedisURL = v
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.Storage.DataDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}
