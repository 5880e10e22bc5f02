// Package config loads the command-line tool's settings from a YAML file,
// IDXSTORE_* environment variables and defaults, in that order of
// precedence after flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds the settings shared by every command.
type Config struct {
	Backend string        `mapstructure:"backend"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
	Quota   int64         `mapstructure:"quota"`

	Keyring struct {
		Service string `mapstructure:"service"`
		User    string `mapstructure:"user"`
	} `mapstructure:"keyring"`

	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

// New returns a viper instance carrying the defaults and environment
// bindings. Callers may bind flags to it before calling Decode.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("path", "idxstore.db")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("quota", int64(1<<30))
	v.SetDefault("keyring.service", "idxstore")
	v.SetDefault("keyring.user", "records")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix("IDXSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the YAML file at path on top of the defaults. An empty path
// loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := New()
	if err := Read(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Read merges the YAML file at path into v. An empty path is a no-op.
func Read(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.Path == "" {
			return fmt.Errorf("config: path is required for the %s backend", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q (want %s or %s)", c.Backend, BackendSQLite, BackendMemory)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative, got %s", c.Timeout)
	}
	if c.Quota <= 0 {
		return fmt.Errorf("config: quota must be positive, got %d", c.Quota)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}
