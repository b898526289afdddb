// Package config loads server settings from KNJIZNICA_* environment
// variables. Command-line flags registered with RegisterFlags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server settings.
type Config struct {
	DBPath          string        `env:"KNJIZNICA_DB" envDefault:"knjiznica.sqlite3"`
	Addr            string        `env:"KNJIZNICA_ADDR" envDefault:":8080"`
	AdminID         string        `env:"KNJIZNICA_ADMIN" envDefault:"librarian"`
	LogPath         string        `env:"KNJIZNICA_LOG"`
	LogLevel        string        `env:"KNJIZNICA_LOG_LEVEL" envDefault:"info"`
	QueryTimeout    time.Duration `env:"KNJIZNICA_QUERY_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"KNJIZNICA_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	OTelEndpoint    string        `env:"KNJIZNICA_OTEL_ENDPOINT"`
	OTelEnabled     bool          `env:"KNJIZNICA_OTEL_ENABLED" envDefault:"true"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// RegisterFlags binds the flags to cfg, using its current values as
// defaults. Every setting has a long and a short form.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db", c.DBPath, "")
	fs.StringVar(&c.DBPath, "d", c.DBPath, "")

	fs.StringVar(&c.Addr, "addr", c.Addr, "")
	fs.StringVar(&c.Addr, "a", c.Addr, "")

	fs.StringVar(&c.AdminID, "admin", c.AdminID, "")
	fs.StringVar(&c.AdminID, "u", c.AdminID, "")

	fs.StringVar(&c.LogPath, "log", c.LogPath, "")
	fs.StringVar(&c.LogPath, "l", c.LogPath, "")

	fs.StringVar(&c.LogLevel, "level", c.LogLevel, "")

	fs.DurationVar(&c.QueryTimeout, "query-timeout", c.QueryTimeout, "")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "")
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("database path is empty"))
	}
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if strings.TrimSpace(c.AdminID) == "" {
		errs = append(errs, errors.New("admin id is empty"))
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("query timeout must be positive, got %s", c.QueryTimeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the configured minimum log level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// TracingEnabled reports whether spans should be exported.
func (c Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}
