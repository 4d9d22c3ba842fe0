// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package config loads cheatgate settings.
//
// Sources are applied in order, later ones winning: built-in defaults, a
// YAML file, CHEATGATE_* environment variables, then command-line flags.
// Nested keys use "__" in environment names, so CHEATGATE_TOKEN__SECRET
// sets token.secret.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/cheatgate/cheatgate/internal/auth"
	"github.com/cheatgate/cheatgate/internal/logging"
	"github.com/cheatgate/cheatgate/internal/store"
	"github.com/cheatgate/cheatgate/internal/xdg"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "CHEATGATE_"

// DatabaseURLEnv is read when store.dsn is unset and the driver is postgres.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the complete process configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Token   TokenConfig   `koanf:"token"`
	Redeem  RedeemConfig  `koanf:"redeem"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects and tunes the storage backend.
type StoreConfig struct {
	Driver   string        `koanf:"driver"`
	DSN      string        `koanf:"dsn"`
	Timeout  time.Duration `koanf:"timeout"`
	MaxConns int32         `koanf:"max_conns"`
}

// TokenConfig configures bearer token signing.
type TokenConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

// RedeemConfig tunes the consume step.
type RedeemConfig struct {
	MaxRetries int           `koanf:"max_retries"`
	RetryBase  time.Duration `koanf:"retry_base"`
}

var defaults = map[string]any{
	"http.addr":             ":8080",
	"http.read_timeout":     10 * time.Second,
	"http.write_timeout":    10 * time.Second,
	"http.idle_timeout":     60 * time.Second,
	"http.shutdown_timeout": 15 * time.Second,
	"metrics.addr":          "127.0.0.1:9100",
	"log.format":            "json",
	"log.level":             "info",
	"store.driver":          string(store.DriverPostgres),
	"store.dsn":             "",
	"store.timeout":         5 * time.Second,
	"store.max_conns":       10,
	"token.secret":          "",
	"token.ttl":             auth.DefaultTokenTTL,
	"redeem.max_retries":    3,
	"redeem.retry_base":     10 * time.Millisecond,
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"store-driver": "store.driver",
	"store-dsn":    "store.dsn",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "", "API listen address")
	fs.String("metrics-addr", "", "metrics/health listen address (empty disables)")
	fs.String("log-format", "", "log format: json or text")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("store-driver", "", "storage backend: postgres, sqlite or memory")
	fs.String("store-dsn", "", "postgres connection string or SQLite file path")
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// File is an explicit config path. A missing explicit file is an error;
	// when empty the XDG default is used if it exists.
	File string
	// Flags are applied last; only flags the user set take effect.
	Flags *pflag.FlagSet
	// Scope limits validation to the settings a command uses.
	Scope Scope
}

// Scope selects which settings Load validates.
type Scope int

// Validation scopes.
const (
	// ScopeAll validates everything; serve needs it.
	ScopeAll Scope = iota
	// ScopeStore validates logging and storage.
	ScopeStore
	// ScopeToken validates logging and token signing.
	ScopeToken
)

// Load builds and validates a Config.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		if p, err := xdg.DefaultConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_LOAD_FAILED").
					With("operation", "load config file").
					With("path", path).
					Wrap(err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load environment").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}

	if err := cfg.applyFallbacks(); err != nil {
		return nil, err
	}
	if err := cfg.validateScope(opts.Scope); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns CHEATGATE_STORE__MAX_CONNS into store.max_conns.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) applyFallbacks() error {
	if c.Store.DSN != "" {
		return nil
	}
	switch store.Driver(c.Store.Driver) {
	case store.DriverPostgres:
		c.Store.DSN = os.Getenv(DatabaseURLEnv)
	case store.DriverSQLite:
		p, err := xdg.DefaultSQLitePath()
		if err != nil {
			return oops.Code("CONFIG_INVALID").With("key", "store.dsn").Wrap(err)
		}
		c.Store.DSN = p
	}
	return nil
}

// Validate checks every setting. Failures carry the CONFIG_INVALID code.
func (c *Config) Validate() error {
	return c.validateScope(ScopeAll)
}

func (c *Config) validateScope(scope Scope) error {
	checks := []func() error{c.validateLog}
	switch scope {
	case ScopeStore:
		checks = append(checks, c.validateStore)
	case ScopeToken:
		checks = append(checks, c.validateToken)
	default:
		checks = append(checks, c.validateHTTP, c.validateStore, c.validateToken, c.validateRedeem)
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "cannot be empty")
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.idle_timeout", c.HTTP.IdleTimeout},
		{"http.shutdown_timeout", c.HTTP.ShutdownTimeout},
	} {
		if d.val <= 0 {
			return invalid(d.key, "must be positive, got %s", d.val)
		}
	}
	return nil
}

func (c *Config) validateLog() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%s", err.Error())
	}
	return nil
}

func (c *Config) validateStore() error {
	driver := store.Driver(c.Store.Driver)
	if !driver.Valid() {
		return invalid("store.driver", "must be one of postgres, sqlite, memory; got %q", c.Store.Driver)
	}
	if driver == store.DriverPostgres && c.Store.DSN == "" {
		return invalid("store.dsn", "required for postgres (or set %s)", DatabaseURLEnv)
	}
	if c.Store.Timeout <= 0 {
		return invalid("store.timeout", "must be positive, got %s", c.Store.Timeout)
	}
	if c.Store.MaxConns < 0 {
		return invalid("store.max_conns", "cannot be negative")
	}
	return nil
}

func (c *Config) validateToken() error {
	if err := auth.ValidateSecret([]byte(c.Token.Secret)); err != nil {
		return invalid("token.secret", "%s", err.Error())
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "must be positive, got %s", c.Token.TTL)
	}
	return nil
}

func (c *Config) validateRedeem() error {
	if c.Redeem.MaxRetries < 0 {
		return invalid("redeem.max_retries", "cannot be negative")
	}
	if c.Redeem.RetryBase <= 0 {
		return invalid("redeem.retry_base", "must be positive")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s: %s", key, fmt.Sprintf(format, args...))
}
