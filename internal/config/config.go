package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"timevault/internal/timeauth"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"

	SchemePlain = "plain"
	SchemeTlock = "tlock"
)

// Config holds the timevault configuration.
// Environment variables are parsed with the TIMEVAULT_ prefix.
type Config struct {
	// Beacon
	BeaconURL        string        `envconfig:"BEACON_URL" default:"https://api.drand.sh"`
	ChainHash        string        `envconfig:"CHAIN_HASH" default:"8990e7a9aaed2ffed73dbd7092123d6f289930540d7651336225dc172e51b2ce"`
	ParamsTTL        time.Duration `envconfig:"PARAMS_TTL" default:"0s"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	RateLimit        float64       `envconfig:"RATE_LIMIT" default:"5"`
	RateBurst        int           `envconfig:"RATE_BURST" default:"5"`
	RetryAttempts    int           `envconfig:"RETRY_ATTEMPTS" default:"1"`
	RetryBaseBackoff time.Duration `envconfig:"RETRY_BASE_BACKOFF" default:"250ms"`

	// Payload scheme: plain or tlock
	Scheme string `envconfig:"SCHEME" default:"plain"`

	// Storage
	StoreDriver   string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:""`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// ResolveDefaults validates enumerated fields and derives SQLitePath when empty.
func (c *Config) ResolveDefaults() error {
	switch c.StoreDriver {
	case DriverMemory, DriverRedis:
	case DriverSQLite:
		if c.SQLitePath == "" {
			dir, err := DefaultDataDir()
			if err != nil {
				return err
			}
			c.SQLitePath = filepath.Join(dir, "timevault.db")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}

	switch c.Scheme {
	case SchemePlain:
	case SchemeTlock:
		// tlock needs an unchained beacon; mainnet's default chain is chained.
		if c.ChainHash == timeauth.MainnetChainHash {
			return fmt.Errorf("SCHEME=tlock requires an unchained CHAIN_HASH such as quicknet (%s)", timeauth.QuicknetChainHash)
		}
	default:
		return fmt.Errorf("unsupported SCHEME: %s", c.Scheme)
	}

	if c.BeaconURL == "" {
		return errors.New("BEACON_URL must not be empty")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be >= 1, got %d", c.RetryAttempts)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("RATE_LIMIT and RATE_BURST must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("unsupported LOG_LEVEL: %s", c.LogLevel)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Example: TIMEVAULT_STORE_DRIVER=redis, TIMEVAULT_BEACON_URL=https://api.drand.sh
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("TIMEVAULT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LogSummary writes the effective configuration, without secrets.
func (c *Config) LogSummary(logger zerolog.Logger) {
	logger.Debug().
		Str("beacon_url", c.BeaconURL).
		Str("chain_hash", c.ChainHash).
		Str("scheme", c.Scheme).
		Str("store_driver", c.StoreDriver).
		Str("sqlite_path", c.SQLitePath).
		Str("redis_addr", c.RedisAddr).
		Bool("redis_password_present", c.RedisPassword != "").
		Dur("request_timeout", c.RequestTimeout).
		Int("retry_attempts", c.RetryAttempts).
		Msg("Configuration loaded")
}

// Level returns the parsed log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// DefaultDataDir returns the platform-specific data directory.
// Returns absolute path to timevault data directory.
func DefaultDataDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot get home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "timevault"), nil

	case "windows":
		appData := os.Getenv("AppData")
		if appData == "" {
			return "", errors.New("AppData environment variable not set")
		}
		return filepath.Join(appData, "timevault"), nil

	default: // Linux and other Unix-like systems
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "timevault"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot get home directory: %w", err)
		}
		return filepath.Join(home, ".local", "share", "timevault"), nil
	}
}
