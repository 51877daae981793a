// Package config loads the register configuration. Values are layered:
// built-in defaults, then an optional YAML file, then an optional .env file,
// then POS_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "POS_"

// Remote drivers.
const (
	RemoteREST     = "rest"
	RemotePostgres = "postgres"
	RemoteMemory   = "memory"
)

// Queue backends.
const (
	QueueSQLite = "sqlite"
	QueueRedis  = "redis"
)

type Config struct {
	DeviceID  string `yaml:"device_id" env:"DEVICE_ID"`
	CashierID string `yaml:"cashier_id" env:"CASHIER_ID"`

	Store        StoreConfig        `yaml:"store" envPrefix:"STORE_"`
	Remote       RemoteConfig       `yaml:"remote" envPrefix:"REMOTE_"`
	Sync         SyncConfig         `yaml:"sync" envPrefix:"SYNC_"`
	Connectivity ConnectivityConfig `yaml:"connectivity" envPrefix:"CONNECTIVITY_"`
	HTTP         HTTPConfig         `yaml:"http" envPrefix:"HTTP_"`
	Log          LogConfig          `yaml:"log" envPrefix:"LOG_"`
	Sales        SalesConfig        `yaml:"sales" envPrefix:"SALES_"`
}

type StoreConfig struct {
	Path string `yaml:"path" env:"PATH"`
	// QueueBackend selects where the offline queue lives: sqlite or redis.
	QueueBackend string `yaml:"queue_backend" env:"QUEUE_BACKEND"`
	RedisURL     string `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix  string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

type RemoteConfig struct {
	Driver      string        `yaml:"driver" env:"DRIVER"`
	URL         string        `yaml:"url" env:"URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	DatabaseURL string        `yaml:"database_url" env:"DATABASE_URL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type SyncConfig struct {
	MinBackoff        time.Duration `yaml:"min_backoff" env:"MIN_BACKOFF"`
	MaxBackoff        time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	RefreshAfterDrain bool          `yaml:"refresh_after_drain" env:"REFRESH_AFTER_DRAIN"`
}

type ConnectivityConfig struct {
	InitialOnline bool          `yaml:"initial_online" env:"INITIAL_ONLINE"`
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	// DisableProbe leaves connectivity to POST /connectivity signals from the host.
	DisableProbe bool `yaml:"disable_probe" env:"DISABLE_PROBE"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	// File, when set, also writes logs to a rotated file.
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

type SalesConfig struct {
	LowStockThreshold int64  `yaml:"low_stock_threshold" env:"LOW_STOCK_THRESHOLD"`
	Currency          string `yaml:"currency" env:"CURRENCY"`
	CurrencyExponent  int32  `yaml:"currency_exponent" env:"CURRENCY_EXPONENT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DeviceID: "register-1",
		Store: StoreConfig{
			Path:         "pos.db",
			QueueBackend: QueueSQLite,
			RedisPrefix:  "pos:offline",
		},
		Remote: RemoteConfig{
			Driver:  RemoteREST,
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			MinBackoff:        2 * time.Second,
			MaxBackoff:        2 * time.Minute,
			RefreshAfterDrain: true,
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: 5 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		HTTP: HTTPConfig{Addr: ":8081"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Sales: SalesConfig{
			LowStockThreshold: 5,
			Currency:          "IQD",
		},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Remote.Driver {
	case RemoteREST:
		if c.Remote.URL == "" {
			errs = append(errs, errors.New("remote.url is required for the rest driver"))
		}
	case RemotePostgres:
		if c.Remote.DatabaseURL == "" {
			errs = append(errs, errors.New("remote.database_url is required for the postgres driver"))
		}
	case RemoteMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown remote.driver %q", c.Remote.Driver))
	}

	switch c.Store.QueueBackend {
	case QueueSQLite:
	case QueueRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis queue backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.queue_backend %q", c.Store.QueueBackend))
	}

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Sync.MinBackoff <= 0 || c.Sync.MaxBackoff < c.Sync.MinBackoff {
		errs = append(errs, fmt.Errorf("sync backoff must satisfy 0 < min (%s) <= max (%s)", c.Sync.MinBackoff, c.Sync.MaxBackoff))
	}
	if !c.Connectivity.DisableProbe && c.Connectivity.ProbeInterval <= 0 {
		errs = append(errs, errors.New("connectivity.probe_interval must be positive"))
	}
	if c.Sales.CurrencyExponent < 0 {
		errs = append(errs, errors.New("sales.currency_exponent must not be negative"))
	}

	return errors.Join(errs...)
}
