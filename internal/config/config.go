package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Backends accepted by LEDGER_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendRedis}

type Config struct {
	// Ledger storage
	Backend      string `env:"LEDGER_BACKEND" envDefault:"sqlite"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/fintrack.db"`
	Seed         bool   `env:"LEDGER_SEED" envDefault:"true"`

	// Redis
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"fintrack:"`

	// AMQP settlement events, off when the URL is empty
	AMQPURL        string `env:"AMQP_URL"`
	AMQPExchange   string `env:"AMQP_EXCHANGE" envDefault:"fintrack"`
	AMQPRoutingKey string `env:"AMQP_ROUTING_KEY" envDefault:"ledger"`

	// Summary cache
	SummaryCacheSize     int           `env:"SUMMARY_CACHE_SIZE" envDefault:"24"`
	SummaryCacheTTL      time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"10m"`
	CacheCleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"1m"`

	// Operational HTTP server, off when empty
	MetricsAddr   string `env:"METRICS_ADDR"`
	HTTPRateLimit int    `env:"HTTP_RATE_LIMIT" envDefault:"120"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Settings written on first run
	CurrencyCode   string `env:"CURRENCY_CODE" envDefault:"USD"`
	CurrencySymbol string `env:"CURRENCY_SYMBOL" envDefault:"$"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Settings returns the first-run settings described by the configuration.
func (c *Config) Settings() (core.Settings, error) {
	def := core.DefaultSettings()
	return core.NewSettings(c.CurrencyCode, c.CurrencySymbol, def.WeekStartDay)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validBackends, c.Backend) {
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of %v", c.Backend, validBackends))
	}

	if c.Backend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.Backend == BackendRedis {
		if c.RedisAddr == "" {
			errors = append(errors, "Redis address cannot be empty when using redis backend")
		} else if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis address '%s': %v", c.RedisAddr, err))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			errors = append(errors, fmt.Sprintf("invalid Redis database %d: must be between 0 and 15", c.RedisDB))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if c.SummaryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	} else if c.SummaryCacheSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at most 1000", c.SummaryCacheSize))
	}
	if c.SummaryCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must not be negative", c.SummaryCacheTTL))
	}
	if c.CacheCleanupInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache cleanup interval %v: must not be negative", c.CacheCleanupInterval))
	} else if c.CacheCleanupInterval > 0 && c.CacheCleanupInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache cleanup interval %v: must be at least 1 second", c.CacheCleanupInterval))
	}

	if c.HTTPRateLimit < 0 || c.HTTPRateLimit > 10000 {
		errors = append(errors, fmt.Sprintf("HTTP rate limit must be between 0 and 10000 requests per minute, got %d", c.HTTPRateLimit))
	}

	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid metrics address '%s': %v", c.MetricsAddr, err))
		}
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if _, err := c.Settings(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s' '%s': %v", c.CurrencyCode, c.CurrencySymbol, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
