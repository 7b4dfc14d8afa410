// Package backend opens the slot store the ledger persists through.
package backend

import (
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/config"
)

// Kind names a slot store implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindSQLite Kind = "sqlite"
	KindRedis  Kind = "redis"
)

// Kinds lists every supported store kind.
func Kinds() []Kind {
	return []Kind{KindMemory, KindSQLite, KindRedis}
}

func (k Kind) String() string { return string(k) }

func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// RedisConfig addresses a Redis slot store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Config selects and parameterizes a slot store.
type Config struct {
	Kind       Kind
	SQLitePath string
	Redis      RedisConfig
	// SeedDir holds <slot>.json files preloaded into the memory store.
	// Empty means start blank.
	SeedDir string
}

// FromAppConfig derives the store selection from the application config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("backend: nil application config")
	}
	kind := Kind(strings.ToLower(app.Backend))
	if !kind.Valid() {
		return Config{}, fmt.Errorf("backend: unknown kind %q (want one of %v)", app.Backend, Kinds())
	}
	return Config{
		Kind:       kind,
		SQLitePath: app.SQLiteDBPath,
		Redis: RedisConfig{
			Addr:      app.RedisAddr,
			Password:  app.RedisPassword,
			DB:        app.RedisDB,
			KeyPrefix: app.RedisKeyPrefix,
		},
		SeedDir: "data",
	}, nil
}

// Validate reports every missing setting for the selected kind.
func (c Config) Validate() error {
	var errs []error
	switch c.Kind {
	case KindSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite store needs a database path"))
		}
	case KindRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis store needs an address"))
		}
		if c.Redis.DB < 0 {
			errs = append(errs, fmt.Errorf("redis database index %d is negative", c.Redis.DB))
		}
	case KindMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Kind))
	}
	return errors.Join(errs...)
}
