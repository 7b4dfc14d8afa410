package backend

import (
	"context"
	"fmt"

	"fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
	redisstore "fintrack/internal/storage/redis"
)

// Handle is an opened slot store. Close releases whatever the store holds.
type Handle struct {
	Store storage.SlotStore
	Close func() error
}

// Factory opens slot stores.
type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*Handle, error)
}

type openFunc func(ctx context.Context, cfg Config, logger *log.Logger) (*Handle, error)

var openers = map[Kind]openFunc{
	KindMemory: openMemory,
	KindSQLite: openSQLite,
	KindRedis:  openRedis,
}

type factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	return &factory{logger: log.OrDiscard(logger).WithComponent(log.ComponentBackend)}
}

func (f *factory) CreateBackend(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backend %s: %w", cfg.Kind, err)
	}
	h, err := openers[cfg.Kind](ctx, cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Kind, err)
	}
	return h, nil
}

func openMemory(_ context.Context, cfg Config, logger *log.Logger) (*Handle, error) {
	store := memory.New()
	if cfg.SeedDir != "" {
		store = memory.NewFromDir(cfg.SeedDir)
	}
	logger.Info("Slot store ready", log.FieldBackend, KindMemory, "seed_dir", cfg.SeedDir)
	return &Handle{Store: store, Close: store.Close}, nil
}

func openSQLite(_ context.Context, cfg Config, logger *log.Logger) (*Handle, error) {
	store, err := storage.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	logger.Info("Slot store ready", log.FieldBackend, KindSQLite, "db_path", cfg.SQLitePath)
	return &Handle{Store: store, Close: store.Close}, nil
}

func openRedis(ctx context.Context, cfg Config, logger *log.Logger) (*Handle, error) {
	r := cfg.Redis
	store, err := redisstore.Dial(ctx, r.Addr, r.Password, r.DB, r.KeyPrefix, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Slot store ready", log.FieldBackend, KindRedis, "addr", r.Addr, "db", r.DB)
	return &Handle{Store: store, Close: store.Close}, nil
}
