package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// DefaultKeyPrefix is the prefix for ledger slot keys
const DefaultKeyPrefix = "fintrack:"

// Store represents a Redis-backed slot store. Slots never expire.
type Store struct {
	client *redis.Client
	prefix string
	logger *log.Logger
}

var _ storage.SlotStore = (*Store)(nil)

// NewStore creates a slot store on top of an existing client
func NewStore(client *redis.Client, prefix string, logger *log.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentStorage),
	}
}

// Dial connects to addr and verifies the connection with PING
func Dial(ctx context.Context, addr, password string, db int, prefix string, logger *log.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewStore(client, prefix, logger), nil
}

func (s *Store) key(slot string) string {
	return s.prefix + slot
}

// Load implements storage.SlotStore.
func (s *Store) Load(ctx context.Context, slot string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.key(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug("slot miss", log.FieldSlot, slot)
		return nil, false, nil
	}
	if err != nil {
		s.logger.Error("redis error", log.FieldOperation, "get", log.FieldSlot, slot, log.FieldError, err)
		return nil, false, fmt.Errorf("load slot %s: %w", slot, err)
	}
	return val, true, nil
}

// Save implements storage.SlotStore. Keys are written inside MULTI/EXEC.
func (s *Store) Save(ctx context.Context, slots map[string][]byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for name, payload := range slots {
			pipe.Set(ctx, s.key(name), payload, 0)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("redis error", log.FieldOperation, "save", "slots", len(slots), log.FieldError, err)
		return fmt.Errorf("save slots: %w", err)
	}
	return nil
}

// Delete implements storage.SlotStore.
func (s *Store) Delete(ctx context.Context, slots ...string) error {
	if len(slots) == 0 {
		return nil
	}
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = s.key(slot)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Error("redis error", log.FieldOperation, "delete", log.FieldError, err)
		return fmt.Errorf("delete slots: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
