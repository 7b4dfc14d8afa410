package redis_test

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/storage"
	redisstore "fintrack/internal/storage/redis"
)

// setupTestStore creates a store on Redis DB 15 with a per-test prefix
func setupTestStore(t *testing.T) *redisstore.Store {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping test: Redis not available")
	}

	prefix := "fintrack-test:" + t.Name() + ":"
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return redisstore.NewStore(client, prefix, nil)
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	t.Run("Load_Missing_Slot", func(t *testing.T) {
		payload, found, err := s.Load(ctx, storage.SlotTransactions)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, payload)
	})

	t.Run("Save_Many_And_Load", func(t *testing.T) {
		err := s.Save(ctx, map[string][]byte{
			storage.SlotTransactions: []byte(`[]`),
			storage.SlotInitialized:  []byte(`true`),
		})
		require.NoError(t, err)

		payload, found, err := s.Load(ctx, storage.SlotInitialized)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "true", string(payload))
	})

	t.Run("Delete_Slots", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, storage.SlotTransactions, storage.SlotInitialized))

		_, found, err := s.Load(ctx, storage.SlotTransactions)
		require.NoError(t, err)
		assert.False(t, found)
	})
}
