package store

import (
	"context"
	"errors"

	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisKeyValueStore keeps each payload as a plain string value without expiry.
type RedisKeyValueStore struct {
	client *redis.Client
	prefix string
}

func NewRedisKeyValueStore(client *redis.Client, prefix string) *RedisKeyValueStore {
	return &RedisKeyValueStore{client: client, prefix: prefix}
}

func (s *RedisKeyValueStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisKeyValueStore) GetValue(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("Failed to read value from Redis")
		return nil, false, errx.WrapRedis(err)
	}
	return payload, true, nil
}

// UpsertValue replaces the whole payload in a single SET.
func (s *RedisKeyValueStore) UpsertValue(ctx context.Context, key string, payload []byte) error {
	if err := s.client.Set(ctx, s.key(key), payload, 0).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("Failed to write value to Redis")
		return errx.WrapRedis(err)
	}
	logx.Debug().Str("key", key).Int("bytes", len(payload)).Msg("Value stored")
	return nil
}
