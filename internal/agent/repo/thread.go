package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisThreadRepository keeps each thread's active messages in a redis list.
type RedisThreadRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisThreadRepository(rdb redis.Cmdable, ttl time.Duration) *RedisThreadRepository {
	return &RedisThreadRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisThreadRepository) threadKey(threadID string) string {
	return fmt.Sprintf("thread:%s:messages", threadID)
}

// SaveMessages replaces the stored list in one MULTI/EXEC so readers never
// observe a half-written checkpoint.
func (r *RedisThreadRepository) SaveMessages(ctx context.Context, threadID string, messages []*schema.Message) error {
	rows := make([]any, 0, len(messages))
	for i, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to marshal message")
			return fmt.Errorf("marshal message at index %d: %w", i, err)
		}
		rows = append(rows, b)
	}

	key := r.threadKey(threadID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(rows) > 0 {
			pipe.RPush(ctx, key, rows...)
			if r.ttl > 0 {
				pipe.Expire(ctx, key, r.ttl)
			}
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save thread checkpoint")
		return errx.WrapRedis(err)
	}

	logx.Debug().Str("thread_id", threadID).Int("messages", len(rows)).Msg("Thread checkpoint saved")
	return nil
}

func (r *RedisThreadRepository) LoadHistory(ctx context.Context, threadID string) (*model.ConversationHistory, error) {
	key := r.threadKey(threadID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &model.ConversationHistory{ThreadID: threadID, Messages: []*schema.Message{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return &model.ConversationHistory{ThreadID: threadID, Messages: msgs}, nil
}

func (r *RedisThreadRepository) ClearHistory(ctx context.Context, threadID string) error {
	key := r.threadKey(threadID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete thread history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisThreadRepository) GetMessageCount(ctx context.Context, threadID string) (int, error) {
	key := r.threadKey(threadID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.ThreadRepository = (*RedisThreadRepository)(nil)
