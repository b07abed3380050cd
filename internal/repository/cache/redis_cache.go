package cache

import (
	"context"
	"encoding/json"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/chat"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisCache shares retrieval results across instances. Each user's keys are
// tracked in a set so they can be dropped together.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.ILogger
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, log logger.ILogger) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, logger: log}
}

func indexKey(userId uuid.UUID) string {
	return userPrefix(userId) + "keys"
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]chat.ContextItem, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("RETRIEVAL_CACHE", "Redis get failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}

	var items []chat.ContextItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func (c *RedisCache) Set(ctx context.Context, userId uuid.UUID, key string, items []chat.ContextItem) {
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, c.ttl)
	pipe.SAdd(ctx, indexKey(userId), key)
	pipe.Expire(ctx, indexKey(userId), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("RETRIEVAL_CACHE", "Redis set failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *RedisCache) InvalidateUser(ctx context.Context, userId uuid.UUID) {
	keys, err := c.rdb.SMembers(ctx, indexKey(userId)).Result()
	if err != nil {
		c.logger.Warn("RETRIEVAL_CACHE", "Redis invalidate failed", map[string]interface{}{
			"user_id": userId.String(),
			"error":   err.Error(),
		})
		return
	}

	keys = append(keys, indexKey(userId))
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("RETRIEVAL_CACHE", "Redis delete failed", map[string]interface{}{"error": err.Error()})
	}
}
