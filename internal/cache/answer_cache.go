package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docuchat/internal/model"
)

// AnswerCache stores computed answers keyed by Key(). Implementations are
// best-effort: the orchestrator treats any error as a miss and never fails a
// request over the cache.
type AnswerCache interface {
	Get(ctx context.Context, key string) (*model.CacheEntry, bool, error)
	Put(ctx context.Context, key string, entry *model.CacheEntry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache is the production AnswerCache, entries serialized as JSON with
// a TTL. Concurrent puts for the same key are last-write-wins, which is fine
// because all writers derive identical content for a given key.
type RedisCache struct {
	client *redisv9.Client
}

func NewRedisCache(client *redisv9.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*model.CacheEntry, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get answer failed: %w", err)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached answer failed: %w", err)
	}
	return &entry, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, entry *model.CacheEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal answer cache entry failed: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set answer failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete answer failed: %w", err)
	}
	return nil
}

// NoopCache is the AnswerCache for deployments with caching disabled: every
// lookup misses, every write succeeds silently.
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (*NoopCache) Get(context.Context, string) (*model.CacheEntry, bool, error) {
	return nil, false, nil
}

func (*NoopCache) Put(context.Context, string, *model.CacheEntry, time.Duration) error {
	return nil
}

func (*NoopCache) Delete(context.Context, string) error {
	return nil
}
