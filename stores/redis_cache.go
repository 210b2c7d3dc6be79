package stores

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the decision cache with Redis so cached verdicts are
// shared across instances (key: authz:decision:{key}).
type RedisCache struct {
	client *redis.Client
	keyFmt string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, keyFmt: "authz:decision:"}
}

func (c *RedisCache) key(k string) string {
	return c.keyFmt + k
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	res, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		return "", false
	}
	return res, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	// decisions are reproducible; a failed write just means a re-evaluation
	_ = c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyFmt+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
