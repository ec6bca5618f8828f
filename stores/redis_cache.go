package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/permit"
)

// RedisGrantCache caches effective grant sets in Redis, one JSON value
// per subject (key: grants:{subjectID}). Flush walks the key prefix so
// it only touches this cache's entries.
type RedisGrantCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ permit.GrantCache = (*RedisGrantCache)(nil)

func NewRedisGrantCache(client *redis.Client, ttl time.Duration) *RedisGrantCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisGrantCache{client: client, prefix: "grants:", ttl: ttl}
}

func (c *RedisGrantCache) key(subjectID string) string {
	return c.prefix + subjectID
}

func (c *RedisGrantCache) Get(subjectID string) ([]permit.Grant, bool) {
	data, err := c.client.Get(context.Background(), c.key(subjectID)).Bytes()
	if err != nil {
		return nil, false
	}
	var grants []permit.Grant
	if err := json.Unmarshal(data, &grants); err != nil {
		return nil, false
	}
	return grants, true
}

func (c *RedisGrantCache) Set(subjectID string, grants []permit.Grant) {
	data, err := json.Marshal(grants)
	if err != nil {
		return
	}
	c.client.Set(context.Background(), c.key(subjectID), data, c.ttl)
}

func (c *RedisGrantCache) Invalidate(subjectID string) {
	c.client.Del(context.Background(), c.key(subjectID))
}

func (c *RedisGrantCache) Flush() {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}
