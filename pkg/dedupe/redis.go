package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisTTL keeps keys long enough to outlive their hour bucket with
// margin for clock skew between processes.
const DefaultRedisTTL = 2 * time.Hour

// RedisStore shares idempotency keys between processes via SETNX, for
// deployments running more than one scheduler instance.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed key store. A non-positive ttl uses
// DefaultRedisTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Acquire(ctx context.Context, key string, at time.Time) (bool, error) {
	ok, err := r.client.SetNX(ctx, "send:"+key, at.Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
