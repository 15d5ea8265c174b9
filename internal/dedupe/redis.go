package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tulashvilimindia/batumi.work/internal/hash/sha256"
)

const seenKeyPrefix = "crawler:seen:"

type setNXClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisSet keeps the seen-set in redis so runs on several processes share
// it. Keys expire after ttl.
type RedisSet struct {
	client    setNXClient
	namespace string
	ttl       time.Duration
}

// NewRedisSet scopes keys under namespace, usually the run id.
func NewRedisSet(client *redis.Client, namespace string, ttl time.Duration) *RedisSet {
	return newRedisSet(client, namespace, ttl)
}

func newRedisSet(client setNXClient, namespace string, ttl time.Duration) *RedisSet {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSet{client: client, namespace: namespace, ttl: ttl}
}

func (s *RedisSet) key(k string) string {
	return fmt.Sprintf("%s%s:%s", seenKeyPrefix, s.namespace, sha256.Sum(k))
}

// MarkIfNew sets the key with SETNX, which is atomic across processes.
func (s *RedisSet) MarkIfNew(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	ok, err := s.client.SetNX(ctx, s.key(key), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// RedisFactory namespaces each run's set by its run id.
func RedisFactory(client *redis.Client, ttl time.Duration) Factory {
	return func(runID string) Set { return NewRedisSet(client, runID, ttl) }
}

// NewRedisClient parses redisURL (or a bare host:port) and pings it.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
