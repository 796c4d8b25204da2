package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps JSON encoded entries in Redis so several processes share one cache.
type RedisStore[V any] struct {
	client *redis.Client
	prefix string
}

func NewRedisStore[V any](client *redis.Client, prefix string) *RedisStore[V] {
	return &RedisStore[V]{client: client, prefix: prefix}
}

func (s *RedisStore[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry[V]{}, false, nil
		}
		return Entry[V]{}, false, err
	}
	var entry Entry[V]
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry[V]{}, false, fmt.Errorf("decode entry: %w", err)
	}
	return entry, true, nil
}

func (s *RedisStore[V]) Set(ctx context.Context, key string, entry Entry[V]) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return s.client.Set(ctx, s.prefix+key, data, entry.TTL).Err()
}
