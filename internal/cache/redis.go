package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mes-backend/config"
)

// KeyPrefix namespaces response entries in a shared Redis.
const KeyPrefix = "mes:httpcache:"

const scanCount = 100

// NewRedisClient connects to the configured Redis and checks it answers.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Redis stores entries as JSON under KeyPrefix.
type Redis struct {
	rdb redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Get(ctx context.Context, key string) (*Entry, bool, error) {
	b, err := r.rdb.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %q: %w", key, err)
	}
	return &e, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, KeyPrefix+key, b, ttl).Err()
}

// Flush deletes the prefixed keys only; other data in the database is kept.
func (r *Redis) Flush(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, KeyPrefix+"*", scanCount).Iterator()
	keys := make([]string, 0, scanCount)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanCount {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.rdb.Del(ctx, keys...).Err()
	}
	return nil
}

// Shutdown closes the underlying client.
func (r *Redis) Shutdown() error {
	return r.rdb.Close()
}
