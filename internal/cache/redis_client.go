// Package cache memoizes aggregate query results. Keys carry a corpus
// generation that every successful ingest bumps, so stale entries are never
// read and simply expire.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix     = "voeventdb:"
	generationKey = keyPrefix + "generation"
)

type ResultCache interface {
	// GetJSON decodes the entry for key into dest and reports whether it
	// was present, along with the generation it looked under.
	GetJSON(ctx context.Context, key string, dest interface{}) (gen int64, hit bool, err error)
	// SetJSON stores value under the generation a preceding GetJSON
	// returned. If the corpus has moved on since, the entry is never read.
	SetJSON(ctx context.Context, gen int64, key string, value interface{}) error
	// Invalidate retires every entry written so far.
	Invalidate(ctx context.Context) error
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) ResultCache {
	return &redisCache{client: client, ttl: ttl}
}

func (r *redisCache) generation(ctx context.Context) (int64, error) {
	val, err := r.client.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (r *redisCache) GetJSON(ctx context.Context, key string, dest interface{}) (int64, bool, error) {
	gen, err := r.generation(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("cache generation: %w", err)
	}
	val, err := r.client.Get(ctx, VersionedKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return gen, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return gen, true, nil
}

func (r *redisCache) SetJSON(ctx context.Context, gen int64, key string, value interface{}) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.client.Set(ctx, VersionedKey(gen, key), jsonData, r.ttl).Err()
}

func (r *redisCache) Invalidate(ctx context.Context) error {
	return r.client.Incr(ctx, generationKey).Err()
}

// VersionedKey is the Redis key of an entry written at generation gen.
func VersionedKey(gen int64, key string) string {
	return fmt.Sprintf("%sg%d:%s", keyPrefix, gen, key)
}

type noopCache struct{}

// Noop is used when Redis is disabled; nothing is ever cached.
func Noop() ResultCache {
	return noopCache{}
}

func (noopCache) GetJSON(context.Context, string, interface{}) (int64, bool, error) {
	return 0, false, nil
}

func (noopCache) SetJSON(context.Context, int64, string, interface{}) error { return nil }
func (noopCache) Invalidate(context.Context) error                         { return nil }
