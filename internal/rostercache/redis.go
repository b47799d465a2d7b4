package rostercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

// RedisBackend stores cache entries in Redis so several devices on one
// network can share roster reads.
//
// Entries are written with SET ... EX so Redis evicts them once their TTL
// passes. Cache readers still check the stored timestamp.
type RedisBackend struct {
	client    *redis.Client
	namespace string
}

// NewRedisBackend wraps an existing client. Keys are stored under
// namespace + ":" + key.
func NewRedisBackend(client *redis.Client, namespace string) *RedisBackend {
	return &RedisBackend{client: client, namespace: namespace}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, namespace string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisBackend(client, namespace), nil
}

// Close closes the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) key(k string) string {
	return r.namespace + ":" + k
}

// LoadCacheEntry implements Backend.
func (r *RedisBackend) LoadCacheEntry(ctx context.Context, key string) (attendance.CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return attendance.CacheEntry{}, false, nil
	}
	if err != nil {
		return attendance.CacheEntry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	e, ok := decodeEntry(data)
	if !ok {
		// Unreadable values are dropped so the next save starts clean.
		if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
			return attendance.CacheEntry{}, false, fmt.Errorf("redis del %s: %w", key, err)
		}
		return attendance.CacheEntry{}, false, nil
	}
	return e, true, nil
}

// decodeEntry parses a stored value. ok is false when the value is not a
// cache entry.
func decodeEntry(data []byte) (attendance.CacheEntry, bool) {
	var e attendance.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return attendance.CacheEntry{}, false
	}
	return e, true
}

// SaveCacheEntry implements Backend.
func (r *RedisBackend) SaveCacheEntry(ctx context.Context, e attendance.CacheEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", e.Key, err)
	}
	if err := r.client.Set(ctx, r.key(e.Key), data, e.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", e.Key, err)
	}
	return nil
}

// DeleteCacheEntry implements Backend.
func (r *RedisBackend) DeleteCacheEntry(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// DeleteCacheEntries implements Backend using SCAN over the prefix.
func (r *RedisBackend) DeleteCacheEntries(ctx context.Context, prefix string) (int, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del %s*: %w", prefix, err)
	}
	return int(n), nil
}
