package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

// LoadCacheEntry reads a cache entry by key.
// Returns (CacheEntry{}, false, nil) if absent. Expiry is the reader's
// concern; entries are returned regardless of age.
func (s *Store) LoadCacheEntry(ctx context.Context, key string) (attendance.CacheEntry, bool, error) {
	var (
		ts      int64
		ttlMS   int64
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT timestamp, ttl_ms, payload FROM cache_entries WHERE key = ?
	`, key).Scan(&ts, &ttlMS, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.CacheEntry{}, false, nil
	}
	if err != nil {
		return attendance.CacheEntry{}, false, fmt.Errorf("load cache entry %s: %w", key, err)
	}

	return attendance.CacheEntry{
		Key:       key,
		Timestamp: time.UnixMilli(ts),
		TTL:       time.Duration(ttlMS) * time.Millisecond,
		Payload:   payload,
	}, true, nil
}

// SaveCacheEntry writes a cache entry, replacing any entry with the same key.
func (s *Store) SaveCacheEntry(ctx context.Context, e attendance.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, timestamp, ttl_ms, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			timestamp = excluded.timestamp,
			ttl_ms    = excluded.ttl_ms,
			payload   = excluded.payload
	`, e.Key, e.Timestamp.UnixMilli(), e.TTL.Milliseconds(), []byte(e.Payload))
	if err != nil {
		return fmt.Errorf("save cache entry %s: %w", e.Key, err)
	}
	return nil
}

// DeleteCacheEntry removes one cache entry. Deleting a missing key is not an error.
func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteCacheEntries removes every cache entry whose key starts with prefix.
// An empty prefix clears the cache.
func (s *Store) DeleteCacheEntries(ctx context.Context, prefix string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE substr(key, 1, ?) = ?
	`, len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries %q: %w", prefix, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: rows affected: %w", err)
	}
	return int(n), nil
}

// CacheKeys lists cache keys with the given prefix, sorted.
func (s *Store) CacheKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache_entries ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list cache keys: %w", err)
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, rows.Err()
}
