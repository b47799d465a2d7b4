package rostercache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

// DefaultTTL is how long a cached roster stays valid.
const DefaultTTL = 6 * time.Hour

const (
	rosterPrefix = "roster:"
	plansKey     = "plans"
)

// Backend persists cache entries.
// Implemented by *store.Store and *RedisBackend.
type Backend interface {
	LoadCacheEntry(ctx context.Context, key string) (attendance.CacheEntry, bool, error)
	SaveCacheEntry(ctx context.Context, e attendance.CacheEntry) error
	DeleteCacheEntry(ctx context.Context, key string) error
	DeleteCacheEntries(ctx context.Context, prefix string) (int, error)
}

// Fetcher reads reference data from the remote store.
// Implemented by remote.Client.
type Fetcher interface {
	GetRoster(ctx context.Context, planID string) (attendance.Roster, error)
	GetPlans(ctx context.Context) ([]attendance.Plan, error)
}

// Cache serves roster and plan-list reads from a Backend, falling through
// to a Fetcher on a miss or an expired entry.
type Cache struct {
	backend Backend
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock overrides the wall clock used to stamp and check entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a cache over backend, fetching misses from fetcher.
func New(backend Backend, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Roster returns the roster for planID.
//
// A valid cached entry is returned without a remote call. Otherwise the full
// roster is fetched, stored with the current timestamp, and returned. A fetch
// error is returned as-is and leaves any expired entry in place.
func (c *Cache) Roster(ctx context.Context, planID string) (attendance.Roster, error) {
	key := RosterKey(planID)

	var roster attendance.Roster
	if c.load(ctx, key, &roster) {
		return roster, nil
	}

	roster, err := c.fetcher.GetRoster(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("fetch roster %s: %w", planID, err)
	}
	if roster == nil {
		roster = attendance.Roster{}
	}
	c.save(ctx, key, roster)
	return roster, nil
}

// Plans returns the plan list, cached under its own key with the same TTL.
func (c *Cache) Plans(ctx context.Context) ([]attendance.Plan, error) {
	var plans []attendance.Plan
	if c.load(ctx, plansKey, &plans) {
		return plans, nil
	}

	plans, err := c.fetcher.GetPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch plans: %w", err)
	}
	if plans == nil {
		plans = []attendance.Plan{}
	}
	c.save(ctx, plansKey, plans)
	return plans, nil
}

// Invalidate drops the cached roster for planID.
func (c *Cache) Invalidate(ctx context.Context, planID string) error {
	if err := c.backend.DeleteCacheEntry(ctx, RosterKey(planID)); err != nil {
		return fmt.Errorf("invalidate %s: %w", planID, err)
	}
	return nil
}

// InvalidateAll drops every cached roster and the plan list.
// Returns the number of entries removed.
func (c *Cache) InvalidateAll(ctx context.Context) (int, error) {
	n, err := c.backend.DeleteCacheEntries(ctx, rosterPrefix)
	if err != nil {
		return 0, fmt.Errorf("invalidate all: %w", err)
	}
	m, err := c.backend.DeleteCacheEntries(ctx, plansKey)
	if err != nil {
		return n, fmt.Errorf("invalidate all: %w", err)
	}
	return n + m, nil
}

// RosterKey is the cache key for a plan's roster.
func RosterKey(planID string) string {
	return rosterPrefix + planID
}

// load decodes a valid entry into dst and reports whether it did.
// Expired or undecodable entries are a miss, and so is a backend read
// failure: an unreachable cache must never block a roster fetch.
func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	entry, ok, err := c.backend.LoadCacheEntry(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed, fetching", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if !entry.Valid(c.now()) {
		c.logger.Debug("cache entry expired", "key", key, "age", c.now().Sub(entry.Timestamp))
		return false
	}
	if err := json.Unmarshal(entry.Payload, dst); err != nil {
		c.logger.Warn("discarding corrupt cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// save stores a fresh entry. A write failure is logged; the caller already
// holds the fetched value and a later read will simply fetch again.
func (c *Cache) save(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("encode cache entry", "key", key, "error", err)
		return
	}
	entry := attendance.CacheEntry{
		Key:       key,
		Timestamp: c.now(),
		TTL:       c.ttl,
		Payload:   payload,
	}
	if err := c.backend.SaveCacheEntry(ctx, entry); err != nil {
		c.logger.Warn("save cache entry", "key", key, "error", err)
	}
}
