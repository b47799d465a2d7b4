package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BigJazzz/mosaic/internal/backend"
	"github.com/BigJazzz/mosaic/internal/config"
	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/remote"
	"github.com/BigJazzz/mosaic/internal/rostercache"
	"github.com/BigJazzz/mosaic/internal/schema"
	"github.com/BigJazzz/mosaic/internal/session"
	"github.com/BigJazzz/mosaic/internal/sheet"
	"github.com/BigJazzz/mosaic/internal/store"
)

// device is the client-side stack one command works against.
type device struct {
	cfg     config.Config
	store   *store.Store
	api     *remote.Client
	cache   *rostercache.Cache
	session *session.Session
	sync    *engine.Reconciler
	redis   *rostercache.RedisBackend
}

// openDevice loads config, opens the local store, and restores the
// persisted plan selection and session token.
func openDevice(ctx context.Context, opts *RootOptions) (*device, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Client.Store)
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", cfg.Client.Store, err)
	}
	d := &device{cfg: cfg, store: st}

	d.api, err = remote.NewClient(cfg.Client.Endpoint,
		remote.WithRateLimit(cfg.Client.RateRPS, cfg.Client.RateBurst))
	if err != nil {
		d.Close()
		return nil, err
	}

	var cacheBackend rostercache.Backend = st
	if cfg.Client.RedisAddr != "" {
		d.redis, err = rostercache.DialRedis(ctx, cfg.Client.RedisAddr, "mosaic")
		if err != nil {
			d.Close()
			return nil, err
		}
		cacheBackend = d.redis
	}
	d.cache = rostercache.New(cacheBackend, d.api, rostercache.WithTTL(cfg.Client.CacheTTL))

	d.session = session.New(st, d.cache, d.api)
	if err := d.session.Restore(ctx); err != nil {
		d.Close()
		return nil, err
	}
	token, err := d.session.Token(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.api.SetToken(token)

	d.sync = engine.New(st, d.api, d.session,
		engine.WithInterval(cfg.Client.SyncInterval),
		engine.WithConnectivity(d.api.Online),
		engine.WithHaltStore(st),
	)
	d.session.AttachSync(d.sync)
	return d, nil
}

// Close releases the local store and any cache connection.
func (d *device) Close() error {
	var errs []error
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// recordSync persists the time of the last successful round trip so
// "sync status" can report it from another process.
func (d *device) recordSync(ctx context.Context, at time.Time) {
	if at.IsZero() {
		return
	}
	if err := d.store.SetSetting(ctx, store.SettingLastSync, at.UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("record last sync", "error", err)
	}
}

// lastSync returns the persisted last successful round trip, or zero.
func (d *device) lastSync(ctx context.Context) (time.Time, error) {
	raw, ok, err := d.store.Setting(ctx, store.SettingLastSync)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}

// trySync runs one round trip and records it. Failures are left to Status.
func (d *device) trySync(ctx context.Context) (engine.Result, error) {
	res, err := d.sync.Trigger(ctx)
	if err == nil && res.Skipped == engine.SkipNone {
		d.recordSync(ctx, time.Now())
	}
	return res, err
}

// today is the meeting day in the configured zone.
func (d *device) today() string {
	return time.Now().In(d.cfg.Location()).Format(schema.DateLayout)
}

// remoteBackend is the server-side stack over the workbook database.
type remoteBackend struct {
	db  *sql.DB
	svc *backend.Service
}

// openBackend opens the workbook database and the service over it.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*remoteBackend, error) {
	db, err := sheet.OpenDB(cfg.Server.Workbook)
	if err != nil {
		return nil, err
	}
	dest, err := sheet.Open(ctx, db, backend.DestWorkbook)
	if err != nil {
		db.Close()
		return nil, err
	}
	source, err := sheet.Open(ctx, db, backend.SourceWorkbook)
	if err != nil {
		db.Close()
		return nil, err
	}

	cols := schema.New(dest, source,
		schema.WithLocation(cfg.Location()),
		schema.WithLogger(logger),
	)
	svc := backend.New(dest, source, cols, backend.WithLogger(logger))
	return &remoteBackend{db: db, svc: svc}, nil
}

// Close closes the workbook database.
func (b *remoteBackend) Close() error {
	return b.db.Close()
}
