package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/schemafix/internal/assist"
	"github.com/JonMunkholm/schemafix/internal/clean"
	"github.com/JonMunkholm/schemafix/internal/config"
	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/schema"
)

// Runtime is a fully wired Service plus the connections it owns.
type Runtime struct {
	Service *Service
	Store   schema.Store
	Assist  *assist.Client

	closers []func()
}

// Close releases pools and caches in reverse order of creation. It is safe
// to call on a nil Runtime and more than once.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Open builds the schema store, the assistant and the engines described by
// cfg and loads the schema. Everything opened so far is closed on error.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Runtime, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if rt.Store, err = rt.openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	mapOpts := []mapping.Option{mapping.WithLogger(logger)}
	cleanOpts := []clean.Option{clean.WithLogger(logger)}

	if cfg.Assist.Active() {
		rt.Assist, err = assist.NewClient(assist.Config{
			APIKey:     cfg.Assist.APIKey,
			BaseURL:    cfg.Assist.BaseURL,
			Model:      cfg.Assist.Model,
			Timeout:    cfg.Assist.Timeout,
			MaxRetries: cfg.Assist.MaxRetries,
			RetryDelay: cfg.Assist.RetryDelay,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create assistant: %w", err)
		}

		cache, err := rt.openCache(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		repairer := assist.NewCachedRepairer(rt.Assist, cache, cfg.Cache.TTL, logger)

		mapOpts = append(mapOpts, mapping.WithResolver(rt.Assist))
		cleanOpts = append(cleanOpts, clean.WithRepairer(repairer), clean.WithDiscoverer(rt.Assist))
		logger.Info("assistant enabled", "model", rt.Assist.Model())
	}

	rt.Service, err = NewService(ctx, ServiceConfig{
		Store:         rt.Store,
		Mapper:        mapping.NewEngine(mapOpts...),
		Cleaner:       clean.NewEngine(cleanOpts...),
		Limiter:       NewPassLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		AssistEnabled: rt.Assist != nil,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Upload.Timeout > 0 {
		PassTimeout = cfg.Upload.Timeout
	}
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (schema.Store, error) {
	if strings.ToLower(cfg.Schema.Store) == config.StorePostgres {
		return rt.openPgStore(ctx, cfg, logger)
	}

	store := schema.NewFileStore(cfg.Schema.Path)
	if !cfg.Schema.SeedDefaults {
		return store, nil
	}
	if _, err := store.Load(ctx); !errors.Is(err, schema.ErrNotFound) {
		return store, nil
	}
	defaults, err := schema.DefaultOrders()
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, defaults); err != nil {
		return nil, fmt.Errorf("seed schema: %w", err)
	}
	logger.Info("seeded default schema", "path", store.Path(), "fields", defaults.Len())
	return store, nil
}

func (rt *Runtime) openPgStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (schema.Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	rt.closers = append(rt.closers, pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	store := schema.NewPgStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	if cfg.Schema.SeedDefaults {
		defaults, err := schema.DefaultOrders()
		if err != nil {
			return nil, err
		}
		added, err := store.Seed(ctx, defaults)
		if err != nil {
			return nil, fmt.Errorf("seed schema: %w", err)
		}
		if len(added) > 0 {
			logger.Info("seeded default schema", "fields", len(added))
		}
	}
	return store, nil
}

// openCache returns Redis when configured, otherwise an in-process cache.
func (rt *Runtime) openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (assist.Cache, error) {
	if cfg.Cache.RedisAddr == "" {
		return assist.NewMemoryCache(), nil
	}
	cache, err := assist.NewRedisCache(ctx, assist.RedisConfig{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() {
		if err := cache.Close(); err != nil {
			logger.Warn("failed to close redis", "error", err)
		}
	})
	logger.Info("repair cache on redis", "addr", cfg.Cache.RedisAddr)
	return cache, nil
}
