package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/FACorreiaa/loci-offline-sync/internal/cache"
	"github.com/FACorreiaa/loci-offline-sync/internal/remote"
	syncpkg "github.com/FACorreiaa/loci-offline-sync/internal/sync"
	"github.com/FACorreiaa/loci-offline-sync/pkg/config"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	Cache  *cache.Store
	Remote remote.Client

	Coordinator *syncpkg.Coordinator
	Runner      *syncpkg.Runner

	pgpool *pgxpool.Pool
}

// InitDependencies initializes all application dependencies.
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initCache(); err != nil {
		return nil, fmt.Errorf("failed to init local cache: %w", err)
	}
	if err := deps.initRemote(ctx); err != nil {
		return nil, fmt.Errorf("failed to init remote store: %w", err)
	}
	deps.initSync()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initCache() error {
	store, err := cache.Open(d.Config.CachePath, d.Logger)
	if err != nil {
		return err
	}
	d.Cache = store
	return nil
}

func (d *Dependencies) initRemote(ctx context.Context) error {
	switch d.Config.Remote.Kind {
	case config.RemoteKindHTTP:
		d.Remote = remote.NewHTTPClient(remote.HTTPClientConfig{
			BaseURL:           d.Config.Remote.BaseURL,
			AuthToken:         d.Config.Remote.AuthToken,
			Timeout:           d.Config.Remote.Timeout,
			RequestsPerSecond: d.Config.Remote.RequestsPerSecond,
			MaxRetries:        d.Config.Remote.MaxRetries,
		}, d.Logger)
	case config.RemoteKindPostgres:
		pool, err := pgxpool.New(ctx, d.Config.Remote.DSN)
		if err != nil {
			return fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("failed to ping document database: %w", err)
		}
		d.pgpool = pool
		d.Remote = remote.NewPostgresClient(pool, d.Logger)
	default:
		return fmt.Errorf("unknown remote kind %q", d.Config.Remote.Kind)
	}

	d.Logger.Info("remote store initialized", slog.String("kind", d.Config.Remote.Kind))
	return nil
}

func (d *Dependencies) initSync() {
	metrics := syncpkg.NewMetrics(prometheus.DefaultRegisterer)
	d.Coordinator = syncpkg.NewCoordinator(
		d.Remote,
		d.Cache,
		d.Logger,
		syncpkg.WithMinRefreshInterval(d.Config.Refresh.MinInterval),
		syncpkg.WithMetrics(metrics),
	)
	if d.Config.Refresh.Interval > 0 {
		d.Runner = syncpkg.NewRunner(d.Coordinator, d.Config.Refresh.Interval, d.Logger)
	}
	d.Logger.Info("sync coordinator initialized")
}

// Cleanup closes all resources.
func (d *Dependencies) Cleanup() {
	if d.Cache != nil {
		_ = d.Cache.Close()
	}
	if d.pgpool != nil {
		d.pgpool.Close()
	}
	d.Logger.Info("cleanup completed")
}
