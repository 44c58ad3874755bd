package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/parishdesk/parishdesk/internal/rbac"
)

// AccessParams wires the access control core shared by the API and worker.
type AccessParams struct {
	Config     *Config
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	// OnCatalogChange is forwarded to the service.
	OnCatalogChange func(context.Context)
}

// AccessControl bundles the wired access control components.
type AccessControl struct {
	Registry   *rbac.Registry
	Cache      rbac.Cache
	Repository *rbac.Repository
	Resolver   *rbac.Resolver
	Service    *rbac.Service
	Metrics    *rbac.Metrics
}

// NewAccessControl builds the registry, repository, resolver and service
// and loads the catalog from the database.
func NewAccessControl(ctx context.Context, p AccessParams) (*AccessControl, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := rbac.NewMetrics(p.Registerer)
	registry := rbac.NewRegistry(logger)
	cache := NewCapabilityCache(p.Config, p.Redis)
	repo := rbac.NewRepository(p.Pool, rbac.RepositoryConfig{HistoryRefs: p.Config.HistoryRefs()})
	resolver := rbac.NewResolver(rbac.ResolverConfig{
		Users:    repo,
		Registry: registry,
		Cache:    cache,
		TTL:      p.Config.CapabilityCacheTTL,
		Logger:   logger,
		Metrics:  metrics,
	})
	service := rbac.NewService(rbac.ServiceConfig{
		Store:           repo,
		Registry:        registry,
		Resolver:        resolver,
		Metrics:         metrics,
		Logger:          logger,
		OnCatalogChange: p.OnCatalogChange,
	})
	if err := service.ReloadCatalog(ctx); err != nil {
		return nil, err
	}
	return &AccessControl{Registry: registry, Cache: cache, Repository: repo, Resolver: resolver, Service: service, Metrics: metrics}, nil
}

// NewCapabilityCache returns the capability cache selected by the config.
// The redis backend requires a client; without one caching is disabled.
func NewCapabilityCache(cfg *Config, client *redis.Client) rbac.Cache {
	switch cfg.CapabilityCacheBackend {
	case CacheBackendMemory:
		return rbac.NewMemoryCache(cfg.CapabilityCacheSize, cfg.CapabilityCacheTTL)
	default:
		if client == nil {
			return nil
		}
		return rbac.NewRedisCache(client, cfg.CapabilityCacheTTL)
	}
}

// ListenCatalog reloads the catalog whenever any process publishes a
// catalog change. It is a no-op unless the capability cache is Redis backed.
func (a *AccessControl) ListenCatalog(ctx context.Context, logger *slog.Logger) bool {
	rc, ok := a.Cache.(*rbac.RedisCache)
	if !ok {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	rc.Listen(ctx, logger, func(ctx context.Context) {
		if err := a.Service.ReloadCatalog(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("reload role catalog", slog.Any("error", err))
		}
	})
	return true
}

// CatalogReloader refreshes the in-process role catalog from storage.
type CatalogReloader interface {
	ReloadCatalog(ctx context.Context) error
}

// RefreshCatalog reloads the catalog every interval until ctx is done, picking
// up mutations committed by other processes. A non-positive interval returns
// immediately.
func RefreshCatalog(ctx context.Context, reloader CatalogReloader, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reloader.ReloadCatalog(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("reload role catalog", slog.Any("error", err))
			}
		}
	}
}
