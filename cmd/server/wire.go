package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/wangfeng/cherrycake-gateway/internal/app/product"
	"github.com/wangfeng/cherrycake-gateway/internal/config"
	"github.com/wangfeng/cherrycake-gateway/internal/db"
	"github.com/wangfeng/cherrycake-gateway/internal/framework/status"
	"github.com/wangfeng/cherrycake-gateway/internal/repository"
	"github.com/wangfeng/cherrycake-gateway/pkg/cache"
	"github.com/wangfeng/cherrycake-gateway/pkg/metrics"
	"github.com/wangfeng/cherrycake-gateway/pkg/models"
	"github.com/wangfeng/cherrycake-gateway/pkg/module"
	"github.com/wangfeng/cherrycake-gateway/pkg/router"
	"github.com/wangfeng/cherrycake-gateway/pkg/security"
)

// gateway is everything a server or an inspection command needs.
type gateway struct {
	actions  *router.Actions
	csrf     *security.CSRF
	registry *prometheus.Registry
	closers  []func() error
}

// Close releases the connections opened by build, last opened first.
func (g *gateway) Close(logger *slog.Logger) {
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			logger.Warn("Failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// build wires the configured backends, modules and action dispatcher.
// Background work started here stops when ctx is done.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gateway, error) {
	g := &gateway{registry: prometheus.NewRegistry()}
	g.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := make(map[string]status.Checker)

	var database *sql.DB
	if cfg.NeedsDatabase() {
		var err error
		database, err = db.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		g.closers = append(g.closers, database.Close)
		checks["postgres"] = database
		redacted := cfg.Database.Redacted()
		logger.Info("Connected to PostgreSQL",
			slog.String("host", redacted.Host),
			slog.String("port", redacted.Port),
			slog.String("database", redacted.Database))
	}

	caches, err := buildCaches(ctx, cfg, database, checks, g, logger)
	if err != nil {
		g.Close(logger)
		return nil, err
	}

	repo, err := buildRepository(ctx, cfg, database)
	if err != nil {
		g.Close(logger)
		return nil, err
	}

	var seed []models.Product
	if cfg.Products.Seed {
		seed = product.Catalog()
	}

	loader := module.NewLoader(logger)
	if err := loader.Register(
		status.New(version, checks),
		product.New(repo, logger, seed...),
	); err != nil {
		g.Close(logger)
		return nil, err
	}

	g.csrf = security.NewCSRF()
	g.csrf.CookieName = cfg.CSRF.CookieName
	g.csrf.HeaderName = cfg.CSRF.HeaderName
	g.csrf.FieldName = cfg.CSRF.FieldName
	g.csrf.Secure = cfg.CSRF.Secure

	rcfg := router.DefaultConfig().
		WithNamespace(cfg.Cache.Namespace).
		WithCacheDefaults(cfg.Actions.DefaultCacheProvider, cfg.Actions.DefaultCachePrefix, cfg.Actions.DefaultCacheTTL()).
		WithBruteForce(cfg.Actions.BruteForceMinSeconds, cfg.Actions.BruteForceMaxSeconds).
		WithPanicRecovery(cfg.Actions.RecoverPanics)

	g.actions = router.New(rcfg, router.Deps{
		Caches:  caches,
		Loader:  loader,
		CSRF:    g.csrf,
		Logger:  logger,
		Metrics: metrics.New(g.registry),
	})
	if err := loader.MapAll(g.actions); err != nil {
		g.Close(logger)
		return nil, err
	}

	logger.Info("Actions mapped",
		slog.Int("actions", g.actions.Count()),
		slog.Any("modules", loader.Names()))
	return g, nil
}

func buildCaches(ctx context.Context, cfg *config.Config, database *sql.DB, checks map[string]status.Checker, g *gateway, logger *slog.Logger) (*cache.Registry, error) {
	caches := cache.NewRegistry()
	for name, p := range cfg.Cache.Providers {
		switch p.Type {
		case config.ProviderMemory:
			m := cache.NewMemory()
			if p.SweepSeconds > 0 {
				go m.Janitor(ctx, time.Duration(p.SweepSeconds)*time.Second)
			}
			caches.Register(name, m)
		case config.ProviderRedis:
			client := redis.NewClient(&redis.Options{
				Addr:     p.Addr,
				Password: p.Password,
				DB:       p.DB,
			})
			g.closers = append(g.closers, client.Close)
			checks["redis:"+name] = status.CheckFunc(func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
			caches.Register(name, cache.NewRedis(client))
		case config.ProviderPostgres:
			pg, err := cache.NewPostgres(database, p.Table)
			if err != nil {
				return nil, fmt.Errorf("cache provider %s: %w", name, err)
			}
			if err := pg.Initialize(ctx); err != nil {
				return nil, fmt.Errorf("cache provider %s: %w", name, err)
			}
			if p.SweepSeconds > 0 {
				go pg.Janitor(ctx, time.Duration(p.SweepSeconds)*time.Second, logger)
			}
			caches.Register(name, pg)
		default:
			return nil, fmt.Errorf("cache provider %s: unknown type %q", name, p.Type)
		}
		logger.Debug("Cache provider registered", slog.String("name", name), slog.String("type", p.Type))
	}
	return caches, nil
}

func buildRepository(ctx context.Context, cfg *config.Config, database *sql.DB) (repository.ProductRepository, error) {
	if cfg.Products.Backend != config.BackendPostgres {
		return repository.NewInMemoryProductRepository(), nil
	}
	repo := repository.NewPgProductRepository(database)
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize product repository: %w", err)
	}
	return repo, nil
}
