package di

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sync-admin/cmd/api/infrastructure"
	"sync-admin/internal/adapter/api"
	"sync-admin/internal/adapter/cache"
	"sync-admin/internal/adapter/db/postgres"
	ginhandler "sync-admin/internal/adapter/gin/handler"
	"sync-admin/internal/adapter/gin/middleware"
	ginrouter "sync-admin/internal/adapter/gin/router"
	"sync-admin/internal/adapter/repository/cached"
	"sync-admin/internal/config"
	"sync-admin/internal/domain/project"
	domain "sync-admin/internal/domain/table"
	"sync-admin/internal/usecase/table"
	"sync-admin/pkg/metrics"
	redisclient "sync-admin/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	DB          *gorm.DB
	RedisClient *redisclient.Client
	Registry    *table.Registry
	RateLimiter *middleware.RateLimiter
	Router      *gin.Engine
}

// NewContainer creates and initializes all application dependencies
func NewContainer(cfg *config.Config, l *zap.Logger) (*Container, error) {
	return NewContainerWith(cfg, l, prometheus.DefaultRegisterer)
}

// NewContainerWith is NewContainer with an explicit metrics registerer.
func NewContainerWith(cfg *config.Config, l *zap.Logger, reg prometheus.Registerer) (*Container, error) {
	// Validate configuration before initializing any dependencies
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	defaultSort, err := domain.ParseSort(cfg.Table.DefaultSort)
	if err != nil {
		return nil, fmt.Errorf("invalid TABLE_DEFAULT_SORT: %w", err)
	}

	c := &Container{
		Config:  cfg,
		Logger:  l,
		Metrics: metrics.New(reg),
	}

	c.RedisClient, err = infrastructure.NewRedisClient(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	source, err := c.projectSource()
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	// Cache-aside on top of the source; without Redis it still collapses
	// identical concurrent fetches.
	var pageCache cache.PageCache[project.Project]
	if c.RedisClient != nil {
		pageCache = cache.NewRedisPageCache[project.Project](
			c.RedisClient.Client,
			table.ProjectsTable,
			time.Duration(cfg.Redis.CacheTTL)*time.Second,
			l,
		)
	}
	fetcher := cached.NewFetcher[project.Project](source, pageCache, l, c.Metrics)

	opts := table.Options{
		PageSize:    cfg.Table.PageSize,
		DefaultSort: defaultSort,
		Debounce:    time.Duration(cfg.Table.DebounceMillis) * time.Millisecond,
	}
	c.Registry = table.NewRegistry(map[string]table.Factory{
		table.ProjectsTable: func(ctx context.Context) table.Session {
			return table.NewProjectController(ctx, fetcher, opts, l, c.Metrics)
		},
	}, time.Duration(cfg.Table.SessionIdleTimeoutSeconds)*time.Second, l, c.Metrics)

	var limiterClient redis.Scripter
	if c.RedisClient != nil {
		limiterClient = c.RedisClient.Client
	}
	c.RateLimiter = middleware.NewRateLimiter(limiterClient, middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		WindowSeconds:     cfg.RateLimit.WindowSeconds,
		Enabled:           cfg.RateLimit.Enabled,
	}, l, c.Metrics)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	c.Router = ginrouter.SetupRouter(
		ginhandler.NewTableHandler(c.Registry, map[string]ginhandler.Invalidator{
			table.ProjectsTable: fetcher,
		}, l),
		ginhandler.NewStreamHandler(c.Registry, nil, l),
		c.RateLimiter,
		ginrouter.Config{
			ServiceName: cfg.Logger.ServiceName,
			Checks:      c.healthChecks(),
		},
		l,
	)

	return c, nil
}

// projectSource picks where project pages come from.
func (c *Container) projectSource() (table.Fetcher[project.Project], error) {
	switch c.Config.App.FetchSource {
	case config.FetchSourceDB:
		db, err := infrastructure.NewDatabase(c.Config, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		c.DB = db
		return postgres.NewProjectRepoPG(db, c.Logger), nil
	default:
		client := api.NewClient(
			c.Config.SyncAPI.BaseURL,
			time.Duration(c.Config.SyncAPI.TimeoutSeconds)*time.Second,
			c.Logger,
		)
		c.Logger.Info("fetching from Sync API", zap.String("base_url", c.Config.SyncAPI.BaseURL))
		return api.NewProjectFetcher(client), nil
	}
}

func (c *Container) healthChecks() map[string]ginrouter.HealthChecker {
	checks := map[string]ginrouter.HealthChecker{}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Healthy
	}
	if c.DB != nil {
		checks["database"] = infrastructure.PingDatabase(c.DB)
	}
	return checks
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	var errs []error

	if c.Registry != nil {
		c.Registry.Close()
	}

	// Close Redis connection
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	// Close database connection
	if c.DB != nil {
		if err := infrastructure.CloseDatabase(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("container close errors: %v", errs)
	}

	return nil
}

// RunReaper closes idle sessions until ctx is done.
func (c *Container) RunReaper(ctx context.Context) {
	c.Registry.Run(ctx, time.Duration(c.Config.Table.ReapIntervalSeconds)*time.Second)
}
