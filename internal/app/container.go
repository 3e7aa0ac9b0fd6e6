package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatsell/agency_dash/backend/internal/config"
	"github.com/chatsell/agency_dash/backend/internal/database"
	"github.com/chatsell/agency_dash/backend/internal/health"
	"github.com/chatsell/agency_dash/backend/internal/limits"
	"github.com/chatsell/agency_dash/backend/internal/observability"
	"github.com/chatsell/agency_dash/backend/internal/services/analytics"
	"github.com/chatsell/agency_dash/backend/internal/store"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config            *config.Config
	Logger            *slog.Logger
	Mongo             *mongo.Client
	Store             *store.Mongo
	Redis             *redis.Client
	Analytics         *analytics.Service
	RateLimiter       *limits.RateLimiter
	TenantLimit       limits.LimitConfig
	HealthMon         *health.Monitor
	Observability     *observability.Provider
	ReportingLocation *time.Location
	// Clock is the source of each request's reference instant.
	Clock func() time.Time
}

// NewContainer builds a dependency container from the provided primitives. A nil
// redis client disables per-tenant rate limiting.
func NewContainer(ctx context.Context, cfg *config.Config, client *mongo.Client, redisClient *redis.Client, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if client == nil {
		return nil, fmt.Errorf("mongo client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	mongoStore := store.NewMongo(client, cfg.Mongo.Database, cfg.Mongo, cfg.Breaker, obsProvider, logger)
	if err := database.EnsureIndexes(ctx, mongoStore.Database(), cfg.Mongo); err != nil {
		// Queries still run without the indexes, only slower.
		logger.Warn("ensure indexes", slog.String("error", err.Error()))
	}

	opts, err := analytics.OptionsFromConfig(*cfg)
	if err != nil {
		return nil, err
	}
	opts.Metrics = obsProvider
	opts.Logger = logger.With(slog.String("component", "analytics"))
	svc, err := analytics.NewService(mongoStore, opts)
	if err != nil {
		return nil, fmt.Errorf("init analytics service: %w", err)
	}

	monitor := health.NewMonitor(mongoStore, obsProvider, cfg.Health, logger.With(slog.String("component", "health")))
	monitor.Start(ctx)

	return &Container{
		Config:            cfg,
		Logger:            logger,
		Mongo:             client,
		Store:             mongoStore,
		Redis:             redisClient,
		Analytics:         svc,
		RateLimiter:       limits.NewRateLimiter(redisClient),
		TenantLimit:       limits.FromConfig(cfg.RateLimits),
		HealthMon:         monitor,
		Observability:     obsProvider,
		ReportingLocation: svc.Location(),
		Clock:             time.Now,
	}, nil
}

func (c *Container) ReportingLoc() *time.Location {
	if c == nil || c.ReportingLocation == nil {
		return time.UTC
	}
	return c.ReportingLocation
}

// Now returns the reference instant for a new request.
func (c *Container) Now() time.Time {
	if c == nil || c.Clock == nil {
		return time.Now()
	}
	return c.Clock()
}

// Close releases the store and cache connections.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if err := c.Observability.Shutdown(ctx); err != nil {
		c.Logger.Warn("observability shutdown", slog.String("error", err.Error()))
	}
	if c.Mongo != nil {
		return c.Mongo.Disconnect(ctx)
	}
	return nil
}
