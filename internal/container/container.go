package container

import (
	"context"
	"fmt"

	"groupdecide/internal/config"
	"groupdecide/internal/repository"
	"groupdecide/internal/repository/memory"
	"groupdecide/internal/service"
	"groupdecide/pkg/database"
	"groupdecide/pkg/logger"
	"groupdecide/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.PostgresDB
	Store       repository.Store
	RedisClient *redis.Client
	Cache       *service.CacheService
	Services    *service.Services
}

// New creates a new dependency injection container. Redis is optional: when
// it is missing or unreachable the engine runs with a pass-through cache and
// no event fan-out.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Logger: logger}

	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	c.Store = store

	// Initialize Redis client if Redis URL is configured
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Named("redis").Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			c.RedisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without caching")
	}

	c.Cache = service.NewCacheService(c.RedisClient, logger.Named("cache").Logger, cfg.ResultsCacheTTL)

	opts := []service.Option{
		service.WithCache(c.Cache),
		service.WithParticipantPolicy(service.LimitPolicy{Max: cfg.MaxParticipants}),
	}
	if c.RedisClient != nil {
		opts = append(opts, service.WithEvents(service.NewRedisEventPublisher(c.RedisClient)))
	}
	decisions := service.NewDecisionService(store, logger, opts...)

	c.Services = &service.Services{
		Decisions: decisions,
		Sweeper:   service.NewSweeper(decisions, c.Cache, logger, cfg.SweepInterval),
	}

	return c, nil
}

func (c *Container) openStore(ctx context.Context) (repository.Store, error) {
	switch c.Config.DataSource {
	case config.DataSourceMemory:
		c.Logger.Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	case config.DataSourcePostgres:
		db, err := database.NewPostgresDB(ctx, c.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db
		c.Logger.Info("Database connection pool initialized")
		return repository.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", c.Config.DataSource)
	}
}

// GetDecisionService returns the decision engine
func (c *Container) GetDecisionService() *service.DecisionService {
	return c.Services.Decisions
}

// GetSweeper returns the deadline sweep loop
func (c *Container) GetSweeper() service.SweeperService {
	return c.Services.Sweeper
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// GetCacheService returns the cache service. It is never nil; without redis
// it passes reads through.
func (c *Container) GetCacheService() *service.CacheService {
	return c.Cache
}

// Close releases the store and the redis connection
func (c *Container) Close() error {
	var err error
	if c.RedisClient != nil {
		if closeErr := c.RedisClient.Close(); closeErr != nil {
			err = fmt.Errorf("redis close: %w", closeErr)
		}
	}
	if c.Store != nil {
		c.Store.Close()
	}
	return err
}
