package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"groupdecide/internal/domain"
	"groupdecide/pkg/redis"
)

// CacheService provides the redis-backed read cache and cross-instance guards.
// A CacheService without a client passes every read through and grants every
// guard, so the engine behaves the same with or without redis.
type CacheService struct {
	redis      *redis.Client
	logger     *zap.Logger
	resultsTTL time.Duration
}

// NewCacheService creates a new cache service. client may be nil.
func NewCacheService(client *redis.Client, logger *zap.Logger, resultsTTL time.Duration) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resultsTTL <= 0 {
		resultsTTL = redis.TTLResults
	}
	return &CacheService{redis: client, logger: logger, resultsTTL: resultsTTL}
}

// Enabled reports whether a redis client is configured
func (c *CacheService) Enabled() bool {
	return c != nil && c.redis != nil
}

// GetResultsWithCache returns the results view of a locked decision using the
// cache-aside pattern. Locked results never change, so entries only expire or
// are dropped when the decision is deleted.
func (c *CacheService) GetResultsWithCache(ctx context.Context, decisionID string, dbFallback func(ctx context.Context) (*domain.DecisionResults, error)) (*domain.DecisionResults, error) {
	if !c.Enabled() {
		return dbFallback(ctx)
	}
	cacheKey := c.redis.KeyBuilder.KeyDecisionResults(decisionID)

	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var results domain.DecisionResults
		if marshalErr := json.Unmarshal([]byte(cachedData), &results); marshalErr == nil {
			c.logger.Debug("Results cache hit", zap.String("decision_id", decisionID))
			return &results, nil
		} else {
			c.logger.Warn("Results cache corrupted, falling back to database",
				zap.String("decision_id", decisionID),
				zap.Error(marshalErr))
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("Results cache error, falling back to database",
			zap.String("decision_id", decisionID),
			zap.Error(err))
	}

	c.logger.Debug("Results cache miss", zap.String("decision_id", decisionID))
	results, err := dbFallback(ctx)
	if err != nil {
		return nil, err
	}

	go c.cacheResultsAsync(decisionID, results)

	return results, nil
}

// InvalidateResults drops the cached results of a decision
func (c *CacheService) InvalidateResults(ctx context.Context, decisionID string) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyDecisionResults(decisionID)); err != nil {
		c.logger.Error("Failed to invalidate results cache",
			zap.String("decision_id", decisionID),
			zap.Error(err))
		return err
	}
	return nil
}

// Guard is a held cross-instance lock. Release is safe to call once the TTL
// has lapsed; it only deletes the key while it still carries this token.
type Guard struct {
	cache *CacheService
	key   string
	token string
}

// Release frees the guard
func (g *Guard) Release(ctx context.Context) {
	if g == nil || g.cache == nil || !g.cache.Enabled() {
		return
	}
	if _, err := g.cache.redis.Release(ctx, g.key, g.token); err != nil {
		g.cache.logger.Warn("Failed to release guard", zap.String("key", g.key), zap.Error(err))
	}
}

// TryDecisionLock tries to claim the right to lock one decision. It returns
// nil and no error when another instance holds it.
func (c *CacheService) TryDecisionLock(ctx context.Context, decisionID string) (*Guard, error) {
	if !c.Enabled() {
		return &Guard{}, nil
	}
	return c.tryGuard(ctx, c.redis.KeyBuilder.KeyDecisionLock(decisionID), redis.TTLDecisionLock)
}

// TrySweepLeader tries to claim the current sweep pass
func (c *CacheService) TrySweepLeader(ctx context.Context, ttl time.Duration) (*Guard, error) {
	if !c.Enabled() {
		return &Guard{}, nil
	}
	if ttl <= 0 {
		ttl = redis.TTLSweepLeader
	}
	return c.tryGuard(ctx, c.redis.KeyBuilder.KeySweepLeader(), ttl)
}

func (c *CacheService) tryGuard(ctx context.Context, key string, ttl time.Duration) (*Guard, error) {
	token := uuid.NewString()
	ok, err := c.redis.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire guard: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &Guard{cache: c, key: key, token: token}, nil
}

// HealthCheck performs a health check on the cache system
func (c *CacheService) HealthCheck(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}

// cacheResultsAsync caches results asynchronously
func (c *CacheService) cacheResultsAsync(decisionID string, results *domain.DecisionResults) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("Failed to marshal results for caching",
			zap.String("decision_id", decisionID),
			zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyDecisionResults(decisionID), string(data), c.resultsTTL); err != nil {
		c.logger.Error("Failed to cache results",
			zap.String("decision_id", decisionID),
			zap.Error(err))
	} else {
		c.logger.Debug("Results cached successfully", zap.String("decision_id", decisionID))
	}
}
