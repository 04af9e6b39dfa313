// auth/token_cache_fallback.go
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// FallbackTokenCache keeps a local copy of every token so lookups survive a Redis outage
type FallbackTokenCache struct {
	redisCache  *RedisTokenCache
	localCache  map[uint]*AccessToken
	cacheMutex  sync.RWMutex
	healthCheck func() bool
	logger      logrus.FieldLogger
}

// NewFallbackTokenCache creates a token cache with Redis and local fallback
func NewFallbackTokenCache(redisClient redis.UniversalClient, prefix string, healthCheck func() bool, logger logrus.FieldLogger) *FallbackTokenCache {
	return &FallbackTokenCache{
		redisCache:  NewRedisTokenCache(redisClient, prefix),
		localCache:  make(map[uint]*AccessToken),
		healthCheck: healthCheck,
		logger:      logger,
	}
}

// Set stores a token locally and, when Redis is healthy, in Redis
func (c *FallbackTokenCache) Set(ctx context.Context, userID uint, token *AccessToken) error {
	c.cacheMutex.Lock()
	c.localCache[userID] = token
	c.cacheMutex.Unlock()

	if c.healthCheck() {
		if err := c.redisCache.Set(ctx, userID, token); err != nil {
			c.logger.WithField("user_id", userID).WithError(err).Warn("failed to save token to Redis")
		}
	}
	return nil
}

// Get tries Redis first and uses the local copy only when Redis cannot answer.
// A miss from a healthy Redis means another instance evicted the token, so the
// local copy is dropped too.
func (c *FallbackTokenCache) Get(ctx context.Context, userID uint) (*AccessToken, error) {
	if c.healthCheck() {
		token, err := c.redisCache.Get(ctx, userID)
		if err == nil {
			c.cacheMutex.Lock()
			c.localCache[userID] = token
			c.cacheMutex.Unlock()
			return token, nil
		}
		if errors.Is(err, ErrCacheMiss) {
			c.cacheMutex.Lock()
			delete(c.localCache, userID)
			c.cacheMutex.Unlock()
			return nil, ErrCacheMiss
		}
		c.logger.WithField("user_id", userID).WithError(err).Warn("failed to get token from Redis")
	}

	c.cacheMutex.RLock()
	token, exists := c.localCache[userID]
	c.cacheMutex.RUnlock()

	if !exists {
		return nil, ErrCacheMiss
	}
	if !time.Now().Before(token.ExpiresAt) {
		c.cacheMutex.Lock()
		delete(c.localCache, userID)
		c.cacheMutex.Unlock()
		return nil, ErrCacheMiss
	}
	return token, nil
}

// Delete removes a token from both stores
func (c *FallbackTokenCache) Delete(ctx context.Context, userID uint) error {
	c.cacheMutex.Lock()
	delete(c.localCache, userID)
	c.cacheMutex.Unlock()

	if c.healthCheck() {
		if err := c.redisCache.Delete(ctx, userID); err != nil {
			c.logger.WithField("user_id", userID).WithError(err).Warn("failed to delete token from Redis")
		}
	}
	return nil
}

// StartReplicationRoutine periodically copies unexpired local tokens back to Redis
func (c *FallbackTokenCache) StartReplicationRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.replicate(ctx)
			}
		}
	}()
}

func (c *FallbackTokenCache) replicate(ctx context.Context) {
	if !c.healthCheck() {
		return
	}

	now := time.Now()
	c.cacheMutex.Lock()
	pending := make(map[uint]*AccessToken, len(c.localCache))
	for id, token := range c.localCache {
		if now.Before(token.ExpiresAt) {
			pending[id] = token
		} else {
			delete(c.localCache, id)
		}
	}
	c.cacheMutex.Unlock()

	for id, token := range pending {
		if err := c.redisCache.Set(ctx, id, token); err != nil {
			c.logger.WithField("user_id", id).WithError(err).Warn("token replication failed")
		}
	}
}
