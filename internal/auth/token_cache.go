// auth/token_cache.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned when no usable token is cached
var ErrCacheMiss = errors.New("token cache miss")

// TokenCache keeps recently used access tokens out of the database path
type TokenCache interface {
	Get(ctx context.Context, userID uint) (*AccessToken, error)
	Set(ctx context.Context, userID uint, token *AccessToken) error
	Delete(ctx context.Context, userID uint) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, uint) (*AccessToken, error) { return nil, ErrCacheMiss }
func (noopCache) Set(context.Context, uint, *AccessToken) error   { return nil }
func (noopCache) Delete(context.Context, uint) error              { return nil }

// RedisTokenCache implements TokenCache using Redis
type RedisTokenCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTokenCache creates a new Redis-backed token cache
func NewRedisTokenCache(client redis.UniversalClient, prefix string) *RedisTokenCache {
	return &RedisTokenCache{
		client: client,
		prefix: prefix,
	}
}

// key generates the Redis key for a user's token
func (c *RedisTokenCache) key(userID uint) string {
	return fmt.Sprintf("%s:qb_token:%d", c.prefix, userID)
}

// Set stores a token until it expires
func (c *RedisTokenCache) Set(ctx context.Context, userID uint, token *AccessToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := c.client.Set(ctx, c.key(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Get retrieves a token for a user
func (c *RedisTokenCache) Get(ctx context.Context, userID uint) (*AccessToken, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// Delete removes a user's token
func (c *RedisTokenCache) Delete(ctx context.Context, userID uint) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
