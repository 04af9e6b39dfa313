// infrastructure/redis/client.go
package redis

import (
	"crypto/tls"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	goredis "github.com/go-redis/redis/v8"
)

// PoolConfig holds connection pool and timeout settings
type PoolConfig struct {
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	MaxConnAge      time.Duration
	PoolTimeout     time.Duration
	IdleTimeout     time.Duration
}

// DefaultPoolConfig suits a token cache: few connections, short timeouts
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxConnAge:      30 * time.Minute,
		PoolTimeout:     4 * time.Second,
		IdleTimeout:     5 * time.Minute,
	}
}

// NewClient creates a Redis client for the configured addresses. More than
// one address selects a cluster client.
func NewClient(cfg config.RedisConfig, pool PoolConfig) goredis.UniversalClient {
	opts := &goredis.UniversalOptions{
		Addrs:           cfg.Addresses,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      pool.MaxRetries,
		MinRetryBackoff: pool.MinRetryBackoff,
		MaxRetryBackoff: pool.MaxRetryBackoff,
		DialTimeout:     pool.DialTimeout,
		ReadTimeout:     pool.ReadTimeout,
		WriteTimeout:    pool.WriteTimeout,
		PoolSize:        pool.PoolSize,
		MinIdleConns:    pool.MinIdleConns,
		MaxConnAge:      pool.MaxConnAge,
		PoolTimeout:     pool.PoolTimeout,
		IdleTimeout:     pool.IdleTimeout,
	}
	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return goredis.NewUniversalClient(opts)
}
