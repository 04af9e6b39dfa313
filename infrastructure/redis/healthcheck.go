// infrastructure/redis/healthcheck.go
package redis

import (
	"context"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// HealthChecker tracks whether Redis answers PING. After three consecutive
// failures the breaker opens and checks fail fast for 30 seconds.
type HealthChecker struct {
	client         goredis.UniversalClient
	circuitBreaker *gobreaker.CircuitBreaker
	status         bool
	mu             sync.RWMutex
	checkInterval  time.Duration
	logger         logrus.FieldLogger
}

// NewHealthChecker creates a new Redis health checker
func NewHealthChecker(client goredis.UniversalClient, checkInterval time.Duration, logger logrus.FieldLogger) *HealthChecker {
	logger = logger.WithField("module", "redis")
	settings := gobreaker.Settings{
		Name:        "redis-circuit-breaker",
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("redis circuit breaker state changed")
		},
	}

	return &HealthChecker{
		client:         client,
		circuitBreaker: gobreaker.NewCircuitBreaker(settings),
		checkInterval:  checkInterval,
		logger:         logger,
	}
}

// IsHealthy returns the result of the last check
func (h *HealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Check pings Redis through the breaker and stores the result
func (h *HealthChecker) Check(ctx context.Context) bool {
	result, err := h.circuitBreaker.Execute(func() (interface{}, error) {
		return h.client.Ping(ctx).Result()
	})

	isHealthy := err == nil && result.(string) == "PONG"

	h.mu.Lock()
	changed := h.status != isHealthy
	h.status = isHealthy
	h.mu.Unlock()

	if changed {
		h.logger.WithField("healthy", isHealthy).Info("redis health changed")
	}
	return isHealthy
}

// Start checks once right away, then on every interval until ctx is done
func (h *HealthChecker) Start(ctx context.Context) {
	h.checkWithTimeout(ctx)
	go func() {
		ticker := time.NewTicker(h.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.checkWithTimeout(ctx)
			}
		}
	}()
}

func (h *HealthChecker) checkWithTimeout(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	h.Check(ctx)
}
