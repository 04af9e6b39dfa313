// infrastructure/container.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/infrastructure/redis"
	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/customer"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/invoice"
	"github.com/eGGnogSC/qbsync/internal/payment"
	"github.com/eGGnogSC/qbsync/internal/scheduler"
	"github.com/eGGnogSC/qbsync/internal/settings"
	"github.com/eGGnogSC/qbsync/internal/synclog"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/eGGnogSC/qbsync/routes"
	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
)

const (
	redisCheckInterval     = 30 * time.Second
	tokenReplicateInterval = time.Minute
)

// Container provides application dependencies
type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	// Services
	AuthService     *auth.Service
	CustomerService *customer.Service
	InvoiceService  *invoice.Service
	PaymentService  *payment.Service
	SettingsService *settings.Service
	Recorder        *synclog.Recorder
	Scheduler       *scheduler.Service

	// Handlers
	AuthHandler     *auth.Handler
	CustomerHandler *customer.Handler
	InvoiceHandler  *invoice.Handler
	PaymentHandler  *payment.Handler
	SettingsHandler *settings.Handler
	HistoryHandler  *synclog.Handler
	Users           *auth.UserMiddleware

	// Infrastructure
	Store       *database.Store
	RedisClient goredis.UniversalClient
	RedisHealth *redis.HealthChecker
	TokenCache  auth.TokenCache
	QBClient    *qbclient.Client

	cancel context.CancelFunc
}

// NewContainer creates and initializes the dependency container. Background
// routines it starts run until Shutdown.
func NewContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	bg, cancel := context.WithCancel(context.Background())
	c := &Container{Config: cfg, Logger: logger, cancel: cancel}

	store, err := database.Open(database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Tracing:         cfg.Database.Tracing,
		Logger:          logger.WithField("component", "gorm"),
	})
	if err != nil {
		cancel()
		return nil, err
	}
	c.Store = store

	if cfg.Redis.Enabled() {
		c.RedisClient = redis.NewClient(cfg.Redis, redis.DefaultPoolConfig())
		c.RedisHealth = redis.NewHealthChecker(c.RedisClient, redisCheckInterval, logger)
		c.RedisHealth.Start(bg)

		fallback := auth.NewFallbackTokenCache(c.RedisClient, cfg.Redis.KeyPrefix, c.RedisHealth.IsHealthy, logger)
		fallback.StartReplicationRoutine(bg, tokenReplicateInterval)
		c.TokenCache = fallback
	}

	c.AuthService, err = auth.NewService(cfg.QuickBooks, store, c.TokenCache, logger)
	var tokens qbclient.TokenProvider
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		logger.Warn("QuickBooks credentials missing; sync endpoints will report not configured")
	case err != nil:
		c.Shutdown()
		return nil, err
	default:
		tokens = c.AuthService
	}
	c.QBClient = qbclient.NewClient(cfg.QuickBooks, tokens, logger)

	c.Recorder = synclog.NewRecorder(store, logger)
	c.SettingsService = settings.NewService(store, logger)
	c.CustomerService = customer.NewService(store, c.QBClient, c.Recorder, logger)
	c.InvoiceService = invoice.NewService(store, c.QBClient, c.CustomerService, c.SettingsService, c.Recorder, cfg.QuickBooks, logger)
	c.PaymentService = payment.NewService(store, c.QBClient, c.SettingsService, c.Recorder, logger)
	c.Scheduler = scheduler.NewService(store, c.SettingsService, c.PaymentService, cfg.Sync.PaymentPollTick, logger)

	secret := []byte(cfg.Auth.SessionSecret)
	if len(secret) == 0 {
		logger.Warn("SESSION_SECRET not set; OAuth sessions will not survive a restart")
		secret = securecookie.GenerateRandomKey(32)
	}
	c.AuthHandler = auth.NewHandler(c.AuthService, auth.NewSessionStore(secret, cfg.Auth.SecureCookies), logger)
	c.Users, err = auth.NewUserMiddleware(ctx, cfg.Auth.JWKSURL)
	if err != nil {
		c.Shutdown()
		return nil, err
	}

	c.CustomerHandler = customer.NewHandler(c.CustomerService)
	c.InvoiceHandler = invoice.NewHandler(c.InvoiceService)
	c.PaymentHandler = payment.NewHandler(c.PaymentService)
	c.SettingsHandler = settings.NewHandler(c.SettingsService)
	c.HistoryHandler = synclog.NewHandler(c.Recorder)

	return c, nil
}

// Router builds the HTTP handler for every route
func (c *Container) Router() http.Handler {
	var redisHealth routes.HealthChecker
	if c.RedisHealth != nil {
		redisHealth = c.RedisHealth
	}

	router := mux.NewRouter()
	routes.SetupRoutes(router, routes.Dependencies{
		AuthHandler:     c.AuthHandler,
		AuthService:     c.AuthService,
		Users:           c.Users,
		CustomerHandler: c.CustomerHandler,
		InvoiceHandler:  c.InvoiceHandler,
		PaymentHandler:  c.PaymentHandler,
		SettingsHandler: c.SettingsHandler,
		HistoryHandler:  c.HistoryHandler,
		Health:          routes.NewHealthHandler(c.Store, redisHealth),
		Logger:          c.Logger,
	})
	return router
}

// StartScheduler starts the payment poller when it is enabled and QuickBooks is configured
func (c *Container) StartScheduler() error {
	if !c.Config.Sync.PaymentPollEnabled || c.AuthService == nil {
		c.Logger.Info("payment poller disabled")
		return nil
	}
	if err := c.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Shutdown stops background work and closes connections
func (c *Container) Shutdown() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	c.cancel()
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			config.LogError(c.Logger, "infrastructure", "Shutdown", "close redis", nil, err)
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			config.LogError(c.Logger, "infrastructure", "Shutdown", "close database", nil, err)
		}
	}
}
