package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a local entity does not exist for the user
var ErrNotFound = errors.New("record not found")

// DB is the persistence surface used by the sync services
type DB interface {
	WithTx(ctx context.Context, fn func(tx DB) error) error

	GetConnection(ctx context.Context, userID uint) (*models.QuickBooksConnection, error)
	UpsertConnection(ctx context.Context, conn *models.QuickBooksConnection) error
	UpdateConnectionTokens(ctx context.Context, userID uint, accessToken, refreshToken string, accessExpiresAt, refreshExpiresAt time.Time) error
	DeactivateConnection(ctx context.Context, userID uint) error
	TouchConnection(ctx context.Context, userID uint, at time.Time) error
	ListActiveConnections(ctx context.Context) ([]models.QuickBooksConnection, error)

	GetClient(ctx context.Context, userID, clientID uint) (*models.Client, error)
	ListClients(ctx context.Context, userID uint) ([]models.Client, error)
	GetInvoice(ctx context.Context, userID, invoiceID uint) (*models.Invoice, error)
	ListInvoices(ctx context.Context, userID uint, includeDrafts bool) ([]models.Invoice, error)
	GetPayment(ctx context.Context, userID, paymentID uint) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdateInvoicePayment(ctx context.Context, invoiceID uint, amountPaid decimal.Decimal, status string, paidAt *time.Time) error

	GetCustomerMapping(ctx context.Context, userID, clientID uint) (*models.CustomerMapping, error)
	CreateCustomerMapping(ctx context.Context, m *models.CustomerMapping) error
	BumpCustomerMapping(ctx context.Context, id uint, displayName string, at time.Time) error
	GetInvoiceMapping(ctx context.Context, userID, invoiceID uint) (*models.InvoiceMapping, error)
	GetInvoiceMappingByQBID(ctx context.Context, userID uint, qbInvoiceID string) (*models.InvoiceMapping, error)
	CreateInvoiceMapping(ctx context.Context, m *models.InvoiceMapping) error
	BumpInvoiceMapping(ctx context.Context, id uint, docNumber string, at time.Time) error
	GetPaymentMapping(ctx context.Context, userID, paymentID uint) (*models.PaymentMapping, error)
	GetPaymentMappingByQBID(ctx context.Context, userID uint, qbPaymentID string) (*models.PaymentMapping, error)
	CreatePaymentMapping(ctx context.Context, m *models.PaymentMapping) error

	CreateSyncLog(ctx context.Context, entry *models.SyncLog) error
	ListSyncLogs(ctx context.Context, userID uint, filter SyncLogFilter) ([]models.SyncLog, error)
	LatestSyncLog(ctx context.Context, userID uint, entityType string, entityID uint) (*models.SyncLog, error)

	GetSyncSettings(ctx context.Context, userID uint) (*models.SyncSettings, error)
	CreateSyncSettings(ctx context.Context, s *models.SyncSettings) error
	SaveSyncSettings(ctx context.Context, s *models.SyncSettings) error
	SetLastPaymentPoll(ctx context.Context, userID uint, at time.Time) error
}

// Config selects the dialect and pool sizing for Open
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Tracing         bool
	// Logger receives gorm's error and slow-query lines; stdout when nil
	Logger gormlogger.Writer
}

// Store implements DB on gorm
type Store struct {
	db *gorm.DB
}

// Open connects, tunes the pool and migrates every model
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(cfg.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Tracing {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY and keeps in-memory databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// newGormLogger reports errors and queries slower than a second.
// Lookups that find nothing are expected and stay quiet.
func newGormLogger(w gormlogger.Writer) gormlogger.Interface {
	if w == nil {
		w = log.New(os.Stdout, "\r\n", log.LstdFlags)
	}
	return gormlogger.New(w, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Error,
		IgnoreRecordNotFoundError: true,
	})
}

// NewStore wraps an existing gorm handle
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Gorm exposes the underlying handle for fixtures and the seeder
func (s *Store) Gorm() *gorm.DB {
	return s.db
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a transaction
func (s *Store) WithTx(ctx context.Context, fn func(tx DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// first loads one row into dest, returning (false, nil) when no row matches
func first(q *gorm.DB, dest any) (bool, error) {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
