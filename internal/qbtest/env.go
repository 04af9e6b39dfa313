package qbtest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// UserID is the user every Env is connected as
const UserID uint = 1

// Env wires a fake QuickBooks company, an in-memory database, the auth service
// and the API client together
type Env struct {
	Server *Server
	Store  *database.Store
	Config config.QuickBooksConfig
	Auth   *auth.Service
	QB     *qbclient.Client
	Logger *logrus.Logger
}

// NewLogger returns a logger that discards output
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// NewStore opens a private in-memory SQLite database with every table migrated
func NewStore(t testing.TB) *database.Store {
	t.Helper()
	store, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// QuickBooksConfig points every vendor endpoint at srv
func QuickBooksConfig(srv *Server) config.QuickBooksConfig {
	cfg := config.DefaultQuickBooksConfig()
	cfg.ClientID = ClientID
	cfg.ClientSecret = ClientSecret
	cfg.RedirectURI = "http://localhost:8080/auth/quickbooks/callback"
	cfg.AuthURL = srv.URL + "/connect/oauth2"
	cfg.TokenURL = srv.URL + "/oauth2/v1/tokens/bearer"
	cfg.RevokeURL = srv.URL + "/oauth2/v1/tokens/revoke"
	cfg.SandboxAPIBaseURL = srv.URL
	cfg.ProductionAPIBaseURL = srv.URL
	return cfg
}

// NewEnv builds an Env with UserID already connected
func NewEnv(t testing.TB) *Env {
	t.Helper()
	srv := NewServer(t)
	store := NewStore(t)
	logger := NewLogger()
	cfg := QuickBooksConfig(srv)

	authService, err := auth.NewService(cfg, store, nil, logger)
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	env := &Env{
		Server: srv,
		Store:  store,
		Config: cfg,
		Auth:   authService,
		QB:     qbclient.NewClient(cfg, authService, logger),
		Logger: logger,
	}
	env.Connect(t, UserID)
	return env
}

// Connect stores an active connection for userID with a token valid for an hour
func (e *Env) Connect(t testing.TB, userID uint) *models.QuickBooksConnection {
	t.Helper()
	access := "seed-access-" + uuid.NewString()
	refresh := "seed-refresh-" + uuid.NewString()
	e.Server.RegisterTokens(access, refresh)

	conn := &models.QuickBooksConnection{
		UserID:                userID,
		RealmID:               RealmID,
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  time.Now().Add(time.Hour),
		RefreshTokenExpiresAt: time.Now().Add(100 * 24 * time.Hour),
		Environment:           config.EnvironmentSandbox,
		IsActive:              true,
	}
	if err := e.Store.UpsertConnection(context.Background(), conn); err != nil {
		t.Fatalf("failed to seed connection: %v", err)
	}
	return conn
}

// SeedClient inserts a client for UserID unless another user is set
func (e *Env) SeedClient(t testing.TB, c models.Client) models.Client {
	t.Helper()
	if c.UserID == 0 {
		c.UserID = UserID
	}
	if err := e.Store.Gorm().Create(&c).Error; err != nil {
		t.Fatalf("failed to seed client: %v", err)
	}
	return c
}

// SeedInvoice inserts an invoice with its line items. Totals are derived from
// the lines when not set.
func (e *Env) SeedInvoice(t testing.TB, inv models.Invoice) models.Invoice {
	t.Helper()
	if inv.UserID == 0 {
		inv.UserID = UserID
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusSent
	}
	if inv.IssueDate.IsZero() {
		inv.IssueDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	}
	if inv.Total.IsZero() {
		total := decimal.Zero
		for i, line := range inv.LineItems {
			amount := line.Quantity.Mul(line.Rate)
			inv.LineItems[i].Amount = amount
			total = total.Add(amount)
		}
		inv.Subtotal = total
		inv.Total = total
	}
	if err := e.Store.Gorm().Create(&inv).Error; err != nil {
		t.Fatalf("failed to seed invoice: %v", err)
	}
	return inv
}

// SeedPayment inserts a local payment
func (e *Env) SeedPayment(t testing.TB, p models.Payment) models.Payment {
	t.Helper()
	if p.UserID == 0 {
		p.UserID = UserID
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusCompleted
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = models.PaymentMethodManual
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	}
	if err := e.Store.Gorm().Create(&p).Error; err != nil {
		t.Fatalf("failed to seed payment: %v", err)
	}
	return p
}

// Money parses a decimal literal
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
