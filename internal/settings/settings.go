// Package settings manages per-user sync preferences.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSettings wraps validation failures of an update
var ErrInvalidSettings = errors.New("invalid sync settings")

// Update is a partial settings change. Nil fields are left as they are.
type Update struct {
	AutoSyncInvoices    *bool            `json:"autoSyncInvoices"`
	AutoSyncPayments    *bool            `json:"autoSyncPayments"`
	SyncPaymentsFromQB  *bool            `json:"syncPaymentsFromQB"`
	MinInvoiceAmount    *decimal.Decimal `json:"minInvoiceAmount"`
	SyncDraftInvoices   *bool            `json:"syncDraftInvoices"`
	PollIntervalMinutes *int             `json:"pollIntervalMinutes" validate:"omitempty,min=5,max=1440"`
}

// Service reads and writes SyncSettings
type Service struct {
	db       database.DB
	validate *validator.Validate
	logger   logrus.FieldLogger
}

// NewService creates the settings service
func NewService(db database.DB, logger logrus.FieldLogger) *Service {
	return &Service{
		db:       db,
		validate: validator.New(),
		logger:   logger,
	}
}

// Get returns the user's settings, creating the defaults on first access
func (s *Service) Get(ctx context.Context, userID uint) (*models.SyncSettings, error) {
	settings, err := s.db.GetSyncSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync settings: %w", err)
	}
	if settings != nil {
		return settings, nil
	}

	defaults := models.DefaultSyncSettings(userID)
	if err := s.db.CreateSyncSettings(ctx, &defaults); err != nil {
		return nil, fmt.Errorf("failed to create sync settings: %w", err)
	}
	// another request may have created the row first
	settings, err = s.db.GetSyncSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync settings: %w", err)
	}
	if settings == nil {
		return &defaults, nil
	}
	return settings, nil
}

// Update applies a partial change and returns the stored result
func (s *Service) Update(ctx context.Context, userID uint, u Update) (*models.SyncSettings, error) {
	if err := s.validate.Struct(u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if u.MinInvoiceAmount != nil && u.MinInvoiceAmount.IsNegative() {
		return nil, fmt.Errorf("%w: minInvoiceAmount must not be negative", ErrInvalidSettings)
	}

	settings, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.AutoSyncInvoices != nil {
		settings.AutoSyncInvoices = *u.AutoSyncInvoices
	}
	if u.AutoSyncPayments != nil {
		settings.AutoSyncPayments = *u.AutoSyncPayments
	}
	if u.SyncPaymentsFromQB != nil {
		settings.SyncPaymentsFromQB = *u.SyncPaymentsFromQB
	}
	if u.MinInvoiceAmount != nil {
		settings.MinInvoiceAmount = *u.MinInvoiceAmount
	}
	if u.SyncDraftInvoices != nil {
		settings.SyncDraftInvoices = *u.SyncDraftInvoices
	}
	if u.PollIntervalMinutes != nil {
		settings.PollIntervalMinutes = *u.PollIntervalMinutes
	}

	if err := s.db.SaveSyncSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save sync settings: %w", err)
	}
	s.logger.WithField("user_id", userID).Info("sync settings updated")
	return settings, nil
}

// ShouldAutoSync reports whether an entity of entityType should be pushed
// automatically. amount is only consulted for invoices.
func (s *Service) ShouldAutoSync(ctx context.Context, userID uint, entityType string, amount *decimal.Decimal) (bool, error) {
	settings, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}

	switch entityType {
	case models.EntityInvoice:
		if !settings.AutoSyncInvoices {
			return false, nil
		}
		if amount != nil && amount.LessThan(settings.MinInvoiceAmount) {
			return false, nil
		}
		return true, nil
	case models.EntityPayment:
		return settings.AutoSyncPayments, nil
	default:
		return false, nil
	}
}

// RecordPaymentPoll advances the inbound payment watermark
func (s *Service) RecordPaymentPoll(ctx context.Context, userID uint, at time.Time) error {
	if err := s.db.SetLastPaymentPoll(ctx, userID, at); err != nil {
		return fmt.Errorf("failed to record payment poll: %w", err)
	}
	return nil
}

// PollDue reports whether the user's poll interval has elapsed at now
func PollDue(settings *models.SyncSettings, now time.Time) bool {
	if !settings.SyncPaymentsFromQB {
		return false
	}
	if settings.LastPaymentPollAt == nil {
		return true
	}
	interval := time.Duration(settings.PollIntervalMinutes) * time.Minute
	return !settings.LastPaymentPollAt.Add(interval).After(now)
}
