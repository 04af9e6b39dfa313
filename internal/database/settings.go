package database

import (
	"context"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database/models"
	"gorm.io/gorm/clause"
)

// GetSyncSettings returns the stored settings, or nil when the user has none yet
func (s *Store) GetSyncSettings(ctx context.Context, userID uint) (*models.SyncSettings, error) {
	var settings models.SyncSettings
	found, err := first(s.db.WithContext(ctx).Where("user_id = ?", userID), &settings)
	if err != nil || !found {
		return nil, err
	}
	return &settings, nil
}

// CreateSyncSettings inserts settings, leaving an existing row untouched
func (s *Store) CreateSyncSettings(ctx context.Context, settings *models.SyncSettings) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(settings).Error
}

// SaveSyncSettings writes the user-editable columns of an existing row.
// The payment watermark is only moved by SetLastPaymentPoll.
func (s *Store) SaveSyncSettings(ctx context.Context, settings *models.SyncSettings) error {
	return s.db.WithContext(ctx).Omit("last_payment_poll_at").Save(settings).Error
}

// SetLastPaymentPoll advances the inbound payment watermark
func (s *Store) SetLastPaymentPoll(ctx context.Context, userID uint, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncSettings{}).
		Where("user_id = ?", userID).
		Update("last_payment_poll_at", at).Error
}
