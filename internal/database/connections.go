package database

import (
	"context"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database/models"
	"gorm.io/gorm/clause"
)

// GetConnection returns the user's connection, or nil when none was ever created
func (s *Store) GetConnection(ctx context.Context, userID uint) (*models.QuickBooksConnection, error) {
	var conn models.QuickBooksConnection
	found, err := first(s.db.WithContext(ctx).Where("user_id = ?", userID), &conn)
	if err != nil || !found {
		return nil, err
	}
	return &conn, nil
}

// UpsertConnection inserts or replaces the user's single connection row
func (s *Store) UpsertConnection(ctx context.Context, conn *models.QuickBooksConnection) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"realm_id",
				"access_token",
				"refresh_token",
				"access_token_expires_at",
				"refresh_token_expires_at",
				"environment",
				"is_active",
				"updated_at",
			}),
		}).
		Create(conn).Error
}

// UpdateConnectionTokens stores a refreshed token pair
func (s *Store) UpdateConnectionTokens(ctx context.Context, userID uint, accessToken, refreshToken string, accessExpiresAt, refreshExpiresAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.QuickBooksConnection{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"access_token":             accessToken,
			"refresh_token":            refreshToken,
			"access_token_expires_at":  accessExpiresAt,
			"refresh_token_expires_at": refreshExpiresAt,
		}).Error
}

// DeactivateConnection soft-disables the connection, keeping its history
func (s *Store) DeactivateConnection(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.QuickBooksConnection{}).
		Where("user_id = ?", userID).
		Update("is_active", false).Error
}

// TouchConnection records the time of the last successful sync
func (s *Store) TouchConnection(ctx context.Context, userID uint, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.QuickBooksConnection{}).
		Where("user_id = ?", userID).
		Update("last_sync_at", at).Error
}

// ListActiveConnections returns every active connection
func (s *Store) ListActiveConnections(ctx context.Context) ([]models.QuickBooksConnection, error) {
	var conns []models.QuickBooksConnection
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("user_id").
		Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}
