package database

import (
	"context"

	"github.com/eGGnogSC/qbsync/internal/database/models"
)

// SyncLogFilter narrows a history read
type SyncLogFilter struct {
	EntityType string
	EntityID   uint
	Status     string
	Limit      int
}

// CreateSyncLog appends a log row. Rows are never updated.
func (s *Store) CreateSyncLog(ctx context.Context, entry *models.SyncLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListSyncLogs returns matching rows newest first
func (s *Store) ListSyncLogs(ctx context.Context, userID uint, filter SyncLogFilter) ([]models.SyncLog, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != 0 {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var logs []models.SyncLog
	if err := q.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// LatestSyncLog returns the most recent attempt for one entity, or nil
func (s *Store) LatestSyncLog(ctx context.Context, userID uint, entityType string, entityID uint) (*models.SyncLog, error) {
	var entry models.SyncLog
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND entity_type = ? AND entity_id = ?", userID, entityType, entityID).
		Order("created_at DESC, id DESC")
	found, err := first(q, &entry)
	if err != nil || !found {
		return nil, err
	}
	return &entry, nil
}
