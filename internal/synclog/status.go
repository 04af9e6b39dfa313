package synclog

import (
	"context"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database/models"
)

// BatchResult summarizes a sequential batch run. One entity failing never
// stops the batch; its error is collected instead.
type BatchResult struct {
	Total  int      `json:"total"`
	Synced int      `json:"synced"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// Status describes where one local entity stands with QuickBooks
type Status struct {
	Synced        bool       `json:"synced"`
	QBID          string     `json:"qbId,omitempty"`
	SyncVersion   int        `json:"syncVersion,omitempty"`
	LastSyncedAt  *time.Time `json:"lastSyncedAt,omitempty"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	LastStatus    string     `json:"lastStatus,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// WithLastAttempt fills the last-attempt fields from the newest log row for the entity
func (r *Recorder) WithLastAttempt(ctx context.Context, userID uint, entityType string, entityID uint, status *Status) (*Status, error) {
	entry, err := r.db.LatestSyncLog(ctx, userID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		at := entry.CreatedAt
		status.LastAttemptAt = &at
		status.LastStatus = entry.Status
		if entry.Status == models.SyncStatusFailed && entry.ErrorMessage != nil {
			status.LastError = *entry.ErrorMessage
		}
	}
	return status, nil
}
