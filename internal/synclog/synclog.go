// Package synclog records every sync attempt and serves the history.
package synclog

import (
	"context"
	"encoding/json"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/metrics"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Entry describes one sync attempt
type Entry struct {
	UserID     uint
	EntityType string
	EntityID   uint
	QBEntityID string
	Action     string
	Err        error
	Request    any
	Response   any
}

// Recorder appends sync attempts to the log
type Recorder struct {
	db     database.DB
	logger logrus.FieldLogger
}

// NewRecorder creates a sync log recorder
func NewRecorder(db database.DB, logger logrus.FieldLogger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// Record writes one row. A failure to write is logged, never returned, so an
// audit problem cannot turn a successful sync into a failed one.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	entry := &models.SyncLog{
		UserID:          e.UserID,
		EntityType:      e.EntityType,
		EntityID:        e.EntityID,
		Action:          e.Action,
		Status:          models.SyncStatusSuccess,
		RequestPayload:  encode(e.Request),
		ResponsePayload: encode(e.Response),
	}
	if e.QBEntityID != "" {
		qbID := e.QBEntityID
		entry.QBEntityID = &qbID
	}
	if e.Err != nil {
		msg := e.Err.Error()
		entry.Status = models.SyncStatusFailed
		entry.ErrorMessage = &msg
	}

	metrics.SyncOperations.WithLabelValues(e.EntityType, e.Action, entry.Status).Inc()

	if err := r.db.CreateSyncLog(ctx, entry); err != nil {
		config.LogError(r.logger, "synclog", "Record", "insert sync log", map[string]any{
			"user_id":   e.UserID,
			"entity":    e.EntityType,
			"entity_id": e.EntityID,
		}, err)
	}
}

// Filter narrows History
type Filter struct {
	EntityType string
	EntityID   uint
	Status     string
	Limit      int
}

// History returns the user's most recent sync attempts, newest first
func (r *Recorder) History(ctx context.Context, userID uint, f Filter) ([]models.SyncLog, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return r.db.ListSyncLogs(ctx, userID, database.SyncLogFilter{
		EntityType: f.EntityType,
		EntityID:   f.EntityID,
		Status:     f.Status,
		Limit:      limit,
	})
}

func encode(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return nil
		}
		return datatypes.JSON(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
