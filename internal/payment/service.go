// internal/payment/service.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/settings"
	"github.com/eGGnogSC/qbsync/internal/synclog"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/sirupsen/logrus"
)

var (
	// ErrPaymentNotFound is returned when the payment does not exist for the user
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrInvoiceNotSynced means the payment's invoice has no QuickBooks counterpart yet
	ErrInvoiceNotSynced = errors.New("invoice not synced to QuickBooks")
)

const (
	dateLayout     = "2006-01-02"
	maxPrivateNote = 4000
)

// Result describes one outbound payment sync
type Result struct {
	PaymentID     uint   `json:"paymentId"`
	QBPaymentID   string `json:"qbPaymentId"`
	QBInvoiceID   string `json:"qbInvoiceId"`
	AlreadySynced bool   `json:"alreadySynced,omitempty"`
}

// Service moves payments between the local store and QuickBooks in both directions
type Service struct {
	db       database.DB
	qb       *qbclient.Client
	settings *settings.Service
	recorder *synclog.Recorder
	logger   logrus.FieldLogger
}

// NewService creates a new payment sync service
func NewService(db database.DB, qb *qbclient.Client, settings *settings.Service, recorder *synclog.Recorder, logger logrus.FieldLogger) *Service {
	return &Service{
		db:       db,
		qb:       qb,
		settings: settings,
		recorder: recorder,
		logger:   logger.WithField("module", "payment"),
	}
}

// SyncPayment pushes a local payment to QuickBooks, applied to the invoice it
// settles. The invoice must already be synced. Payments are never updated in
// QuickBooks once pushed.
func (s *Service) SyncPayment(ctx context.Context, userID, paymentID uint) (*Result, error) {
	p, err := s.db.GetPayment(ctx, userID, paymentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	entry := synclog.Entry{
		UserID:     userID,
		EntityType: models.EntityPayment,
		EntityID:   p.ID,
		Action:     models.ActionCreate,
	}

	invMapping, err := s.db.GetInvoiceMapping(ctx, userID, p.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice mapping: %w", err)
	}
	if invMapping == nil {
		err := fmt.Errorf("%w: sync invoice %d before its payments", ErrInvoiceNotSynced, p.InvoiceID)
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, err
	}

	existing, err := s.db.GetPaymentMapping(ctx, userID, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment mapping: %w", err)
	}
	if existing != nil {
		return &Result{
			PaymentID:     p.ID,
			QBPaymentID:   existing.QBPaymentID,
			QBInvoiceID:   invMapping.QBInvoiceID,
			AlreadySynced: true,
		}, nil
	}

	qbInvoice, err := qbclient.Get[qbclient.Invoice](ctx, s.qb, userID, qbclient.EntityInvoice, invMapping.QBInvoiceID)
	if err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to fetch QuickBooks invoice %s: %w", invMapping.QBInvoiceID, err)
	}
	if qbInvoice.CustomerRef == nil || qbInvoice.CustomerRef.Value == "" {
		err := fmt.Errorf("QuickBooks invoice %s has no customer", invMapping.QBInvoiceID)
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, err
	}

	amount := p.Amount.Round(2).InexactFloat64()
	payload := qbclient.Payment{
		CustomerRef: &qbclient.Ref{Value: qbInvoice.CustomerRef.Value},
		TotalAmt:    amount,
		TxnDate:     p.PaymentDate.Format(dateLayout),
		PrivateNote: qbclient.Truncate(p.Notes, maxPrivateNote),
		Line: []qbclient.Line{{
			Amount:    amount,
			LinkedTxn: []qbclient.LinkedTxn{{TxnID: qbInvoice.ID, TxnType: qbclient.EntityInvoice}},
		}},
	}
	entry.Request = payload

	created, err := qbclient.Create[qbclient.Payment](ctx, s.qb, userID, qbclient.EntityPayment, payload)
	if err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to create QuickBooks payment: %w", err)
	}
	entry.QBEntityID = created.ID
	entry.Response = created

	now := time.Now().UTC()
	mapping := &models.PaymentMapping{
		UserID:        userID,
		PaymentID:     p.ID,
		QBPaymentID:   created.ID,
		SyncDirection: models.DirectionToQB,
		LastSyncedAt:  now,
	}
	if err := s.db.CreatePaymentMapping(ctx, mapping); err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to save payment mapping: %w", err)
	}
	s.recorder.Record(ctx, entry)
	s.touch(ctx, userID, now)

	return &Result{
		PaymentID:   p.ID,
		QBPaymentID: created.ID,
		QBInvoiceID: qbInvoice.ID,
	}, nil
}

// GetPaymentSyncStatus reports the mapping and last attempt for a payment
func (s *Service) GetPaymentSyncStatus(ctx context.Context, userID, paymentID uint) (*synclog.Status, error) {
	mapping, err := s.db.GetPaymentMapping(ctx, userID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment mapping: %w", err)
	}
	status := &synclog.Status{}
	if mapping != nil {
		at := mapping.LastSyncedAt
		status.Synced = true
		status.QBID = mapping.QBPaymentID
		status.SyncVersion = 1
		status.LastSyncedAt = &at
	}
	return s.recorder.WithLastAttempt(ctx, userID, models.EntityPayment, paymentID, status)
}

func (s *Service) touch(ctx context.Context, userID uint, at time.Time) {
	if err := s.db.TouchConnection(ctx, userID, at); err != nil {
		config.LogError(s.logger, "payment", "touch", "update last sync time", map[string]any{"user_id": userID}, err)
	}
}
