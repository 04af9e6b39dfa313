// internal/invoice/service.go
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/customer"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/metrics"
	"github.com/eGGnogSC/qbsync/internal/settings"
	"github.com/eGGnogSC/qbsync/internal/synclog"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvoiceNotFound is returned when the invoice does not exist for the user
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvoiceHasNoClient means there is no customer to bill in QuickBooks
	ErrInvoiceHasNoClient = errors.New("invoice has no client")
)

// CustomerSyncer pushes the client an invoice is billed to
type CustomerSyncer interface {
	SyncClient(ctx context.Context, userID, clientID uint) (*customer.Result, error)
}

// Result describes one invoice sync
type Result struct {
	InvoiceID    uint   `json:"invoiceId"`
	QBInvoiceID  string `json:"qbInvoiceId"`
	QBDocNumber  string `json:"qbDocNumber,omitempty"`
	QBCustomerID string `json:"qbCustomerId"`
	Action       string `json:"action"`
	SyncVersion  int    `json:"syncVersion"`
}

// Service pushes local invoices to QuickBooks
type Service struct {
	db        database.DB
	qb        *qbclient.Client
	customers CustomerSyncer
	settings  *settings.Service
	recorder  *synclog.Recorder
	item      qbclient.Ref
	logger    logrus.FieldLogger
}

// NewService creates a new invoice sync service. Every line is booked against
// the configured default item.
func NewService(db database.DB, qb *qbclient.Client, customers CustomerSyncer, settings *settings.Service, recorder *synclog.Recorder, cfg config.QuickBooksConfig, logger logrus.FieldLogger) *Service {
	return &Service{
		db:        db,
		qb:        qb,
		customers: customers,
		settings:  settings,
		recorder:  recorder,
		item:      qbclient.Ref{Value: cfg.DefaultItemID, Name: cfg.DefaultItemName},
		logger:    logger.WithField("module", "invoice"),
	}
}

// SyncInvoice creates or updates the QuickBooks invoice for one local invoice,
// syncing its client first when the client has never been pushed.
func (s *Service) SyncInvoice(ctx context.Context, userID, invoiceID uint) (*Result, error) {
	inv, err := s.db.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrInvoiceNotFound, invoiceID)
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv.ClientID == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvoiceHasNoClient, invoiceID)
	}

	mapping, err := s.db.GetInvoiceMapping(ctx, userID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice mapping: %w", err)
	}
	action := models.ActionCreate
	if mapping != nil {
		action = models.ActionUpdate
	}
	entry := synclog.Entry{
		UserID:     userID,
		EntityType: models.EntityInvoice,
		EntityID:   invoiceID,
		Action:     action,
	}
	if mapping != nil {
		entry.QBEntityID = mapping.QBInvoiceID
	}

	customerID, err := s.customerID(ctx, userID, *inv.ClientID)
	if err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, err
	}

	payload := invoicePayload(inv, customerID, s.item)
	if mapping != nil {
		return s.update(ctx, userID, inv, mapping, payload, entry)
	}
	return s.create(ctx, userID, inv, payload, entry)
}

// customerID returns the QuickBooks customer for a client, pushing the client first if needed
func (s *Service) customerID(ctx context.Context, userID, clientID uint) (string, error) {
	mapping, err := s.db.GetCustomerMapping(ctx, userID, clientID)
	if err != nil {
		return "", fmt.Errorf("failed to load customer mapping: %w", err)
	}
	if mapping != nil {
		return mapping.QBCustomerID, nil
	}
	result, err := s.customers.SyncClient(ctx, userID, clientID)
	if err != nil {
		return "", fmt.Errorf("failed to sync client %d: %w", clientID, err)
	}
	return result.QBCustomerID, nil
}

func (s *Service) update(ctx context.Context, userID uint, inv *models.Invoice, mapping *models.InvoiceMapping, payload qbclient.Invoice, entry synclog.Entry) (*Result, error) {
	current, err := qbclient.Get[qbclient.Invoice](ctx, s.qb, userID, qbclient.EntityInvoice, mapping.QBInvoiceID)
	if err != nil {
		entry.Err = err
		entry.Request = payload
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to fetch QuickBooks invoice %s: %w", mapping.QBInvoiceID, err)
	}

	payload.ID = current.ID
	payload.SyncToken = current.SyncToken
	payload.Sparse = true
	entry.Request = payload

	updated, err := qbclient.Update[qbclient.Invoice](ctx, s.qb, userID, qbclient.EntityInvoice, payload)
	if err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to update QuickBooks invoice %s: %w", mapping.QBInvoiceID, err)
	}
	entry.Response = updated

	now := time.Now().UTC()
	if err := s.db.BumpInvoiceMapping(ctx, mapping.ID, updated.DocNumber, now); err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to update invoice mapping: %w", err)
	}
	s.recorder.Record(ctx, entry)
	s.touch(ctx, userID, now)

	return &Result{
		InvoiceID:    inv.ID,
		QBInvoiceID:  updated.ID,
		QBDocNumber:  updated.DocNumber,
		QBCustomerID: payload.CustomerRef.Value,
		Action:       models.ActionUpdate,
		SyncVersion:  mapping.SyncVersion + 1,
	}, nil
}

func (s *Service) create(ctx context.Context, userID uint, inv *models.Invoice, payload qbclient.Invoice, entry synclog.Entry) (*Result, error) {
	entry.Request = payload

	created, err := qbclient.Create[qbclient.Invoice](ctx, s.qb, userID, qbclient.EntityInvoice, payload)
	if err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to create QuickBooks invoice: %w", err)
	}
	entry.QBEntityID = created.ID
	entry.Response = created

	now := time.Now().UTC()
	mapping := &models.InvoiceMapping{
		UserID:       userID,
		InvoiceID:    inv.ID,
		QBInvoiceID:  created.ID,
		QBDocNumber:  created.DocNumber,
		SyncVersion:  1,
		LastSyncedAt: now,
	}
	if err := s.db.CreateInvoiceMapping(ctx, mapping); err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to save invoice mapping: %w", err)
	}
	s.recorder.Record(ctx, entry)
	s.touch(ctx, userID, now)

	return &Result{
		InvoiceID:    inv.ID,
		QBInvoiceID:  created.ID,
		QBDocNumber:  created.DocNumber,
		QBCustomerID: payload.CustomerRef.Value,
		Action:       models.ActionCreate,
		SyncVersion:  1,
	}, nil
}

// SyncAllInvoices syncs the user's invoices one at a time. Drafts are left out
// unless the user's settings include them.
func (s *Service) SyncAllInvoices(ctx context.Context, userID uint) (*synclog.BatchResult, error) {
	timer := prometheus.NewTimer(metrics.BatchDuration.WithLabelValues("sync_all_invoices"))
	defer timer.ObserveDuration()

	prefs, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.db.ListInvoices(ctx, userID, prefs.SyncDraftInvoices)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	result := &synclog.BatchResult{Total: len(invoices), Errors: []string{}}
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.SyncInvoice(ctx, userID, inv.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("invoice %d (%s): %v", inv.ID, inv.InvoiceNumber, err))
			continue
		}
		result.Synced++
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"total":   result.Total,
		"synced":  result.Synced,
		"failed":  result.Failed,
	}).Info("invoice batch sync finished")
	return result, nil
}

// GetInvoiceSyncStatus reports the mapping and last attempt for an invoice
func (s *Service) GetInvoiceSyncStatus(ctx context.Context, userID, invoiceID uint) (*synclog.Status, error) {
	mapping, err := s.db.GetInvoiceMapping(ctx, userID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice mapping: %w", err)
	}
	status := &synclog.Status{}
	if mapping != nil {
		at := mapping.LastSyncedAt
		status.Synced = true
		status.QBID = mapping.QBInvoiceID
		status.SyncVersion = mapping.SyncVersion
		status.LastSyncedAt = &at
	}
	return s.recorder.WithLastAttempt(ctx, userID, models.EntityInvoice, invoiceID, status)
}

func (s *Service) touch(ctx context.Context, userID uint, at time.Time) {
	if err := s.db.TouchConnection(ctx, userID, at); err != nil {
		config.LogError(s.logger, "invoice", "touch", "update last sync time", map[string]any{"user_id": userID}, err)
	}
}
