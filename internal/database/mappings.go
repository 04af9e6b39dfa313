package database

import (
	"context"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database/models"
	"gorm.io/gorm"
)

// GetCustomerMapping returns the mapping for a client, or nil when it was never synced
func (s *Store) GetCustomerMapping(ctx context.Context, userID, clientID uint) (*models.CustomerMapping, error) {
	var m models.CustomerMapping
	found, err := first(s.db.WithContext(ctx).Where("user_id = ? AND client_id = ?", userID, clientID), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// CreateCustomerMapping stores the link between a client and a QuickBooks customer
func (s *Store) CreateCustomerMapping(ctx context.Context, m *models.CustomerMapping) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// BumpCustomerMapping increments the sync version after a successful update
func (s *Store) BumpCustomerMapping(ctx context.Context, id uint, displayName string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.CustomerMapping{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sync_version":    gorm.Expr("sync_version + 1"),
			"qb_display_name": displayName,
			"last_synced_at":  at,
		}).Error
}

// GetInvoiceMapping returns the mapping for an invoice, or nil when it was never synced
func (s *Store) GetInvoiceMapping(ctx context.Context, userID, invoiceID uint) (*models.InvoiceMapping, error) {
	var m models.InvoiceMapping
	found, err := first(s.db.WithContext(ctx).Where("user_id = ? AND invoice_id = ?", userID, invoiceID), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// GetInvoiceMappingByQBID resolves a QuickBooks invoice id back to the local mapping
func (s *Store) GetInvoiceMappingByQBID(ctx context.Context, userID uint, qbInvoiceID string) (*models.InvoiceMapping, error) {
	var m models.InvoiceMapping
	found, err := first(s.db.WithContext(ctx).Where("user_id = ? AND qb_invoice_id = ?", userID, qbInvoiceID), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// CreateInvoiceMapping stores the link between an invoice and its QuickBooks copy
func (s *Store) CreateInvoiceMapping(ctx context.Context, m *models.InvoiceMapping) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// BumpInvoiceMapping increments the sync version after a successful update
func (s *Store) BumpInvoiceMapping(ctx context.Context, id uint, docNumber string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.InvoiceMapping{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sync_version":   gorm.Expr("sync_version + 1"),
			"qb_doc_number":  docNumber,
			"last_synced_at": at,
		}).Error
}

// GetPaymentMapping returns the mapping for a payment, or nil when it has none
func (s *Store) GetPaymentMapping(ctx context.Context, userID, paymentID uint) (*models.PaymentMapping, error) {
	var m models.PaymentMapping
	found, err := first(s.db.WithContext(ctx).Where("user_id = ? AND payment_id = ?", userID, paymentID), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// GetPaymentMappingByQBID finds the mapping for a QuickBooks payment in either direction
func (s *Store) GetPaymentMappingByQBID(ctx context.Context, userID uint, qbPaymentID string) (*models.PaymentMapping, error) {
	var m models.PaymentMapping
	found, err := first(s.db.WithContext(ctx).Where("user_id = ? AND qb_payment_id = ?", userID, qbPaymentID), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// CreatePaymentMapping stores the link between a payment and a QuickBooks payment
func (s *Store) CreatePaymentMapping(ctx context.Context, m *models.PaymentMapping) error {
	return s.db.WithContext(ctx).Create(m).Error
}
