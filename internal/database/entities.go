package database

import (
	"context"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetClient loads a client owned by the user
func (s *Store) GetClient(ctx context.Context, userID, clientID uint) (*models.Client, error) {
	var c models.Client
	found, err := first(s.db.WithContext(ctx).Where("id = ? AND user_id = ?", clientID, userID), &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &c, nil
}

// ListClients returns the user's clients in id order
func (s *Store) ListClients(ctx context.Context, userID uint) ([]models.Client, error) {
	var clients []models.Client
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// GetInvoice loads an invoice with its line items in display order
func (s *Store) GetInvoice(ctx context.Context, userID, invoiceID uint) (*models.Invoice, error) {
	var inv models.Invoice
	q := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order, id")
		}).
		Where("id = ? AND user_id = ?", invoiceID, userID)
	found, err := first(q, &inv)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &inv, nil
}

// ListInvoices returns the user's invoices in id order, optionally without drafts
func (s *Store) ListInvoices(ctx context.Context, userID uint, includeDrafts bool) ([]models.Invoice, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeDrafts {
		q = q.Where("status <> ?", models.InvoiceStatusDraft)
	}
	var invoices []models.Invoice
	if err := q.Order("id").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// GetPayment loads a payment owned by the user
func (s *Store) GetPayment(ctx context.Context, userID, paymentID uint) (*models.Payment, error) {
	var p models.Payment
	found, err := first(s.db.WithContext(ctx).Where("id = ? AND user_id = ?", paymentID, userID), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &p, nil
}

// CreatePayment inserts a local payment
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return s.db.WithContext(ctx).Create(payment).Error
}

// UpdateInvoicePayment sets the paid amount and, when given, the status and paid date
func (s *Store) UpdateInvoicePayment(ctx context.Context, invoiceID uint, amountPaid decimal.Decimal, status string, paidAt *time.Time) error {
	updates := map[string]any{"amount_paid": amountPaid}
	if status != "" {
		updates["status"] = status
	}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}
	return s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", invoiceID).
		Updates(updates).Error
}
