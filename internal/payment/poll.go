package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/metrics"
	"github.com/eGGnogSC/qbsync/internal/synclog"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	pollPageSize      = 100
	firstPollLookback = 24 * time.Hour
)

// PollResult summarizes one inbound payment poll
type PollResult struct {
	Disabled        bool      `json:"disabled,omitempty"`
	Since           time.Time `json:"since"`
	Fetched         int       `json:"fetched"`
	Imported        int       `json:"imported"`
	AlreadyImported int       `json:"alreadyImported"`
	Unlinked        int       `json:"unlinked"`
	UnknownInvoice  int       `json:"unknownInvoice"`
	Errors          []string  `json:"errors"`
}

// PollPayments imports payments recorded in QuickBooks since the last poll.
// Each payment applied to an invoice this user has synced becomes a local
// payment and moves the invoice's paid amount. Payments already mapped are
// skipped, so overlapping polls never import twice. The watermark advances
// even when individual payments fail; a failed query leaves it untouched.
func (s *Service) PollPayments(ctx context.Context, userID uint) (*PollResult, error) {
	timer := prometheus.NewTimer(metrics.BatchDuration.WithLabelValues("poll_payments"))
	defer timer.ObserveDuration()

	prefs, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !prefs.SyncPaymentsFromQB {
		return &PollResult{Disabled: true, Errors: []string{}}, nil
	}

	startedAt := time.Now().UTC()
	since := startedAt.Add(-firstPollLookback)
	if prefs.LastPaymentPollAt != nil {
		since = prefs.LastPaymentPollAt.UTC()
	}
	result := &PollResult{Since: since, Errors: []string{}}

	stmt := fmt.Sprintf("SELECT * FROM Payment WHERE MetaData.LastUpdatedTime > '%s' ORDERBY MetaData.LastUpdatedTime DESC MAXRESULTS %d",
		since.Format(time.RFC3339), pollPageSize)
	payments, err := qbclient.Query[qbclient.Payment](ctx, s.qb, userID, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to query QuickBooks payments: %w", err)
	}
	result.Fetched = len(payments)

	for i := range payments {
		if err := s.importPayment(ctx, userID, &payments[i], result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("payment %s: %v", payments[i].ID, err))
		}
	}

	if err := s.settings.RecordPaymentPoll(ctx, userID, startedAt); err != nil {
		return result, err
	}
	if result.Imported > 0 {
		s.touch(ctx, userID, startedAt)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"fetched":  result.Fetched,
		"imported": result.Imported,
		"errors":   len(result.Errors),
	}).Info("payment poll finished")
	return result, nil
}

func (s *Service) importPayment(ctx context.Context, userID uint, qp *qbclient.Payment, result *PollResult) error {
	existing, err := s.db.GetPaymentMappingByQBID(ctx, userID, qp.ID)
	if err != nil {
		return fmt.Errorf("failed to load payment mapping: %w", err)
	}
	if existing != nil {
		result.AlreadyImported++
		return nil
	}

	qbInvoiceID, applied, ok := qp.LinkedInvoice()
	if !ok {
		result.Unlinked++
		return nil
	}
	invMapping, err := s.db.GetInvoiceMappingByQBID(ctx, userID, qbInvoiceID)
	if err != nil {
		return fmt.Errorf("failed to load invoice mapping: %w", err)
	}
	if invMapping == nil {
		result.UnknownInvoice++
		return nil
	}

	amount := decimal.NewFromFloat(applied).Round(2)
	now := time.Now().UTC()
	paidOn := now
	if d, err := time.Parse(dateLayout, qp.TxnDate); err == nil {
		paidOn = d
	}

	entry := synclog.Entry{
		UserID:     userID,
		EntityType: models.EntityPayment,
		QBEntityID: qp.ID,
		Action:     models.ActionCreate,
		Request:    map[string]any{"direction": models.DirectionFromQB, "qbInvoiceId": qbInvoiceID},
		Response:   qp,
	}

	err = s.db.WithTx(ctx, func(tx database.DB) error {
		inv, err := tx.GetInvoice(ctx, userID, invMapping.InvoiceID)
		if err != nil {
			return fmt.Errorf("failed to load invoice %d: %w", invMapping.InvoiceID, err)
		}

		local := &models.Payment{
			UserID:        userID,
			InvoiceID:     inv.ID,
			Amount:        amount,
			Currency:      inv.Currency,
			PaymentMethod: models.PaymentMethodBankTransfer,
			PaymentDate:   paidOn,
			Status:        models.PaymentStatusCompleted,
			Notes:         "Imported from QuickBooks payment " + qp.ID,
		}
		if err := tx.CreatePayment(ctx, local); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		if err := tx.CreatePaymentMapping(ctx, &models.PaymentMapping{
			UserID:        userID,
			PaymentID:     local.ID,
			QBPaymentID:   qp.ID,
			SyncDirection: models.DirectionFromQB,
			LastSyncedAt:  now,
		}); err != nil {
			return fmt.Errorf("failed to save payment mapping: %w", err)
		}

		paid := inv.AmountPaid.Add(amount)
		status := ""
		var paidAt *time.Time
		if paid.GreaterThanOrEqual(inv.Total) && inv.Status != models.InvoiceStatusPaid {
			status = models.InvoiceStatusPaid
			paidAt = &now
		}
		if err := tx.UpdateInvoicePayment(ctx, inv.ID, paid, status, paidAt); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		entry.EntityID = local.ID
		return nil
	})
	if err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return err
	}

	s.recorder.Record(ctx, entry)
	metrics.PaymentsImported.Inc()
	result.Imported++
	return nil
}
