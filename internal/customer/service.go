// internal/customer/service.go
package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/metrics"
	"github.com/eGGnogSC/qbsync/internal/synclog"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ErrClientNotFound is returned when the client does not exist for the user
var ErrClientNotFound = errors.New("client not found")

// Result describes one client sync
type Result struct {
	ClientID     uint   `json:"clientId"`
	QBCustomerID string `json:"qbCustomerId"`
	Action       string `json:"action"`
	Matched      bool   `json:"matched,omitempty"`
	SyncVersion  int    `json:"syncVersion"`
}

// Service pushes local clients to QuickBooks customers
type Service struct {
	db       database.DB
	qb       *qbclient.Client
	recorder *synclog.Recorder
	logger   logrus.FieldLogger
}

// NewService creates a new customer sync service
func NewService(db database.DB, qb *qbclient.Client, recorder *synclog.Recorder, logger logrus.FieldLogger) *Service {
	return &Service{
		db:       db,
		qb:       qb,
		recorder: recorder,
		logger:   logger.WithField("module", "customer"),
	}
}

// SyncClient creates or updates the QuickBooks customer for one client. A
// client without a mapping is first looked up in QuickBooks by email and then
// by display name so an existing customer is adopted rather than duplicated.
func (s *Service) SyncClient(ctx context.Context, userID, clientID uint) (*Result, error) {
	client, err := s.db.GetClient(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrClientNotFound, clientID)
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	mapping, err := s.db.GetCustomerMapping(ctx, userID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer mapping: %w", err)
	}

	payload := customerPayload(client)
	if mapping != nil {
		return s.update(ctx, userID, client, mapping, payload)
	}
	return s.create(ctx, userID, client, payload)
}

func (s *Service) update(ctx context.Context, userID uint, client *models.Client, mapping *models.CustomerMapping, payload qbclient.Customer) (*Result, error) {
	entry := synclog.Entry{
		UserID:     userID,
		EntityType: models.EntityCustomer,
		EntityID:   client.ID,
		QBEntityID: mapping.QBCustomerID,
		Action:     models.ActionUpdate,
	}

	current, err := qbclient.Get[qbclient.Customer](ctx, s.qb, userID, qbclient.EntityCustomer, mapping.QBCustomerID)
	if err != nil {
		entry.Err = err
		entry.Request = payload
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to fetch QuickBooks customer %s: %w", mapping.QBCustomerID, err)
	}

	payload.ID = current.ID
	payload.SyncToken = current.SyncToken
	payload.Sparse = true
	entry.Request = payload

	updated, err := qbclient.Update[qbclient.Customer](ctx, s.qb, userID, qbclient.EntityCustomer, payload)
	if err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to update QuickBooks customer %s: %w", mapping.QBCustomerID, err)
	}
	entry.Response = updated

	now := time.Now().UTC()
	if err := s.db.BumpCustomerMapping(ctx, mapping.ID, updated.DisplayName, now); err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to update customer mapping: %w", err)
	}
	s.recorder.Record(ctx, entry)
	s.touch(ctx, userID, now)

	return &Result{
		ClientID:     client.ID,
		QBCustomerID: updated.ID,
		Action:       models.ActionUpdate,
		SyncVersion:  mapping.SyncVersion + 1,
	}, nil
}

func (s *Service) create(ctx context.Context, userID uint, client *models.Client, payload qbclient.Customer) (*Result, error) {
	entry := synclog.Entry{
		UserID:     userID,
		EntityType: models.EntityCustomer,
		EntityID:   client.ID,
		Action:     models.ActionCreate,
		Request:    payload,
	}

	customer := s.findExisting(ctx, userID, client, payload.DisplayName)
	matched := customer != nil
	if !matched {
		created, err := qbclient.Create[qbclient.Customer](ctx, s.qb, userID, qbclient.EntityCustomer, payload)
		if err != nil {
			entry.Err = err
			s.recorder.Record(ctx, entry)
			return nil, fmt.Errorf("failed to create QuickBooks customer: %w", err)
		}
		customer = created
		entry.Response = created
	} else {
		entry.Request = map[string]any{"matched": true, "qbCustomerId": customer.ID, "displayName": customer.DisplayName}
		entry.Response = customer
	}
	entry.QBEntityID = customer.ID

	now := time.Now().UTC()
	mapping := &models.CustomerMapping{
		UserID:        userID,
		ClientID:      client.ID,
		QBCustomerID:  customer.ID,
		QBDisplayName: customer.DisplayName,
		SyncVersion:   1,
		LastSyncedAt:  now,
	}
	if err := s.db.CreateCustomerMapping(ctx, mapping); err != nil {
		entry.Err = err
		s.recorder.Record(ctx, entry)
		return nil, fmt.Errorf("failed to save customer mapping: %w", err)
	}
	s.recorder.Record(ctx, entry)
	s.touch(ctx, userID, now)

	return &Result{
		ClientID:     client.ID,
		QBCustomerID: customer.ID,
		Action:       models.ActionCreate,
		Matched:      matched,
		SyncVersion:  1,
	}, nil
}

// findExisting looks for a customer already in QuickBooks. Lookup errors are
// logged and treated as no match.
func (s *Service) findExisting(ctx context.Context, userID uint, client *models.Client, displayName string) *qbclient.Customer {
	if client.Email != "" {
		stmt := fmt.Sprintf("SELECT * FROM Customer WHERE PrimaryEmailAddr = '%s' MAXRESULTS 1", qbclient.EscapeQueryValue(client.Email))
		if found := s.lookup(ctx, userID, client.ID, stmt); found != nil {
			return found
		}
	}
	stmt := fmt.Sprintf("SELECT * FROM Customer WHERE DisplayName = '%s' MAXRESULTS 1", qbclient.EscapeQueryValue(displayName))
	return s.lookup(ctx, userID, client.ID, stmt)
}

func (s *Service) lookup(ctx context.Context, userID, clientID uint, stmt string) *qbclient.Customer {
	customers, err := qbclient.Query[qbclient.Customer](ctx, s.qb, userID, stmt)
	if err != nil {
		config.LogError(s.logger, "customer", "findExisting", "dedup lookup", map[string]any{
			"user_id":   userID,
			"client_id": clientID,
		}, err)
		return nil
	}
	if len(customers) == 0 {
		return nil
	}
	return &customers[0]
}

// SyncAllClients syncs every client of the user one at a time
func (s *Service) SyncAllClients(ctx context.Context, userID uint) (*synclog.BatchResult, error) {
	timer := prometheus.NewTimer(metrics.BatchDuration.WithLabelValues("sync_all_clients"))
	defer timer.ObserveDuration()

	clients, err := s.db.ListClients(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	result := &synclog.BatchResult{Total: len(clients), Errors: []string{}}
	for i := range clients {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		c := &clients[i]
		if _, err := s.SyncClient(ctx, userID, c.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("client %d (%s): %v", c.ID, DisplayName(c), err))
			continue
		}
		result.Synced++
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"total":   result.Total,
		"synced":  result.Synced,
		"failed":  result.Failed,
	}).Info("client batch sync finished")
	return result, nil
}

// GetClientSyncStatus reports the mapping and last attempt for a client
func (s *Service) GetClientSyncStatus(ctx context.Context, userID, clientID uint) (*synclog.Status, error) {
	mapping, err := s.db.GetCustomerMapping(ctx, userID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer mapping: %w", err)
	}
	status := &synclog.Status{}
	if mapping != nil {
		at := mapping.LastSyncedAt
		status.Synced = true
		status.QBID = mapping.QBCustomerID
		status.SyncVersion = mapping.SyncVersion
		status.LastSyncedAt = &at
	}
	return s.recorder.WithLastAttempt(ctx, userID, models.EntityCustomer, clientID, status)
}

func (s *Service) touch(ctx context.Context, userID uint, at time.Time) {
	if err := s.db.TouchConnection(ctx, userID, at); err != nil {
		config.LogError(s.logger, "customer", "touch", "update last sync time", map[string]any{"user_id": userID}, err)
	}
}
