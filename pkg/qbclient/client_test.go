package qbclient_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/qbtest"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
)

func TestCreateGetAndQueryCustomer(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)

	created, err := qbclient.Create[qbclient.Customer](ctx, env.QB, qbtest.UserID, qbclient.EntityCustomer, qbclient.Customer{
		DisplayName:      "Acme Corp",
		PrimaryEmailAddr: &qbclient.EmailAddress{Address: "billing@acme.test"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.SyncToken != "0" {
		t.Fatalf("unexpected created customer: %+v", created)
	}

	got, err := qbclient.Get[qbclient.Customer](ctx, env.QB, qbtest.UserID, qbclient.EntityCustomer, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DisplayName != "Acme Corp" {
		t.Errorf("DisplayName = %q", got.DisplayName)
	}

	found, err := qbclient.Query[qbclient.Customer](ctx, env.QB, qbtest.UserID,
		"SELECT * FROM Customer WHERE PrimaryEmailAddr = 'billing@acme.test'")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(found) != 1 || found[0].ID != created.ID {
		t.Errorf("Query() = %+v", found)
	}

	none, err := qbclient.Query[qbclient.Customer](ctx, env.QB, qbtest.UserID,
		"SELECT * FROM Customer WHERE DisplayName = 'Nobody'")
	if err != nil || len(none) != 0 {
		t.Errorf("expected empty result, got %v, %v", none, err)
	}

	for _, call := range env.Server.APICalls("", "") {
		if call.Query.Get("minorversion") != "75" {
			t.Errorf("call %s %s missing minorversion", call.Method, call.Path)
		}
	}
}

func TestUpdateWithStaleSyncTokenIsConflict(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	id := env.Server.Put(qbclient.EntityCustomer, qbclient.Customer{DisplayName: "Acme"})

	_, err := qbclient.Update[qbclient.Customer](ctx, env.QB, qbtest.UserID, qbclient.EntityCustomer, qbclient.Customer{
		ID: id, SyncToken: "7", Sparse: true, DisplayName: "Acme 2",
	})
	if !errors.Is(err, qbclient.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}

	updated, err := qbclient.Update[qbclient.Customer](ctx, env.QB, qbtest.UserID, qbclient.EntityCustomer, qbclient.Customer{
		ID: id, SyncToken: "0", Sparse: true, DisplayName: "Acme 2",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.SyncToken != "1" || updated.DisplayName != "Acme 2" {
		t.Errorf("unexpected update result: %+v", updated)
	}
}

func TestFaultWithSuccessStatus(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	env.Server.FailNext(http.MethodGet, "customer", http.StatusOK, qbtest.FaultBody("610", "Object Not Found"))

	_, err := qbclient.Get[qbclient.Customer](ctx, env.QB, qbtest.UserID, qbclient.EntityCustomer, "1")
	var qbErr *qbclient.Error
	if !errors.As(err, &qbErr) {
		t.Fatalf("expected *qbclient.Error, got %v", err)
	}
	if qbErr.Kind != qbclient.KindFault || qbErr.Code != "610" {
		t.Errorf("unexpected error: %+v", qbErr)
	}
}

func TestNonJSONErrorIsTransport(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	env.Server.FailNext(http.MethodPost, "customer", http.StatusInternalServerError, "upstream exploded")

	_, err := qbclient.Create[qbclient.Customer](ctx, env.QB, qbtest.UserID, qbclient.EntityCustomer, qbclient.Customer{DisplayName: "X"})
	var qbErr *qbclient.Error
	if !errors.As(err, &qbErr) || qbErr.Kind != qbclient.KindTransport || qbErr.StatusCode != 500 {
		t.Fatalf("expected transport error with status 500, got %v", err)
	}
	if qbclient.ErrorCode(err) != "" {
		t.Errorf("transport error should carry no vendor code")
	}
}

func TestCallRefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)

	env.Store.Gorm().Model(&models.QuickBooksConnection{}).
		Where("user_id = ?", qbtest.UserID).
		Update("access_token_expires_at", time.Now().Add(-time.Minute))

	if _, err := qbclient.Query[qbclient.Customer](ctx, env.QB, qbtest.UserID, "SELECT * FROM Customer"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	grants := env.Server.TokenGrants()
	if len(grants) != 1 || grants[0] != "refresh_token" {
		t.Errorf("expected one refresh grant, got %v", grants)
	}
}

func TestCallWithoutConnection(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)

	_, err := qbclient.Query[qbclient.Customer](ctx, env.QB, 99, "SELECT * FROM Customer")
	if !errors.Is(err, auth.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if qbclient.HTTPStatus(err) != http.StatusUnauthorized {
		t.Errorf("HTTPStatus() = %d", qbclient.HTTPStatus(err))
	}
	if calls := env.Server.APICalls("", ""); len(calls) != 0 {
		t.Errorf("expected no vendor calls, got %d", len(calls))
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	id := env.Server.Put(qbclient.EntityInvoice, qbclient.Invoice{DocNumber: "1001"})

	if err := env.QB.Delete(ctx, qbtest.UserID, qbclient.EntityInvoice, id, "0"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if env.Server.Count(qbclient.EntityInvoice) != 0 {
		t.Error("invoice still present after delete")
	}
	calls := env.Server.APICalls(http.MethodPost, "invoice")
	if len(calls) != 1 || calls[0].Query.Get("operation") != "delete" {
		t.Errorf("unexpected delete call: %+v", calls)
	}
}
