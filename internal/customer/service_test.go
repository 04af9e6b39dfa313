package customer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/customer"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/qbtest"
	"github.com/eGGnogSC/qbsync/internal/synclog"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/gorilla/mux"
)

func newService(env *qbtest.Env) *customer.Service {
	recorder := synclog.NewRecorder(env.Store, env.Logger)
	return customer.NewService(env.Store, env.QB, recorder, env.Logger)
}

func customerLogs(t *testing.T, env *qbtest.Env, clientID uint) []models.SyncLog {
	t.Helper()
	logs, err := env.Store.ListSyncLogs(context.Background(), qbtest.UserID, database.SyncLogFilter{
		EntityType: models.EntityCustomer,
		EntityID:   clientID,
	})
	if err != nil {
		t.Fatalf("ListSyncLogs() error = %v", err)
	}
	return logs
}

func TestSyncClientCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	svc := newService(env)
	client := env.SeedClient(t, models.Client{Name: "Jane Doe", CompanyName: "Acme Ltd", Email: "billing@acme.test"})

	first, err := svc.SyncClient(ctx, qbtest.UserID, client.ID)
	if err != nil {
		t.Fatalf("SyncClient() error = %v", err)
	}
	if first.Action != models.ActionCreate || first.Matched || first.SyncVersion != 1 || first.QBCustomerID == "" {
		t.Fatalf("unexpected first result: %+v", first)
	}

	client.Phone = "555-0199"
	if err := env.Store.Gorm().Save(&client).Error; err != nil {
		t.Fatal(err)
	}

	second, err := svc.SyncClient(ctx, qbtest.UserID, client.ID)
	if err != nil {
		t.Fatalf("second SyncClient() error = %v", err)
	}
	if second.Action != models.ActionUpdate || second.SyncVersion != 2 || second.QBCustomerID != first.QBCustomerID {
		t.Fatalf("unexpected second result: %+v", second)
	}
	if n := env.Server.Count(qbclient.EntityCustomer); n != 1 {
		t.Errorf("QuickBooks has %d customers, want 1", n)
	}

	var stored qbclient.Customer
	env.Server.Object(qbclient.EntityCustomer, first.QBCustomerID, &stored)
	if stored.DisplayName != "Acme Ltd" || stored.PrimaryPhone == nil || stored.PrimaryPhone.FreeFormNumber != "555-0199" {
		t.Errorf("unexpected stored customer: %+v", stored)
	}
	if stored.SyncToken != "1" {
		t.Errorf("SyncToken = %q, want 1", stored.SyncToken)
	}

	mapping, _ := env.Store.GetCustomerMapping(ctx, qbtest.UserID, client.ID)
	if mapping == nil || mapping.SyncVersion != 2 {
		t.Errorf("mapping = %+v", mapping)
	}
	conn, _ := env.Store.GetConnection(ctx, qbtest.UserID)
	if conn.LastSyncAt == nil {
		t.Error("connection last sync time not set")
	}

	logs := customerLogs(t, env, client.ID)
	if len(logs) != 2 || logs[0].Action != models.ActionUpdate || logs[1].Action != models.ActionCreate {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	for _, l := range logs {
		if l.Status != models.SyncStatusSuccess || l.QBEntityID == nil || *l.QBEntityID != first.QBCustomerID {
			t.Errorf("unexpected log entry: %+v", l)
		}
	}
}

func TestSyncClientAdoptsExistingCustomerByEmail(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	svc := newService(env)
	existing := env.Server.Put(qbclient.EntityCustomer, qbclient.Customer{
		DisplayName:      "Acme (QuickBooks)",
		PrimaryEmailAddr: &qbclient.EmailAddress{Address: "billing@acme.test"},
	})
	client := env.SeedClient(t, models.Client{CompanyName: "Acme Ltd", Email: "billing@acme.test"})

	result, err := svc.SyncClient(ctx, qbtest.UserID, client.ID)
	if err != nil {
		t.Fatalf("SyncClient() error = %v", err)
	}
	if !result.Matched || result.QBCustomerID != existing || result.SyncVersion != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if calls := env.Server.APICalls(http.MethodPost, "customer"); len(calls) != 0 {
		t.Errorf("expected no customer writes, got %d", len(calls))
	}

	mapping, _ := env.Store.GetCustomerMapping(ctx, qbtest.UserID, client.ID)
	if mapping == nil || mapping.QBCustomerID != existing || mapping.QBDisplayName != "Acme (QuickBooks)" {
		t.Errorf("mapping = %+v", mapping)
	}

	logs := customerLogs(t, env, client.ID)
	if len(logs) != 1 || logs[0].Action != models.ActionCreate {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	if !strings.Contains(string(logs[0].RequestPayload), `"matched":true`) {
		t.Errorf("request payload missing match marker: %s", logs[0].RequestPayload)
	}
}

func TestSyncClientAdoptsExistingCustomerByName(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	svc := newService(env)
	existing := env.Server.Put(qbclient.EntityCustomer, qbclient.Customer{DisplayName: "O'Brien Plumbing"})
	client := env.SeedClient(t, models.Client{CompanyName: "O'Brien Plumbing", Email: "new@obrien.test"})

	result, err := svc.SyncClient(ctx, qbtest.UserID, client.ID)
	if err != nil {
		t.Fatalf("SyncClient() error = %v", err)
	}
	if !result.Matched || result.QBCustomerID != existing {
		t.Fatalf("unexpected result: %+v", result)
	}
	if n := env.Server.Count(qbclient.EntityCustomer); n != 1 {
		t.Errorf("QuickBooks has %d customers, want 1", n)
	}
}

func TestSyncClientAdoptsCustomerWithBackslashInName(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	svc := newService(env)
	existing := env.Server.Put(qbclient.EntityCustomer, qbclient.Customer{DisplayName: `Acme\`})
	client := env.SeedClient(t, models.Client{CompanyName: `Acme\`})

	result, err := svc.SyncClient(ctx, qbtest.UserID, client.ID)
	if err != nil {
		t.Fatalf("SyncClient() error = %v", err)
	}
	if !result.Matched || result.QBCustomerID != existing {
		t.Fatalf("unexpected result: %+v", result)
	}
	if n := env.Server.Count(qbclient.EntityCustomer); n != 1 {
		t.Errorf("QuickBooks has %d customers, want 1", n)
	}
}

func TestSyncClientDedupLookupFailureFallsThroughToCreate(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	svc := newService(env)
	client := env.SeedClient(t, models.Client{Name: "Jane Doe", Email: "jane@example.test"})
	env.Server.FailNext(http.MethodGet, "query", http.StatusInternalServerError, "upstream down")

	result, err := svc.SyncClient(ctx, qbtest.UserID, client.ID)
	if err != nil {
		t.Fatalf("SyncClient() error = %v", err)
	}
	if result.Matched || result.Action != models.ActionCreate {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSyncClientUpdateFailureKeepsMapping(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	svc := newService(env)
	client := env.SeedClient(t, models.Client{Name: "Jane Doe"})
	if _, err := svc.SyncClient(ctx, qbtest.UserID, client.ID); err != nil {
		t.Fatal(err)
	}

	env.Server.FailNext(http.MethodGet, "customer", http.StatusBadRequest, qbtest.FaultBody("610", "Object Not Found"))
	_, err := svc.SyncClient(ctx, qbtest.UserID, client.ID)
	if err == nil {
		t.Fatal("expected an error")
	}
	if qbclient.ErrorCode(err) != "610" {
		t.Errorf("ErrorCode() = %q", qbclient.ErrorCode(err))
	}

	mapping, _ := env.Store.GetCustomerMapping(ctx, qbtest.UserID, client.ID)
	if mapping.SyncVersion != 1 {
		t.Errorf("SyncVersion = %d, want 1", mapping.SyncVersion)
	}
	logs := customerLogs(t, env, client.ID)
	if logs[0].Status != models.SyncStatusFailed || logs[0].Action != models.ActionUpdate || logs[0].ErrorMessage == nil {
		t.Errorf("unexpected latest log: %+v", logs[0])
	}
}

func TestSyncClientNotFound(t *testing.T) {
	env := qbtest.NewEnv(t)
	_, err := newService(env).SyncClient(context.Background(), qbtest.UserID, 404)
	if !errors.Is(err, customer.ErrClientNotFound) {
		t.Fatalf("error = %v, want ErrClientNotFound", err)
	}
	if calls := env.Server.APICalls("", ""); len(calls) != 0 {
		t.Errorf("expected no QuickBooks calls, got %d", len(calls))
	}
}

func TestSyncClientNotConnected(t *testing.T) {
	env := qbtest.NewEnv(t)
	client := env.SeedClient(t, models.Client{UserID: 2, Name: "Jane Doe"})

	_, err := newService(env).SyncClient(context.Background(), 2, client.ID)
	if !errors.Is(err, auth.ErrNotConnected) {
		t.Fatalf("error = %v, want ErrNotConnected", err)
	}
	if qbclient.HTTPStatus(err) != http.StatusUnauthorized {
		t.Errorf("HTTPStatus() = %d", qbclient.HTTPStatus(err))
	}
}

func TestSyncAllClientsContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	svc := newService(env)
	first := env.SeedClient(t, models.Client{Name: "First"})
	second := env.SeedClient(t, models.Client{Name: "Second"})
	third := env.SeedClient(t, models.Client{Name: "Third"})
	env.SeedClient(t, models.Client{UserID: 2, Name: "Someone else"})
	env.Server.FailNth(http.MethodPost, "customer", 2, http.StatusInternalServerError, "upstream down")

	result, err := svc.SyncAllClients(ctx, qbtest.UserID)
	if err != nil {
		t.Fatalf("SyncAllClients() error = %v", err)
	}
	if result.Total != 3 || result.Synced != 2 || result.Failed != 1 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.Errors[0], "Second") {
		t.Errorf("error should name the client: %q", result.Errors[0])
	}

	for _, c := range []models.Client{first, third} {
		if m, _ := env.Store.GetCustomerMapping(ctx, qbtest.UserID, c.ID); m == nil {
			t.Errorf("client %d not mapped", c.ID)
		}
	}
	if m, _ := env.Store.GetCustomerMapping(ctx, qbtest.UserID, second.ID); m != nil {
		t.Errorf("failed client got a mapping: %+v", m)
	}
	logs := customerLogs(t, env, second.ID)
	if len(logs) != 1 || logs[0].Status != models.SyncStatusFailed {
		t.Errorf("unexpected logs for failed client: %+v", logs)
	}
	if n := env.Server.Count(qbclient.EntityCustomer); n != 2 {
		t.Errorf("QuickBooks has %d customers, want 2", n)
	}
}

func TestGetClientSyncStatus(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	svc := newService(env)
	client := env.SeedClient(t, models.Client{Name: "Jane Doe"})

	before, err := svc.GetClientSyncStatus(ctx, qbtest.UserID, client.ID)
	if err != nil {
		t.Fatal(err)
	}
	if before.Synced || before.LastAttemptAt != nil {
		t.Errorf("unexpected status before sync: %+v", before)
	}

	result, _ := svc.SyncClient(ctx, qbtest.UserID, client.ID)
	after, err := svc.GetClientSyncStatus(ctx, qbtest.UserID, client.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !after.Synced || after.QBID != result.QBCustomerID || after.LastStatus != models.SyncStatusSuccess {
		t.Errorf("unexpected status after sync: %+v", after)
	}
}

func TestSyncHandler(t *testing.T) {
	env := qbtest.NewEnv(t)
	h := customer.NewHandler(newService(env))
	client := env.SeedClient(t, models.Client{Name: "Jane Doe"})

	router := mux.NewRouter()
	router.HandleFunc("/clients/{id}/sync", h.SyncHandler).Methods(http.MethodPost)

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"synced", strconv.FormatUint(uint64(client.ID), 10), http.StatusOK},
		{"missing", "999", http.StatusNotFound},
		{"bad id", "abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/clients/"+tt.id+"/sync", nil)
			req = req.WithContext(auth.WithUserID(req.Context(), qbtest.UserID))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want == http.StatusBadRequest {
				return
			}
			var body struct {
				Success bool `json:"success"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Success != (tt.want == http.StatusOK) {
				t.Errorf("success = %v", body.Success)
			}
		})
	}
}
