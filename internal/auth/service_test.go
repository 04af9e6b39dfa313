package auth_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/qbtest"
	"github.com/go-redis/redis/v8"
)

func TestNewServiceRequiresCredentials(t *testing.T) {
	cfg := config.DefaultQuickBooksConfig()
	cfg.ClientID = "id"
	if _, err := auth.NewService(cfg, qbtest.NewStore(t), nil, qbtest.NewLogger()); !errors.Is(err, auth.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGetAuthorizationURL(t *testing.T) {
	env := qbtest.NewEnv(t)

	raw := env.Auth.GetAuthorizationURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}
	q := u.Query()
	checks := map[string]string{
		"client_id":     qbtest.ClientID,
		"response_type": "code",
		"scope":         "com.intuit.quickbooks.accounting",
		"redirect_uri":  env.Config.RedirectURI,
		"state":         "state-123",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestExchangeCodeForTokens(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)

	conn, err := env.Auth.ExchangeCodeForTokens(ctx, "good-code", qbtest.RealmID, 2)
	if err != nil {
		t.Fatalf("ExchangeCodeForTokens() error = %v", err)
	}
	if !conn.IsActive || conn.RealmID != qbtest.RealmID || conn.Environment != config.EnvironmentSandbox {
		t.Errorf("unexpected connection: %+v", conn)
	}
	if conn.AccessToken == "" || conn.RefreshToken == "" {
		t.Error("tokens not stored")
	}
	if d := time.Until(conn.AccessTokenExpiresAt); d < 55*time.Minute || d > time.Hour+time.Minute {
		t.Errorf("access expiry %v not about an hour out", d)
	}
	if d := time.Until(conn.RefreshTokenExpiresAt); d < 100*24*time.Hour {
		t.Errorf("refresh expiry %v shorter than x_refresh_token_expires_in", d)
	}

	// the new connection is immediately usable
	tok, err := env.Auth.GetValidAccessToken(ctx, 2)
	if err != nil || tok.Token != conn.AccessToken || tok.RealmID != qbtest.RealmID {
		t.Errorf("GetValidAccessToken() = %+v, %v", tok, err)
	}
}

func TestExchangeCodeReconnectReactivates(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)

	if err := env.Auth.Disconnect(ctx, qbtest.UserID); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if _, err := env.Auth.ExchangeCodeForTokens(ctx, "good-code", qbtest.RealmID, qbtest.UserID); err != nil {
		t.Fatalf("ExchangeCodeForTokens() error = %v", err)
	}
	status, err := env.Auth.GetConnectionStatus(ctx, qbtest.UserID)
	if err != nil || !status.Connected {
		t.Fatalf("expected reconnected status, got %+v, %v", status, err)
	}
}

func TestExchangeCodeRejected(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)

	_, err := env.Auth.ExchangeCodeForTokens(ctx, "bad-code", qbtest.RealmID, 3)
	var tokenErr *auth.TokenError
	if !errors.As(err, &tokenErr) {
		t.Fatalf("expected *auth.TokenError, got %v", err)
	}
	if tokenErr.Code != "invalid_grant" || tokenErr.Op != "exchange" {
		t.Errorf("unexpected token error: %+v", tokenErr)
	}

	conn, _ := env.Store.GetConnection(ctx, 3)
	if conn != nil {
		t.Error("connection stored after failed exchange")
	}
}

func TestExchangeCodeMissingRealm(t *testing.T) {
	env := qbtest.NewEnv(t)
	if _, err := env.Auth.ExchangeCodeForTokens(context.Background(), "good-code", "", 3); !errors.Is(err, auth.ErrMissingRealm) {
		t.Fatalf("expected ErrMissingRealm, got %v", err)
	}
	if grants := env.Server.TokenGrants(); len(grants) != 0 {
		t.Errorf("vendor called without realm: %v", grants)
	}
}

func TestGetValidAccessTokenNotConnected(t *testing.T) {
	env := qbtest.NewEnv(t)
	if _, err := env.Auth.GetValidAccessToken(context.Background(), 77); !errors.Is(err, auth.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestGetValidAccessTokenReturnsStoredToken(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	conn, _ := env.Store.GetConnection(ctx, qbtest.UserID)

	tok, err := env.Auth.GetValidAccessToken(ctx, qbtest.UserID)
	if err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if tok.Token != conn.AccessToken || tok.Environment != config.EnvironmentSandbox {
		t.Errorf("unexpected token: %+v", tok)
	}
	if grants := env.Server.TokenGrants(); len(grants) != 0 {
		t.Errorf("unexpected token requests: %v", grants)
	}
}

func TestGetValidAccessTokenIgnoresCacheForInactiveConnection(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	cache := auth.NewFallbackTokenCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "test", func() bool { return false }, qbtest.NewLogger())
	svc, err := auth.NewService(env.Config, env.Store, cache, qbtest.NewLogger())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if _, err := svc.GetValidAccessToken(ctx, qbtest.UserID); err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if _, err := cache.Get(ctx, qbtest.UserID); err != nil {
		t.Fatalf("token not cached: %v", err)
	}

	// deactivated by another instance, this cache is never told
	if err := env.Store.DeactivateConnection(ctx, qbtest.UserID); err != nil {
		t.Fatalf("DeactivateConnection() error = %v", err)
	}

	tok, err := svc.GetValidAccessToken(ctx, qbtest.UserID)
	if !errors.Is(err, auth.ErrNotConnected) || tok != nil {
		t.Fatalf("expected ErrNotConnected for inactive connection, got %+v, %v", tok, err)
	}
	if _, err := cache.Get(ctx, qbtest.UserID); !errors.Is(err, auth.ErrCacheMiss) {
		t.Errorf("cached token kept for inactive connection: %v", err)
	}
}

func TestGetValidAccessTokenRefreshesExpired(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	before, _ := env.Store.GetConnection(ctx, qbtest.UserID)
	expireAccessToken(t, env, time.Now().Add(-time.Minute))

	tok, err := env.Auth.GetValidAccessToken(ctx, qbtest.UserID)
	if err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if tok.Token == before.AccessToken {
		t.Error("expected a new access token")
	}

	after, _ := env.Store.GetConnection(ctx, qbtest.UserID)
	if after.AccessToken != tok.Token || after.RefreshToken == before.RefreshToken {
		t.Errorf("refreshed tokens not persisted: %+v", after)
	}
	if !after.AccessTokenExpiresAt.After(time.Now().Add(50 * time.Minute)) {
		t.Errorf("access expiry not extended: %v", after.AccessTokenExpiresAt)
	}
}

func TestGetValidAccessTokenRefreshesWithinSkew(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	expireAccessToken(t, env, time.Now().Add(2*time.Minute))

	if _, err := env.Auth.GetValidAccessToken(ctx, qbtest.UserID); err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if grants := env.Server.TokenGrants(); len(grants) != 1 {
		t.Errorf("expected refresh for token expiring in 2 minutes, got %v", grants)
	}
}

func TestGetValidAccessTokenRefreshTokenExpired(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	env.Store.Gorm().Model(&models.QuickBooksConnection{}).
		Where("user_id = ?", qbtest.UserID).
		Update("refresh_token_expires_at", time.Now().Add(-time.Hour))

	_, err := env.Auth.GetValidAccessToken(ctx, qbtest.UserID)
	if !errors.Is(err, auth.ErrRefreshTokenExpired) || !errors.Is(err, auth.ErrNotConnected) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}

	conn, _ := env.Store.GetConnection(ctx, qbtest.UserID)
	if conn.IsActive {
		t.Error("connection should be deactivated")
	}
	if grants := env.Server.TokenGrants(); len(grants) != 0 {
		t.Errorf("vendor contacted with an expired refresh token: %v", grants)
	}
}

func TestRefreshInvalidGrantDeactivates(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	env.Server.RejectRefresh("invalid_grant")

	_, err := env.Auth.RefreshAccessToken(ctx, qbtest.UserID)
	if !errors.Is(err, auth.ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}
	conn, _ := env.Store.GetConnection(ctx, qbtest.UserID)
	if conn.IsActive {
		t.Error("connection should be deactivated after invalid_grant")
	}
}

func TestRefreshTransientFailureKeepsConnection(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	env.Server.RejectRefresh("temporarily_unavailable")

	_, err := env.Auth.RefreshAccessToken(ctx, qbtest.UserID)
	var tokenErr *auth.TokenError
	if !errors.As(err, &tokenErr) || tokenErr.Op != "refresh" {
		t.Fatalf("expected refresh TokenError, got %v", err)
	}
	if errors.Is(err, auth.ErrNotConnected) {
		t.Error("transient refresh failure should not read as disconnected")
	}
	conn, _ := env.Store.GetConnection(ctx, qbtest.UserID)
	if !conn.IsActive {
		t.Error("connection should stay active after a transient refresh failure")
	}
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	conn, _ := env.Store.GetConnection(ctx, qbtest.UserID)

	mapping := &models.CustomerMapping{UserID: qbtest.UserID, ClientID: 1, QBCustomerID: "58", SyncVersion: 1, LastSyncedAt: time.Now()}
	if err := env.Store.CreateCustomerMapping(ctx, mapping); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	if err := env.Auth.Disconnect(ctx, qbtest.UserID); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	revoked := env.Server.Revoked()
	if len(revoked) != 1 || revoked[0] != conn.RefreshToken {
		t.Errorf("expected refresh token revoked, got %v", revoked)
	}
	if _, err := env.Auth.GetValidAccessToken(ctx, qbtest.UserID); !errors.Is(err, auth.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after disconnect, got %v", err)
	}
	if m, _ := env.Store.GetCustomerMapping(ctx, qbtest.UserID, 1); m == nil {
		t.Error("disconnect removed mappings")
	}

	status, err := env.Auth.GetConnectionStatus(ctx, qbtest.UserID)
	if err != nil || status.Connected || !status.Configured {
		t.Errorf("unexpected status after disconnect: %+v, %v", status, err)
	}
}

func TestDisconnectWithoutConnection(t *testing.T) {
	env := qbtest.NewEnv(t)
	if err := env.Auth.Disconnect(context.Background(), 55); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
}

func expireAccessToken(t *testing.T, env *qbtest.Env, at time.Time) {
	t.Helper()
	if err := env.Store.Gorm().Model(&models.QuickBooksConnection{}).
		Where("user_id = ?", qbtest.UserID).
		Update("access_token_expires_at", at).Error; err != nil {
		t.Fatalf("expire token: %v", err)
	}
}
