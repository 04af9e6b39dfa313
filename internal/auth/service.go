// auth/service.go
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	// tokens this close to expiry are refreshed before use
	expirySkew = 5 * time.Minute

	defaultAccessTokenLifetime  = time.Hour
	defaultRefreshTokenLifetime = 100 * 24 * time.Hour
)

// Service handles OAuth 2.0 operations and owns the stored tokens
type Service struct {
	cfg        config.QuickBooksConfig
	oauth      *oauth2.Config
	db         database.DB
	cache      TokenCache
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewService creates a new auth service. cache may be nil.
func NewService(cfg config.QuickBooksConfig, db database.DB, cache TokenCache, logger logrus.FieldLogger) (*Service, error) {
	if !cfg.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if cache == nil {
		cache = noopCache{}
	}
	return &Service{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		db:         db,
		cache:      cache,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}, nil
}

// GetAuthorizationURL generates the QuickBooks consent URL
func (s *Service) GetAuthorizationURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// ExchangeCodeForTokens trades an authorization code for tokens and stores the connection
func (s *Service) ExchangeCodeForTokens(ctx context.Context, code, realmID string, userID uint) (*models.QuickBooksConnection, error) {
	if realmID == "" {
		return nil, ErrMissingRealm
	}

	tok, err := s.oauth.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return nil, newTokenError("exchange", err)
	}

	now := time.Now()
	conn := &models.QuickBooksConnection{
		UserID:                userID,
		RealmID:               realmID,
		AccessToken:           tok.AccessToken,
		RefreshToken:          tok.RefreshToken,
		AccessTokenExpiresAt:  accessExpiry(tok, now),
		RefreshTokenExpiresAt: refreshExpiry(tok, now),
		Environment:           s.cfg.Environment,
		IsActive:              true,
	}
	if err := s.db.UpsertConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	s.cacheToken(ctx, userID, conn)

	s.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"realm_id":    realmID,
		"environment": s.cfg.Environment,
	}).Info("QuickBooks connected")

	saved, err := s.db.GetConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload connection: %w", err)
	}
	return saved, nil
}

// GetValidAccessToken returns a usable token, refreshing it if it is about to expire.
// The connection row decides whether the user is connected; the cache only supplies the token.
func (s *Service) GetValidAccessToken(ctx context.Context, userID uint) (*AccessToken, error) {
	conn, err := s.db.GetConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil || !conn.IsActive {
		s.evict(ctx, userID)
		return nil, ErrNotConnected
	}

	if !time.Now().Before(conn.RefreshTokenExpiresAt) {
		s.deactivate(ctx, userID)
		return nil, ErrRefreshTokenExpired
	}

	if cached, err := s.cache.Get(ctx, userID); err == nil && cached.RealmID == conn.RealmID && !expiringSoon(cached.ExpiresAt) {
		return cached, nil
	}

	if expiringSoon(conn.AccessTokenExpiresAt) {
		return s.refresh(ctx, conn)
	}

	return s.cacheToken(ctx, userID, conn), nil
}

// RefreshAccessToken forces a refresh of the user's access token
func (s *Service) RefreshAccessToken(ctx context.Context, userID uint) (*AccessToken, error) {
	conn, err := s.db.GetConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil || !conn.IsActive {
		return nil, ErrNotConnected
	}
	return s.refresh(ctx, conn)
}

func (s *Service) refresh(ctx context.Context, conn *models.QuickBooksConnection) (*AccessToken, error) {
	src := s.oauth.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: conn.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		tokenErr := newTokenError("refresh", err)
		if tokenErr.Code == "invalid_grant" {
			// the refresh token was revoked or rotated elsewhere
			s.deactivate(ctx, conn.UserID)
			return nil, fmt.Errorf("%w: %w", ErrRefreshTokenExpired, tokenErr)
		}
		return nil, tokenErr
	}

	now := time.Now()
	conn.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		conn.RefreshToken = tok.RefreshToken
	}
	conn.AccessTokenExpiresAt = accessExpiry(tok, now)
	conn.RefreshTokenExpiresAt = refreshExpiry(tok, now)

	if err := s.db.UpdateConnectionTokens(ctx, conn.UserID, conn.AccessToken, conn.RefreshToken, conn.AccessTokenExpiresAt, conn.RefreshTokenExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	s.logger.WithField("user_id", conn.UserID).Debug("QuickBooks access token refreshed")
	return s.cacheToken(ctx, conn.UserID, conn), nil
}

// Disconnect revokes the refresh token and deactivates the connection.
// Mappings and sync history are kept.
func (s *Service) Disconnect(ctx context.Context, userID uint) error {
	conn, err := s.db.GetConnection(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil {
		return nil
	}

	if conn.IsActive && conn.RefreshToken != "" {
		if err := s.revokeToken(ctx, conn.RefreshToken); err != nil {
			s.logger.WithField("user_id", userID).WithError(err).Warn("failed to revoke QuickBooks token")
		}
	}

	if err := s.db.DeactivateConnection(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}
	s.evict(ctx, userID)

	s.logger.WithField("user_id", userID).Info("QuickBooks disconnected")
	return nil
}

// GetConnectionStatus reports whether the user is connected and to which company
func (s *Service) GetConnectionStatus(ctx context.Context, userID uint) (*ConnectionStatus, error) {
	status := &ConnectionStatus{Configured: true}

	conn, err := s.db.GetConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil || !conn.IsActive {
		return status, nil
	}

	status.Connected = true
	status.RealmID = conn.RealmID
	status.Environment = conn.Environment
	status.LastSyncAt = conn.LastSyncAt
	refreshExpires := conn.RefreshTokenExpiresAt
	status.RefreshTokenExpiresAt = &refreshExpires
	return status, nil
}

// revokeToken revokes a token with QuickBooks
func (s *Service) revokeToken(ctx context.Context, token string) error {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RevokeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("revoke request failed with status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func (s *Service) deactivate(ctx context.Context, userID uint) {
	if err := s.db.DeactivateConnection(ctx, userID); err != nil {
		config.LogError(s.logger, "auth", "deactivate", "deactivate connection", map[string]uint{"user_id": userID}, err)
	}
	s.evict(ctx, userID)
	s.logger.WithField("user_id", userID).Warn("QuickBooks connection deactivated, reconnect required")
}

func (s *Service) evict(ctx context.Context, userID uint) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.WithField("user_id", userID).WithError(err).Warn("failed to evict cached token")
	}
}

func (s *Service) cacheToken(ctx context.Context, userID uint, conn *models.QuickBooksConnection) *AccessToken {
	tok := &AccessToken{
		Token:       conn.AccessToken,
		RealmID:     conn.RealmID,
		Environment: conn.Environment,
		ExpiresAt:   conn.AccessTokenExpiresAt,
	}
	if err := s.cache.Set(ctx, userID, tok); err != nil {
		s.logger.WithField("user_id", userID).WithError(err).Warn("failed to cache token")
	}
	return tok
}

// clientContext routes x/oauth2 requests through the service's HTTP client
func (s *Service) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func expiringSoon(expiresAt time.Time) bool {
	return time.Until(expiresAt) < expirySkew
}

func newTokenError(op string, err error) *TokenError {
	tokenErr := &TokenError{Op: op, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		tokenErr.Code = re.ErrorCode
		tokenErr.Description = re.ErrorDescription
	}
	return tokenErr
}

func accessExpiry(tok *oauth2.Token, now time.Time) time.Time {
	if tok.Expiry.IsZero() {
		return now.Add(defaultAccessTokenLifetime)
	}
	return tok.Expiry
}

// refreshExpiry reads Intuit's x_refresh_token_expires_in extension field
func refreshExpiry(tok *oauth2.Token, now time.Time) time.Time {
	var seconds int64
	switch v := tok.Extra("x_refresh_token_expires_in").(type) {
	case float64:
		seconds = int64(v)
	case json.Number:
		seconds, _ = v.Int64()
	case string:
		seconds, _ = strconv.ParseInt(v, 10, 64)
	}
	if seconds <= 0 {
		return now.Add(defaultRefreshTokenLifetime)
	}
	return now.Add(time.Duration(seconds) * time.Second)
}
