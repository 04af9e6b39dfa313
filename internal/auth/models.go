// auth/models.go
package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured means the QuickBooks app credentials are missing
	ErrNotConfigured = errors.New("quickbooks: app credentials not configured")
	// ErrNotConnected means the user has no active QuickBooks connection
	ErrNotConnected = errors.New("quickbooks: no active connection")
	// ErrRefreshTokenExpired means the connection can no longer be refreshed and was deactivated
	ErrRefreshTokenExpired = fmt.Errorf("%w: refresh token expired, reconnect required", ErrNotConnected)
	// ErrMissingRealm means the OAuth callback did not carry a company id
	ErrMissingRealm = errors.New("quickbooks: callback is missing realmId")
)

// AccessToken is a usable bearer token for one company
type AccessToken struct {
	Token       string    `json:"token"`
	RealmID     string    `json:"realm_id"`
	Environment string    `json:"environment"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenError reports a rejection from the Intuit token endpoint
type TokenError struct {
	Op          string
	Code        string
	Description string
	Err         error
}

func (e *TokenError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("token %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("token %s failed: %v", e.Op, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// ConnectionStatus summarizes a user's connection for the UI
type ConnectionStatus struct {
	Configured            bool       `json:"configured"`
	Connected             bool       `json:"connected"`
	RealmID               string     `json:"realmId,omitempty"`
	Environment           string     `json:"environment,omitempty"`
	LastSyncAt            *time.Time `json:"lastSyncAt,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refreshTokenExpiresAt,omitempty"`
}
