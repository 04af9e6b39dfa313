// auth/handlers.go
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/eGGnogSC/qbsync/internal/respond"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

const stateTTL = 10 * time.Minute

// Handler provides HTTP handlers for auth flows. service is nil when the
// QuickBooks app credentials are not configured.
type Handler struct {
	service  *Service
	sessions sessions.Store
	logger   logrus.FieldLogger
}

// NewHandler creates a new auth handler
func NewHandler(service *Service, store sessions.Store, logger logrus.FieldLogger) *Handler {
	return &Handler{
		service:  service,
		sessions: store,
		logger:   logger,
	}
}

// generateState creates a secure random state for OAuth
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ConnectHandler initiates the QuickBooks authorization flow
func (h *Handler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respond.SyncFailure(w, http.StatusServiceUnavailable, ErrNotConfigured, "NOT_CONFIGURED")
		return
	}
	userID := GetUserID(r.Context())
	if userID == 0 {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	state, err := generateState()
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "Failed to generate state")
		return
	}

	// the callback arrives as a browser redirect, so the user travels in the session
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["qb_state"] = state
	session.Values["qb_state_expiry"] = time.Now().Add(stateTTL).Unix()
	session.Values["qb_user_id"] = uint64(userID)
	if err := session.Save(r, w); err != nil {
		respond.Error(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	http.Redirect(w, r, h.service.GetAuthorizationURL(state), http.StatusFound)
}

// CallbackHandler handles the OAuth callback from QuickBooks
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respond.SyncFailure(w, http.StatusServiceUnavailable, ErrNotConfigured, "NOT_CONFIGURED")
		return
	}

	query := r.URL.Query()
	if vendorErr := query.Get("error"); vendorErr != "" {
		respond.JSON(w, http.StatusBadRequest, respond.Failure{Error: "authorization was not granted", ErrorCode: vendorErr})
		return
	}
	code := query.Get("code")
	state := query.Get("state")
	realmID := query.Get("realmId")
	if code == "" || state == "" {
		respond.Error(w, http.StatusBadRequest, "Invalid callback parameters")
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	savedState, ok := session.Values["qb_state"].(string)
	if !ok || savedState != state {
		respond.Error(w, http.StatusBadRequest, "Invalid state parameter")
		return
	}
	expiry, ok := session.Values["qb_state_expiry"].(int64)
	if !ok || time.Now().Unix() > expiry {
		respond.Error(w, http.StatusBadRequest, "State parameter expired")
		return
	}
	rawUserID, ok := session.Values["qb_user_id"].(uint64)
	if !ok || rawUserID == 0 {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	userID := uint(rawUserID)

	delete(session.Values, "qb_state")
	delete(session.Values, "qb_state_expiry")
	delete(session.Values, "qb_user_id")
	if err := session.Save(r, w); err != nil {
		respond.Error(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	conn, err := h.service.ExchangeCodeForTokens(r.Context(), code, realmID, userID)
	if err != nil {
		var tokenErr *TokenError
		switch {
		case errors.As(err, &tokenErr):
			respond.SyncFailure(w, http.StatusBadRequest, err, tokenErr.Code)
		case errors.Is(err, ErrMissingRealm):
			respond.SyncFailure(w, http.StatusBadRequest, err, "MISSING_REALM")
		default:
			h.logger.WithField("user_id", userID).WithError(err).Error("token exchange failed")
			respond.SyncFailure(w, http.StatusInternalServerError, err, "")
		}
		return
	}

	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"realmId":     conn.RealmID,
		"environment": conn.Environment,
	})
}

// DisconnectHandler revokes QuickBooks tokens and deactivates the connection
func (h *Handler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respond.SyncFailure(w, http.StatusServiceUnavailable, ErrNotConfigured, "NOT_CONFIGURED")
		return
	}
	userID := GetUserID(r.Context())
	if userID == 0 {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.service.Disconnect(r.Context(), userID); err != nil {
		respond.SyncFailure(w, http.StatusInternalServerError, err, "")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusHandler returns the connection status
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respond.JSON(w, http.StatusOK, ConnectionStatus{})
		return
	}
	userID := GetUserID(r.Context())
	if userID == 0 {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	status, err := h.service.GetConnectionStatus(r.Context(), userID)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, status)
}
