// auth/middleware.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/eGGnogSC/qbsync/internal/respond"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// contextKey is a custom type for context keys
type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID extracts the user id from context, 0 when absent
func GetUserID(ctx context.Context) uint {
	userID, _ := ctx.Value(userIDKey).(uint)
	return userID
}

// UserMiddleware authenticates the end user. With a JWKS it verifies a bearer
// JWT and uses its subject; without one it trusts the X-User-ID header set by
// the fronting application.
type UserMiddleware struct {
	keys jwk.Set
}

// NewUserMiddleware fetches the key set when jwksURL is set
func NewUserMiddleware(ctx context.Context, jwksURL string) (*UserMiddleware, error) {
	if jwksURL == "" {
		return &UserMiddleware{}, nil
	}
	keys, err := jwk.Fetch(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load jwks: %w", err)
	}
	return &UserMiddleware{keys: keys}, nil
}

// Handler sets the user id in the request context
func (m *UserMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.authenticate(r)
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (m *UserMiddleware) authenticate(r *http.Request) (uint, error) {
	raw := r.Header.Get("X-User-ID")
	if m.keys != nil {
		token, err := jwt.ParseRequest(r, jwt.WithKeySet(m.keys))
		if err != nil {
			return 0, err
		}
		sub, ok := token.Subject()
		if !ok {
			return 0, errors.New("missing subject claim")
		}
		raw = sub
	}
	if raw == "" {
		return 0, errors.New("missing user id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return uint(id), nil
}

// RequireConnection rejects requests from users without a usable QuickBooks token
func RequireConnection(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil {
				respond.SyncFailure(w, http.StatusServiceUnavailable, ErrNotConfigured, "NOT_CONFIGURED")
				return
			}
			userID := GetUserID(r.Context())
			if userID == 0 {
				respond.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if _, err := service.GetValidAccessToken(r.Context(), userID); err != nil {
				respond.SyncFailure(w, http.StatusUnauthorized, err, "NOT_CONNECTED")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
