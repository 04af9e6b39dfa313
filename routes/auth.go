// routes/auth.go
package routes

import (
	"net/http"

	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/gorilla/mux"
)

// RegisterAuthRoutes registers all authentication-related routes
func RegisterAuthRoutes(router *mux.Router, authHandler *auth.Handler, users *auth.UserMiddleware) {
	qb := router.PathPrefix("/auth/quickbooks").Subrouter()

	// The vendor redirects the browser here; the user is recovered from the session
	qb.HandleFunc("/callback", authHandler.CallbackHandler).Methods(http.MethodGet)

	protected := qb.NewRoute().Subrouter()
	protected.Use(users.Handler)
	protected.HandleFunc("/connect", authHandler.ConnectHandler).Methods(http.MethodGet)
	protected.HandleFunc("/disconnect", authHandler.DisconnectHandler).Methods(http.MethodPost)
	protected.HandleFunc("/status", authHandler.StatusHandler).Methods(http.MethodGet)
}
