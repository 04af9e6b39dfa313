// routes/routes.go
package routes

import (
	"net/http"

	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/customer"
	"github.com/eGGnogSC/qbsync/internal/invoice"
	"github.com/eGGnogSC/qbsync/internal/payment"
	"github.com/eGGnogSC/qbsync/internal/settings"
	"github.com/eGGnogSC/qbsync/internal/synclog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies are the handlers and middleware the router mounts
type Dependencies struct {
	AuthHandler     *auth.Handler
	AuthService     *auth.Service
	Users           *auth.UserMiddleware
	CustomerHandler *customer.Handler
	InvoiceHandler  *invoice.Handler
	PaymentHandler  *payment.Handler
	SettingsHandler *settings.Handler
	HistoryHandler  *synclog.Handler
	Health          http.Handler
	Logger          logrus.FieldLogger
}

// SetupRoutes configures all routes
func SetupRoutes(router *mux.Router, d Dependencies) {
	router.Use(RequestLogger(d.Logger))

	router.Handle("/health", d.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	RegisterAuthRoutes(router, d.AuthHandler, d.Users)

	api := router.PathPrefix("/api/quickbooks").Subrouter()
	api.Use(d.Users.Handler)

	// Reads of local state
	api.HandleFunc("/clients/{id:[0-9]+}/status", d.CustomerHandler.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id:[0-9]+}/status", d.InvoiceHandler.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id:[0-9]+}/status", d.PaymentHandler.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/settings", d.SettingsHandler.GetHandler).Methods(http.MethodGet)
	api.HandleFunc("/settings", d.SettingsHandler.UpdateHandler).Methods(http.MethodPut)
	api.HandleFunc("/auto-sync", d.SettingsHandler.ShouldAutoSyncHandler).Methods(http.MethodGet)
	api.HandleFunc("/history", d.HistoryHandler.HistoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/history/export", d.HistoryHandler.ExportHandler).Methods(http.MethodGet)

	// Anything that talks to QuickBooks needs a live connection
	live := api.NewRoute().Subrouter()
	live.Use(auth.RequireConnection(d.AuthService))
	RegisterSyncRoutes(live, d)
}

// RegisterSyncRoutes registers the routes that push to or pull from QuickBooks
func RegisterSyncRoutes(router *mux.Router, d Dependencies) {
	router.HandleFunc("/clients/sync", d.CustomerHandler.SyncAllHandler).Methods(http.MethodPost)
	router.HandleFunc("/clients/{id:[0-9]+}/sync", d.CustomerHandler.SyncHandler).Methods(http.MethodPost)
	router.HandleFunc("/invoices/sync", d.InvoiceHandler.SyncAllHandler).Methods(http.MethodPost)
	router.HandleFunc("/invoices/{id:[0-9]+}/sync", d.InvoiceHandler.SyncHandler).Methods(http.MethodPost)
	router.HandleFunc("/payments/poll", d.PaymentHandler.PollHandler).Methods(http.MethodPost)
	router.HandleFunc("/payments/{id:[0-9]+}/sync", d.PaymentHandler.SyncHandler).Methods(http.MethodPost)
}
