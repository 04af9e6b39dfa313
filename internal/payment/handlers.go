package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/respond"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/gorilla/mux"
)

// Handler exposes payment sync over HTTP
type Handler struct {
	service *Service
}

// NewHandler creates the HTTP handlers for payment sync
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SyncHandler pushes the payment named in the path
func (h *Handler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.SyncPayment(r.Context(), auth.GetUserID(r.Context()), paymentID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.SyncSuccess(w, result)
}

// PollHandler runs an inbound poll for the caller right away
func (h *Handler) PollHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.PollPayments(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	respond.SyncSuccess(w, result)
}

// StatusHandler reports the sync status of a payment
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r)
	if !ok {
		return
	}
	status, err := h.service.GetPaymentSyncStatus(r.Context(), auth.GetUserID(r.Context()), paymentID)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, status)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		respond.Error(w, http.StatusBadRequest, "Invalid payment id")
		return 0, false
	}
	return uint(id), true
}

func writeError(w http.ResponseWriter, err error) {
	code := qbclient.HTTPStatus(err)
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrInvoiceNotSynced):
		code = http.StatusUnprocessableEntity
	}
	respond.SyncFailure(w, code, err, qbclient.ErrorCode(err))
}
