package customer

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/respond"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/gorilla/mux"
)

// Handler exposes client sync over HTTP
type Handler struct {
	service *Service
}

// NewHandler creates the HTTP handlers for customer sync
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SyncHandler syncs the client named in the path
func (h *Handler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.SyncClient(r.Context(), auth.GetUserID(r.Context()), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.SyncSuccess(w, result)
}

// SyncAllHandler syncs every client of the caller
func (h *Handler) SyncAllHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SyncAllClients(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	respond.SyncSuccess(w, result)
}

// StatusHandler reports the sync status of a client
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	status, err := h.service.GetClientSyncStatus(r.Context(), auth.GetUserID(r.Context()), clientID)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, status)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		respond.Error(w, http.StatusBadRequest, "Invalid client id")
		return 0, false
	}
	return uint(id), true
}

func writeError(w http.ResponseWriter, err error) {
	code := qbclient.HTTPStatus(err)
	if errors.Is(err, ErrClientNotFound) {
		code = http.StatusNotFound
	}
	respond.SyncFailure(w, code, err, qbclient.ErrorCode(err))
}
