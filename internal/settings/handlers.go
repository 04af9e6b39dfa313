package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/respond"
	"github.com/shopspring/decimal"
)

// Handler exposes sync settings over HTTP
type Handler struct {
	service *Service
}

// NewHandler creates the settings HTTP handlers
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetHandler returns the user's settings
func (h *Handler) GetHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Get(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, settings)
}

// UpdateHandler applies a partial update
func (h *Handler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	var u Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := h.service.Update(r.Context(), auth.GetUserID(r.Context()), u)
	if err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		respond.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, settings)
}

// ShouldAutoSyncHandler answers whether an entity would be pushed automatically
func (h *Handler) ShouldAutoSyncHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var amount *decimal.Decimal
	if raw := q.Get("amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "Invalid amount")
			return
		}
		amount = &d
	}

	ok, err := h.service.ShouldAutoSync(r.Context(), auth.GetUserID(r.Context()), q.Get("type"), amount)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"shouldSync": ok})
}
