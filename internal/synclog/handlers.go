package synclog

import (
	"net/http"
	"strconv"

	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/respond"
)

// Handler serves the sync history
type Handler struct {
	recorder *Recorder
}

// NewHandler creates the sync history handlers
func NewHandler(recorder *Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// HistoryHandler returns recent sync attempts as JSON
func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	logs, err := h.recorder.History(r.Context(), userID, filterFromQuery(r))
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, logs)
}

// ExportHandler streams the history as a spreadsheet
func (h *Handler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="quickbooks-sync-history.xlsx"`)
	if err := h.recorder.ExportHistory(r.Context(), userID, filterFromQuery(r), w); err != nil {
		respond.Error(w, http.StatusInternalServerError, err.Error())
	}
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	f := Filter{
		EntityType: q.Get("entityType"),
		Status:     q.Get("status"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = limit
	}
	if id, err := strconv.ParseUint(q.Get("entityId"), 10, 64); err == nil {
		f.EntityID = uint(id)
	}
	return f
}
