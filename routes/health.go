package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/eGGnogSC/qbsync/internal/respond"
)

// Pinger is anything whose reachability can be checked
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports the last known state of a dependency
type HealthChecker interface {
	IsHealthy() bool
}

// HealthHandler reports database and, when configured, Redis health
type HealthHandler struct {
	db    Pinger
	redis HealthChecker
}

// NewHealthHandler creates a health handler. redis may be nil.
func NewHealthHandler(db Pinger, redis HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		body["status"] = "degraded"
		body["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	// Redis only backs the token cache, so losing it does not fail the check
	if h.redis != nil {
		body["redis"] = "ok"
		if !h.redis.IsHealthy() {
			body["redis"] = "unavailable"
		}
	}
	respond.JSON(w, code, body)
}
