package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sofragment/fragment/internal/model"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	Responder
	db  Pinger
	now func() time.Time
}

// NewSystemHandler creates a new SystemHandler. db may be nil, in which case
// readiness only reflects the process being up.
func NewSystemHandler(rs Responder, db Pinger) *SystemHandler {
	return &SystemHandler{Responder: rs, db: db, now: time.Now}
}

// Health is a liveness probe.
// GET /api/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC(),
	})
}

// Ready is a readiness probe. It returns 503 when the database cannot be
// reached.
// GET /api/ready
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "error: " + err.Error()
			if h.production {
				checks["database"] = "unreachable"
			}
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": h.now().UTC(),
		"checks":    checks,
	})
}
