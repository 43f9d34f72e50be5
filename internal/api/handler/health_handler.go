package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable; *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db          Pinger
	initialized func() bool
}

func NewHealthHandler(db Pinger, initialized func() bool) *HealthHandler {
	return &HealthHandler{db: db, initialized: initialized}
}

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /ready. It fails until the database answers and the
// interest cache has completed its first load.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "interest_cache": "ok"}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.initialized != nil && !h.initialized() {
		checks["interest_cache"] = "loading"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, checks)
}
