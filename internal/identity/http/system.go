package http

import (
	"net/http"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/httpx"
)

// SystemHandler serves the liveness and readiness probes.
type SystemHandler struct {
	Store        store.Store
	BuildVersion string
	StartTime    time.Time
}

type healthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HandleLivez handles GET /livez. Always 200 while the process is running.
func (h *SystemHandler) HandleLivez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.StartTime).String(),
		Version: h.BuildVersion,
	})
}

// HandleReadyz handles GET /readyz and checks database connectivity.
func (h *SystemHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	status := "ok"
	code := http.StatusOK

	if err := h.Store.Ping(r.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, healthResponse{
		Status:  status,
		Uptime:  time.Since(h.StartTime).String(),
		Version: h.BuildVersion,
		Checks:  checks,
	})
}
