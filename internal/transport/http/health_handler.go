package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"shelfmark/internal/entitlement"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// HealthHandler serves liveness and version endpoints. These stay outside
// the entitlement gate so monitoring works on an unlicensed install.
type HealthHandler struct {
	verifier Verifier
	started  time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(verifier Verifier) *HealthHandler {
	return &HealthHandler{verifier: verifier, started: time.Now()}
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string           `json:"status"`
	Uptime  string           `json:"uptime"`
	License entitlement.Kind `json:"license"`
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		License: h.verifier.Current().Kind,
	})
}

// VersionInfo handles GET /api/version.
func (h *HealthHandler) VersionInfo(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": Version})
}
