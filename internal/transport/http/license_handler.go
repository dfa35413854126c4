// Package http contains the chi HTTP handlers for the API surface.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"shelfmark/internal/entitlement"
)

// Verifier is the slice of the orchestrator the license handler needs.
type Verifier interface {
	Current() entitlement.State
	CheckAgain()
	PurchaseRequested()
}

// LicenseHandler serves the entitlement endpoints.
type LicenseHandler struct {
	verifier    Verifier
	purchaseURL string
	logger      *slog.Logger
}

// NewLicenseHandler creates a license handler.
func NewLicenseHandler(verifier Verifier, purchaseURL string, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{
		verifier:    verifier,
		purchaseURL: purchaseURL,
		logger:      logger.With(slog.String("handler", "license")),
	}
}

// Routes mounts the license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.Post("/check", h.Check)
	r.Post("/purchase", h.Purchase)
	return r
}

// StatusResponse wraps the state for the UI.
type StatusResponse struct {
	State entitlement.State `json:"state"`
}

// Status handles GET /api/license/status.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, StatusResponse{State: h.verifier.Current()})
}

// Check handles POST /api/license/check. It kicks off a fresh verification
// cycle and returns immediately; progress arrives over the state stream.
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "manual license check requested")
	h.verifier.CheckAgain()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, StatusResponse{State: h.verifier.Current()})
}

// Purchase handles POST /api/license/purchase. It asks the orchestrator to
// open the store page and tells the client where it points.
func (h *LicenseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "purchase flow requested")
	h.verifier.PurchaseRequested()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"purchase_url": h.purchaseURL})
}
