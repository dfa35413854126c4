package http

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"shelfmark/internal/bookshelf"
	apierrors "shelfmark/internal/errors"
	"shelfmark/internal/exporter"
	"shelfmark/internal/websocket"
)

// ExportHandler renders the shelf to a workbook on demand.
type ExportHandler struct {
	workbook *exporter.Workbook
	service  bookshelf.Service
	hub      *websocket.Hub
	logger   *slog.Logger
}

// NewExportHandler creates an export handler. hub may be nil in tests.
func NewExportHandler(workbook *exporter.Workbook, service bookshelf.Service, hub *websocket.Hub, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{
		workbook: workbook,
		service:  service,
		hub:      hub,
		logger:   logger.With(slog.String("handler", "export")),
	}
}

// Routes mounts the export endpoints.
func (h *ExportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Export)
	return r
}

// ExportResponse names the produced workbook.
type ExportResponse struct {
	File string `json:"file"`
}

// Export handles POST /api/export. The workbook is written synchronously;
// shelves are small enough that this stays well under a second.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	path, err := h.workbook.Export(r.Context(), h.service)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "export failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.StorageError(err))
		return
	}

	file := filepath.Base(path)
	if h.hub != nil {
		h.hub.Broadcast(websocket.TypeExportReady, map[string]string{"file": file})
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ExportResponse{File: file})
}
