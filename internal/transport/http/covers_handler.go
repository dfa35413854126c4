package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"shelfmark/internal/covers"
	apierrors "shelfmark/internal/errors"
)

// CoversHandler serves cover search and image endpoints.
type CoversHandler struct {
	client     *covers.Client
	downloader *covers.Downloader
	logger     *slog.Logger
}

// NewCoversHandler creates a covers handler.
func NewCoversHandler(client *covers.Client, downloader *covers.Downloader, logger *slog.Logger) *CoversHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoversHandler{
		client:     client,
		downloader: downloader,
		logger:     logger.With(slog.String("handler", "covers")),
	}
}

// Routes mounts the cover endpoints.
func (h *CoversHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/search", h.Search)
	r.Get("/{coverID}/image", h.Image)
	return r
}

// Search handles GET /api/covers/search?q=...&limit=10.
func (h *CoversHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		render.Render(w, r, apierrors.ErrValidation("q", "query parameter is required"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.client.Search(r.Context(), query, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cover search failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.UpstreamError("Open Library", err))
		return
	}
	render.JSON(w, r, results)
}

// Image handles GET /api/covers/{coverID}/image?size=M. It serves the
// cached file, downloading it on first access.
func (h *CoversHandler) Image(w http.ResponseWriter, r *http.Request) {
	coverID, err := strconv.ParseInt(chi.URLParam(r, "coverID"), 10, 64)
	if err != nil || coverID <= 0 {
		render.Render(w, r, apierrors.ErrValidation("coverID", "must be a positive integer"))
		return
	}

	size := covers.Size(r.URL.Query().Get("size"))
	switch size {
	case covers.SizeSmall, covers.SizeMedium, covers.SizeLarge:
	case "":
		size = covers.SizeMedium
	default:
		render.Render(w, r, apierrors.ErrValidation("size", "must be S, M or L"))
		return
	}

	path, err := h.downloader.Fetch(r.Context(), coverID, size)
	if err != nil {
		h.logger.WarnContext(r.Context(), "cover fetch failed",
			slog.Int64("cover_id", coverID),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.UpstreamError("cover server", err))
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}
