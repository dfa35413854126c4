package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"shelfmark/internal/bookshelf"
	apierrors "shelfmark/internal/errors"
	"shelfmark/internal/websocket"
)

// BookmarksHandler serves the shelf CRUD endpoints.
type BookmarksHandler struct {
	service bookshelf.Service
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewBookmarksHandler creates a bookmarks handler. hub may be nil in tests.
func NewBookmarksHandler(service bookshelf.Service, hub *websocket.Hub, logger *slog.Logger) *BookmarksHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookmarksHandler{
		service: service,
		hub:     hub,
		logger:  logger.With(slog.String("handler", "bookmarks")),
	}
}

// Routes mounts the bookmark endpoints.
func (h *BookmarksHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/review", h.GetReview)
	r.Put("/{id}/review", h.PutReview)
	r.Delete("/{id}/review", h.DeleteReview)
	return r
}

func (h *BookmarksHandler) notify(action, id string) {
	if h.hub != nil {
		h.hub.Broadcast(websocket.TypeBookmarkChange, map[string]string{
			"action": action,
			"id":     id,
		})
	}
}

// List handles GET /api/bookmarks?status=reading.
func (h *BookmarksHandler) List(w http.ResponseWriter, r *http.Request) {
	status := bookshelf.Status(r.URL.Query().Get("status"))

	bookmarks, err := h.service.List(r.Context(), status)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if bookmarks == nil {
		bookmarks = []*bookshelf.Bookmark{}
	}
	render.JSON(w, r, bookmarks)
}

// Create handles POST /api/bookmarks.
func (h *BookmarksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookshelf.CreateBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	b, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.notify("created", b.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, b)
}

// Get handles GET /api/bookmarks/{id}.
func (h *BookmarksHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, b)
}

// Update handles PATCH /api/bookmarks/{id}.
func (h *BookmarksHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req bookshelf.UpdateBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	b, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.notify("updated", b.ID)
	render.JSON(w, r, b)
}

// Delete handles DELETE /api/bookmarks/{id}.
func (h *BookmarksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}

	h.notify("deleted", id)
	render.NoContent(w, r)
}

// GetReview handles GET /api/bookmarks/{id}/review.
func (h *BookmarksHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.service.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, review)
}

// PutReview handles PUT /api/bookmarks/{id}/review.
func (h *BookmarksHandler) PutReview(w http.ResponseWriter, r *http.Request) {
	var req bookshelf.UpsertReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	id := chi.URLParam(r, "id")
	review, err := h.service.WriteReview(r.Context(), id, req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.notify("reviewed", id)
	render.JSON(w, r, review)
}

// DeleteReview handles DELETE /api/bookmarks/{id}/review.
func (h *BookmarksHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteReview(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *BookmarksHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, bookshelf.ErrNotFound):
		render.Render(w, r, apierrors.NotFoundError("Bookmark"))
	case errors.Is(err, bookshelf.ErrInvalid):
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
	default:
		h.logger.ErrorContext(r.Context(), "bookmark operation failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.StorageError(err))
	}
}
