package bookshelf

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service is the domain API consumed by the HTTP handlers.
type Service interface {
	Create(ctx context.Context, req CreateBookmarkRequest) (*Bookmark, error)
	Get(ctx context.Context, id string) (*Bookmark, error)
	List(ctx context.Context, status Status) ([]*Bookmark, error)
	Update(ctx context.Context, id string, req UpdateBookmarkRequest) (*Bookmark, error)
	Delete(ctx context.Context, id string) error

	WriteReview(ctx context.Context, bookmarkID string, req UpsertReviewRequest) (*Review, error)
	GetReview(ctx context.Context, bookmarkID string) (*Review, error)
	DeleteReview(ctx context.Context, bookmarkID string) error
}

type service struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates the bookshelf service on top of a Store.
func NewService(store Store, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		store:    store,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "bookshelf")),
	}
}

func (s *service) Create(ctx context.Context, req CreateBookmarkRequest) (*Bookmark, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	now := time.Now().UTC()
	b := &Bookmark{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Author:    req.Author,
		WorkKey:   req.WorkKey,
		CoverID:   req.CoverID,
		Status:    req.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if b.Status == "" {
		b.Status = StatusToRead
	}

	if err := s.store.CreateBookmark(ctx, b); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "bookmark created",
		slog.String("id", b.ID),
		slog.String("title", b.Title))
	return b, nil
}

func (s *service) Get(ctx context.Context, id string) (*Bookmark, error) {
	return s.store.GetBookmark(ctx, id)
}

func (s *service) List(ctx context.Context, status Status) ([]*Bookmark, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	return s.store.ListBookmarks(ctx, status)
}

func (s *service) Update(ctx context.Context, id string, req UpdateBookmarkRequest) (*Bookmark, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	b, err := s.store.GetBookmark(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		b.Title = *req.Title
	}
	if req.Author != nil {
		b.Author = *req.Author
	}
	if req.Page != nil {
		b.Page = *req.Page
	}
	if req.Status != nil {
		b.Status = *req.Status
	}
	if req.Notes != nil {
		b.Notes = *req.Notes
	}
	if req.CoverID != nil {
		b.CoverID = *req.CoverID
	}

	if err := s.store.UpdateBookmark(ctx, b); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "bookmark updated",
		slog.String("id", b.ID),
		slog.String("status", string(b.Status)),
		slog.Int("page", b.Page))
	return b, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteBookmark(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "bookmark deleted", slog.String("id", id))
	return nil
}

func (s *service) WriteReview(ctx context.Context, bookmarkID string, req UpsertReviewRequest) (*Review, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// The bookmark must exist; the foreign key would catch it anyway but
	// this turns it into a clean not-found.
	if _, err := s.store.GetBookmark(ctx, bookmarkID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r := &Review{
		ID:         uuid.New().String(),
		BookmarkID: bookmarkID,
		Rating:     req.Rating,
		Body:       req.Body,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertReview(ctx, r); err != nil {
		return nil, err
	}

	// The upsert may have kept an earlier review row; return what is stored.
	stored, err := s.store.GetReview(ctx, bookmarkID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "review written",
		slog.String("bookmark_id", bookmarkID),
		slog.Int("rating", req.Rating))
	return stored, nil
}

func (s *service) GetReview(ctx context.Context, bookmarkID string) (*Review, error) {
	return s.store.GetReview(ctx, bookmarkID)
}

func (s *service) DeleteReview(ctx context.Context, bookmarkID string) error {
	return s.store.DeleteReview(ctx, bookmarkID)
}
