package bookshelf

import (
	"time"
)

// Status tracks where a book sits on the shelf.
type Status string

const (
	StatusToRead   Status = "to-read"
	StatusReading  Status = "reading"
	StatusFinished Status = "finished"
)

// ValidStatus reports whether s is one of the known shelf states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusToRead, StatusReading, StatusFinished:
		return true
	}
	return false
}

// Bookmark is a book on the user's shelf together with reading progress.
type Bookmark struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	WorkKey   string    `json:"work_key,omitempty"`
	CoverID   int64     `json:"cover_id,omitempty"`
	Page      int       `json:"page"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Review is the user's write-up for a finished book. Body holds sanitized
// HTML produced by the rich-text editor.
type Review struct {
	ID         string    `json:"id"`
	BookmarkID string    `json:"bookmark_id"`
	Rating     int       `json:"rating"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateBookmarkRequest is the payload for adding a book to the shelf.
type CreateBookmarkRequest struct {
	Title   string `json:"title" validate:"required,max=512"`
	Author  string `json:"author" validate:"max=256"`
	WorkKey string `json:"work_key" validate:"max=64"`
	CoverID int64  `json:"cover_id" validate:"min=0"`
	Status  Status `json:"status" validate:"omitempty,oneof=to-read reading finished"`
}

// UpdateBookmarkRequest carries a partial update; nil fields are untouched.
type UpdateBookmarkRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=512"`
	Author  *string `json:"author" validate:"omitempty,max=256"`
	Page    *int    `json:"page" validate:"omitempty,min=0"`
	Status  *Status `json:"status" validate:"omitempty,oneof=to-read reading finished"`
	Notes   *string `json:"notes"`
	CoverID *int64  `json:"cover_id" validate:"omitempty,min=0"`
}

// UpsertReviewRequest creates or replaces the review for a bookmark.
type UpsertReviewRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Body   string `json:"body" validate:"max=65536"`
}
