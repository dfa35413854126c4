package bookshelf

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when the requested bookmark or review does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned when a request fails validation.
	ErrInvalid = errors.New("invalid request")
)

// Store persists bookmarks and reviews.
type Store interface {
	CreateBookmark(ctx context.Context, b *Bookmark) error
	GetBookmark(ctx context.Context, id string) (*Bookmark, error)
	ListBookmarks(ctx context.Context, status Status) ([]*Bookmark, error)
	UpdateBookmark(ctx context.Context, b *Bookmark) error
	DeleteBookmark(ctx context.Context, id string) error

	UpsertReview(ctx context.Context, r *Review) error
	GetReview(ctx context.Context, bookmarkID string) (*Review, error)
	DeleteReview(ctx context.Context, bookmarkID string) error

	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	work_key   TEXT NOT NULL DEFAULT '',
	cover_id   INTEGER NOT NULL DEFAULT 0,
	page       INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'to-read',
	notes      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS reviews (
	id          TEXT PRIMARY KEY,
	bookmark_id TEXT NOT NULL UNIQUE REFERENCES bookmarks(id) ON DELETE CASCADE,
	rating      INTEGER NOT NULL,
	body        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookmarks_status ON bookmarks(status);
`

// sqliteStore is the production Store backed by a local SQLite database.
type sqliteStore struct {
	db *sql.DB
}

// OpenStore opens (and if necessary creates) the database at path and
// applies the schema. Use ":memory:" for an ephemeral store.
func OpenStore(path string) (Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc.org/sqlite serializes access itself; a single connection
	// avoids table-lock errors under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) CreateBookmark(ctx context.Context, b *Bookmark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (id, title, author, work_key, cover_id, page, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.Author, b.WorkKey, b.CoverID, b.Page, b.Status, b.Notes,
		b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetBookmark(ctx context.Context, id string) (*Bookmark, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, work_key, cover_id, page, status, notes, created_at, updated_at
		FROM bookmarks WHERE id = ?`, id)
	return scanBookmark(row)
}

func (s *sqliteStore) ListBookmarks(ctx context.Context, status Status) ([]*Bookmark, error) {
	query := `
		SELECT id, title, author, work_key, cover_id, page, status, notes, created_at, updated_at
		FROM bookmarks`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []*Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateBookmark(ctx context.Context, b *Bookmark) error {
	b.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookmarks
		SET title = ?, author = ?, work_key = ?, cover_id = ?, page = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		b.Title, b.Author, b.WorkKey, b.CoverID, b.Page, b.Status, b.Notes, b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("update bookmark: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStore) DeleteBookmark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStore) UpsertReview(ctx context.Context, r *Review) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, bookmark_id, rating, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bookmark_id) DO UPDATE SET
			rating = excluded.rating,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		r.ID, r.BookmarkID, r.Rating, r.Body, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetReview(ctx context.Context, bookmarkID string) (*Review, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bookmark_id, rating, body, created_at, updated_at
		FROM reviews WHERE bookmark_id = ?`, bookmarkID)

	var r Review
	err := row.Scan(&r.ID, &r.BookmarkID, &r.Rating, &r.Body, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan review: %w", err)
	}
	return &r, nil
}

func (s *sqliteStore) DeleteReview(ctx context.Context, bookmarkID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE bookmark_id = ?", bookmarkID)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row rowScanner) (*Bookmark, error) {
	var b Bookmark
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.WorkKey, &b.CoverID, &b.Page,
		&b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan bookmark: %w", err)
	}
	return &b, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
