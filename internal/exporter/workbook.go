// Package exporter renders the shelf as an Excel workbook for backup or
// sharing outside the app.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"shelfmark/internal/bookshelf"
)

// Workbook writes bookmarks and their reviews into an xlsx file.
type Workbook struct {
	dir    string
	logger *slog.Logger
}

// NewWorkbook creates an exporter writing into dir.
func NewWorkbook(dir string, logger *slog.Logger) *Workbook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workbook{
		dir:    dir,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

const (
	sheetShelf   = "Shelf"
	sheetReviews = "Reviews"
)

var shelfHeader = []string{"Title", "Author", "Status", "Page", "Notes", "Added", "Updated"}
var reviewHeader = []string{"Title", "Rating", "Review", "Written"}

// Export writes the workbook and returns its path. Reviews are looked up
// per finished bookmark; books without a review simply have no row on the
// Reviews sheet.
func (w *Workbook) Export(ctx context.Context, svc bookshelf.Service) (string, error) {
	bookmarks, err := svc.List(ctx, "")
	if err != nil {
		return "", fmt.Errorf("list bookmarks: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetShelf); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetReviews); err != nil {
		return "", fmt.Errorf("create reviews sheet: %w", err)
	}

	if err := writeRow(f, sheetShelf, 1, toInterfaces(shelfHeader)); err != nil {
		return "", err
	}
	if err := writeRow(f, sheetReviews, 1, toInterfaces(reviewHeader)); err != nil {
		return "", err
	}

	reviewRow := 2
	for i, b := range bookmarks {
		row := []interface{}{
			b.Title, b.Author, string(b.Status), b.Page, b.Notes,
			b.CreatedAt.Format("2006-01-02"),
			b.UpdatedAt.Format("2006-01-02"),
		}
		if err := writeRow(f, sheetShelf, i+2, row); err != nil {
			return "", err
		}

		review, err := svc.GetReview(ctx, b.ID)
		if err != nil {
			if err == bookshelf.ErrNotFound {
				continue
			}
			return "", fmt.Errorf("load review for %s: %w", b.ID, err)
		}
		rrow := []interface{}{
			b.Title, review.Rating, stripTags(review.Body),
			review.UpdatedAt.Format("2006-01-02"),
		}
		if err := writeRow(f, sheetReviews, reviewRow, rrow); err != nil {
			return "", err
		}
		reviewRow++
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("shelfmark-%s.xlsx", time.Now().Format("20060102-150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	w.logger.InfoContext(ctx, "shelf exported",
		slog.String("path", path),
		slog.Int("bookmarks", len(bookmarks)))
	return path, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("compute cell for row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d on %s: %w", row, sheet, err)
	}
	return nil
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// stripTags reduces rich-text review bodies to plain text for the cell.
// The editor emits a small, well-formed subset of HTML so a scan is enough.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
