package datasource

import (
	"context"
	"fmt"

	"github.com/seenimoa/marketpulse/pkg/models"
)

// TabularSource reads articles from a CSV or XLSX file with the columns
// id, date, title, link, content. id and title are required; the other
// columns may be missing and read as empty.
type TabularSource struct {
	path string
}

// NewTabularSource creates a source for the file at path.
func NewTabularSource(path string) *TabularSource {
	return &TabularSource{path: path}
}

// Name returns the file path.
func (s *TabularSource) Name() string { return s.path }

// Articles reads the whole file. Rows without an id are skipped; the file is
// re-read on every call.
func (s *TabularSource) Articles(ctx context.Context) ([]models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := readTable(s.path)
	if err != nil {
		return nil, err
	}

	idCol, ok := t.column("id")
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing column \"id\"", ErrMalformed, s.path)
	}
	titleCol, ok := t.column("title")
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing column \"title\"", ErrMalformed, s.path)
	}
	dateCol, _ := t.column("date")
	linkCol, _ := t.column("link", "url")
	contentCol, _ := t.column("content")

	articles := make([]models.Article, 0, len(t.rows))
	for _, row := range t.rows {
		id := cell(row, idCol)
		if id == "" {
			continue
		}
		articles = append(articles, models.Article{
			ID:      id,
			Date:    cell(row, dateCol),
			Title:   cell(row, titleCol),
			Link:    cell(row, linkCol),
			Content: cell(row, contentCol),
		})
	}
	return articles, nil
}
