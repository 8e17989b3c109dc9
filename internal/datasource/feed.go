package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/marketpulse/pkg/models"
)

// FeedSource reads articles from RSS/Atom feeds.
type FeedSource struct {
	urls   []string
	client *http.Client
	parser *gofeed.Parser
	logger *slog.Logger
}

// FeedOption configures a FeedSource.
type FeedOption func(*FeedSource)

// WithFeedHTTPClient sets a custom HTTP client.
func WithFeedHTTPClient(c *http.Client) FeedOption {
	return func(s *FeedSource) { s.client = c }
}

// WithFeedLogger sets the logger.
func WithFeedLogger(l *slog.Logger) FeedOption {
	return func(s *FeedSource) { s.logger = l }
}

// NewFeedSource creates a source over the given feed URLs.
func NewFeedSource(urls []string, opts ...FeedOption) *FeedSource {
	s := &FeedSource{
		urls:   urls,
		client: HTTPClient,
		parser: gofeed.NewParser(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns a short description of the configured feeds.
func (s *FeedSource) Name() string {
	return fmt.Sprintf("%d feed(s)", len(s.urls))
}

// Articles fetches every feed in order. A failing feed is skipped; the call
// fails only when no feed could be read. Items repeated across feeds are kept
// once.
func (s *FeedSource) Articles(ctx context.Context) ([]models.Article, error) {
	var (
		all  []models.Article
		errs []error
		seen = make(map[string]struct{})
	)
	for _, url := range s.urls {
		articles, err := s.fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Non-critical: skip failed feeds.
			s.logger.Warn("feed skipped", "url", url, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, a := range articles {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			all = append(all, a)
		}
	}
	if len(s.urls) > 0 && len(errs) == len(s.urls) {
		return nil, fmt.Errorf("datasource: all feeds failed: %w", errors.Join(errs...))
	}
	return all, nil
}

func (s *FeedSource) fetch(ctx context.Context, url string) ([]models.Article, error) {
	body, err := doGet(ctx, s.client, url, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := s.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed %s: %v", ErrMalformed, url, err)
	}

	articles := make([]models.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		a := models.Article{
			ID:      id,
			Title:   strings.TrimSpace(item.Title),
			Link:    item.Link,
			Content: cleanHTML(content),
		}
		if item.PublishedParsed != nil {
			a.Date = item.PublishedParsed.Format(time.DateOnly)
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// cleanHTML flattens an HTML fragment to whitespace-normalised text.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
