package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"
)

// maxPageBody caps how much HTML is read when scraping a page.
const maxPageBody = 2 << 20

// PageResolver downloads the page over plain HTTP and extracts its title and
// lead image with go-readability.
type PageResolver struct {
	client *http.Client
	log    logrus.FieldLogger
}

// NewPageResolver creates a PageResolver.
func NewPageResolver(client *http.Client, logger logrus.FieldLogger) *PageResolver {
	return &PageResolver{
		client: client,
		log:    logger.WithFields(logrus.Fields{"component": "scraper", "resolver": "page"}),
	}
}

// Resolve implements Resolver.
func (r *PageResolver) Resolve(ctx context.Context, target string) (Metadata, error) {
	log := r.log.WithField("url", target)

	parsedURL, err := url.Parse(target)
	if err != nil {
		return Metadata{}, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; w2gbot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Debug("Non-200 status while scraping")
		return Metadata{}, fmt.Errorf("page returned status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return Metadata{}, fmt.Errorf("not an HTML page: %q", contentType)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBody), parsedURL)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to parse page: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		return Metadata{}, fmt.Errorf("page: %w", ErrNoMetadata)
	}
	log.WithField("title", title).Debug("Extracted title")
	return Metadata{Title: title, Thumbnail: strings.TrimSpace(article.Image)}, nil
}
