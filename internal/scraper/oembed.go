package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxOEmbedBody caps how much of an oEmbed response is read.
const maxOEmbedBody = 64 << 10

// OEmbedResolver queries an oEmbed-style endpoint: GET {endpoint}?url=...&format=json.
// Both provider endpoints (YouTube) and aggregators (noembed.com) share the
// response shape.
type OEmbedResolver struct {
	name     string
	endpoint string
	client   *http.Client
	log      logrus.FieldLogger
}

// NewOEmbedResolver creates a resolver for endpoint. name is used in logs only.
func NewOEmbedResolver(name, endpoint string, client *http.Client, logger logrus.FieldLogger) *OEmbedResolver {
	return &OEmbedResolver{
		name:     name,
		endpoint: endpoint,
		client:   client,
		log:      logger.WithFields(logrus.Fields{"component": "scraper", "resolver": name}),
	}
}

type oembedResponse struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	// Error is set by noembed.com, which answers 200 for unsupported URLs.
	Error string `json:"error"`
}

// Resolve implements Resolver.
func (r *OEmbedResolver) Resolve(ctx context.Context, target string) (Metadata, error) {
	q := url.Values{}
	q.Set("url", target)
	q.Set("format", "json")
	reqURL := r.endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("%s request failed: %w", r.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("%s returned status %d", r.name, resp.StatusCode)
	}

	var body oembedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOEmbedBody)).Decode(&body); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode %s response: %w", r.name, err)
	}
	if body.Error != "" {
		return Metadata{}, fmt.Errorf("%s: %s", r.name, body.Error)
	}

	title := strings.TrimSpace(body.Title)
	if title == "" {
		return Metadata{}, fmt.Errorf("%s: %w", r.name, ErrNoMetadata)
	}
	r.log.WithField("url", target).Debug("Resolved title via oEmbed")
	return Metadata{Title: title, Thumbnail: strings.TrimSpace(body.ThumbnailURL)}, nil
}
