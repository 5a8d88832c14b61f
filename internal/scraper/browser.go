package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// BrowserResolver renders the page in a headless browser with rod. It is the
// last resort for pages that only set their title from JavaScript.
type BrowserResolver struct {
	log logrus.FieldLogger
}

// NewBrowserResolver creates a new BrowserResolver.
func NewBrowserResolver(logger logrus.FieldLogger) *BrowserResolver {
	return &BrowserResolver{
		log: logger.WithFields(logrus.Fields{"component": "scraper", "resolver": "browser"}),
	}
}

// Resolve implements Resolver. A browser is launched per call and closed
// before returning.
func (s *BrowserResolver) Resolve(ctx context.Context, url string) (meta Metadata, err error) {
	log := s.log.WithField("url", url)

	path, exists := launcher.LookPath()
	if !exists {
		return Metadata{}, errors.New("rod browser dependency not found")
	}
	l := launcher.New().Bin(path).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err = browser.Connect(); err != nil {
		return Metadata{}, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod browser instance")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod page")
		}
	}()

	if err = page.WaitLoad(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Metadata{}, fmt.Errorf("scraping timed out for %s: %w", url, ctx.Err())
		}
		return Metadata{}, fmt.Errorf("failed waiting for page load: %w", err)
	}

	info, err := page.Info()
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to get page info: %w", err)
	}
	meta.Title = strings.TrimSpace(info.Title)
	if meta.Title == "" {
		return Metadata{}, fmt.Errorf("browser: %w", ErrNoMetadata)
	}

	// Has does not wait for the element to appear, unlike Element.
	if found, el, hasErr := page.Has(`meta[property="og:image"]`); hasErr == nil && found {
		if content, attrErr := el.Attribute("content"); attrErr == nil && content != nil {
			meta.Thumbnail = strings.TrimSpace(*content)
		}
	}

	log.WithField("title", meta.Title).Debug("Extracted title via browser")
	return meta, nil
}
