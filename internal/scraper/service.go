package scraper

import (
	"context"
	"errors"
)

// ErrNoMetadata is returned when no resolver produced a title.
var ErrNoMetadata = errors.New("no metadata found")

// Metadata is the display information for a playlist item.
type Metadata struct {
	Title     string
	Thumbnail string
}

// Resolver fetches display metadata for a URL.
type Resolver interface {
	// Resolve returns the title and thumbnail for url. Implementations
	// return an error when they could not find a title.
	Resolve(ctx context.Context, url string) (Metadata, error)
}
