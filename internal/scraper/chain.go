package scraper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Chain tries resolvers in order and returns the first result with a title.
// Each step runs under its own timeout so a slow provider cannot starve the
// ones after it.
type Chain struct {
	resolvers   []Resolver
	stepTimeout time.Duration
	log         logrus.FieldLogger
}

// NewChain creates a Chain. A zero stepTimeout disables per-step timeouts.
func NewChain(stepTimeout time.Duration, logger logrus.FieldLogger, resolvers ...Resolver) *Chain {
	return &Chain{
		resolvers:   resolvers,
		stepTimeout: stepTimeout,
		log:         logger.WithField("component", "scraper"),
	}
}

// Resolve implements Resolver. It returns ErrNoMetadata when every step fails;
// individual step errors are only logged.
func (c *Chain) Resolve(ctx context.Context, url string) (Metadata, error) {
	log := c.log.WithField("url", url)
	for i, r := range c.resolvers {
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		meta, err := c.step(ctx, r, url)
		if err == nil && meta.Title != "" {
			return meta, nil
		}
		log.WithError(err).WithField("step", i).Debug("Metadata step failed, trying next")
	}
	return Metadata{}, ErrNoMetadata
}

func (c *Chain) step(ctx context.Context, r Resolver, url string) (Metadata, error) {
	if c.stepTimeout <= 0 {
		return r.Resolve(ctx, url)
	}
	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()
	return r.Resolve(stepCtx, url)
}
