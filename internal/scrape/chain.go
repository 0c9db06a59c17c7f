package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries scrapers in order and returns the first success. With a local
// and a rendering scraper this is a single fallback.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

func (c *Chain) Name() string { return "chain" }

// Supports reports whether any scraper in the chain accepts url.
func (c *Chain) Supports(url string) bool {
	for _, s := range c.scrapers {
		if s.Supports(url) {
			return true
		}
	}
	return false
}

// Scrape fetches targetURL with the first scraper that succeeds.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var lastErr error
	for i, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			if i > 0 {
				zap.L().Info("scrape: fallback succeeded",
					zap.String("scraper", s.Name()),
					zap.String("url", targetURL),
				)
			}
			return result, nil
		}
		if err == nil {
			err = eris.Errorf("scrape: %s returned no page", s.Name())
		}
		zap.L().Warn("scrape: scraper failed, trying next",
			zap.String("scraper", s.Name()),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}
