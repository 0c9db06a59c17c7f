// Package analysis serves structured company analyses from a cache with a
// fixed validity window, fetching and analyzing the website on a miss.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/scrape"
	"github.com/deepbiz/directory/internal/store"
)

// DefaultTTL is how long an analysis stays valid.
const DefaultTTL = 90 * 24 * time.Hour

// Response is the outcome of a lookup or an analysis.
type Response struct {
	Entry  *model.CompanyAnalysis
	Cached bool
	// Usage and Cost are set when the analysis ran in this request.
	Usage *model.TokenUsage
	Cost  float64
}

// Service implements cache lookup with read-through analysis.
type Service struct {
	store    store.Store
	fetcher  scrape.Scraper
	analyzer Analyzer
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the validity window of new entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. fetcher is usually a scrape.Chain of the
// local and rendering scrapers.
func NewService(st store.Store, fetcher scrape.Scraper, analyzer Analyzer, opts ...Option) *Service {
	s := &Service{
		store:    st,
		fetcher:  fetcher,
		analyzer: analyzer,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached analysis for domain, counting the hit, or analyzes
// https://<domain> when no valid entry exists.
func (s *Service) Get(ctx context.Context, domain string) (*Response, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	if resp, err := s.lookup(ctx, d); resp != nil || err != nil {
		return resp, err
	}
	return s.refresh(ctx, "https://"+d, d)
}

// Analyze analyzes companyURL. With force the cache is bypassed and any
// entry is overwritten; without it a valid entry is served as a hit.
func (s *Service) Analyze(ctx context.Context, companyURL string, force bool) (*Response, error) {
	target, d, err := NormalizeURL(companyURL)
	if err != nil {
		return nil, err
	}
	if !force {
		if resp, err := s.lookup(ctx, d); resp != nil || err != nil {
			return resp, err
		}
	}
	return s.refresh(ctx, target, d)
}

// lookup serves a valid entry, counting the hit, or evicts an expired one.
// A nil response means a miss.
func (s *Service) lookup(ctx context.Context, domain string) (*Response, error) {
	now := s.clock()

	hit, err := s.store.RecordAnalysisHit(ctx, domain, now)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: record hit")
	}
	if hit != nil {
		zap.L().Info("analysis: cache hit",
			zap.String("domain", domain),
			zap.Int("cache_hit_count", hit.HitCount),
		)
		return &Response{Entry: hit, Cached: true}, nil
	}

	stale, err := s.store.GetAnalysis(ctx, domain)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: get entry")
	}
	if stale != nil && !stale.ValidAt(now) {
		// A concurrent refresh may have replaced the row since the read.
		evicted, err := s.store.DeleteExpiredAnalysis(ctx, domain, now)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: evict expired entry")
		}
		if evicted {
			zap.L().Info("analysis: evicted expired entry",
				zap.String("domain", domain),
				zap.Time("expires_at", stale.ExpiresAt),
			)
		}
	}

	zap.L().Info("analysis: cache miss", zap.String("domain", domain))
	return nil, nil
}

// refresh fetches, analyzes and upserts. Nothing is written unless both
// steps succeed.
func (s *Service) refresh(ctx context.Context, target, domain string) (*Response, error) {
	page, err := s.fetcher.Scrape(ctx, target)
	if err != nil {
		return nil, stageErr(ErrFetch, err)
	}

	result, err := s.analyzer.Analyze(ctx, target, page.Page.Text)
	if err != nil {
		return nil, stageErr(ErrAnalyze, err)
	}

	now := s.clock()
	entry := &model.CompanyAnalysis{
		Domain:         domain,
		URL:            target,
		Analysis:       result.Analysis,
		AnalyzedAt:     now,
		ExpiresAt:      now.Add(s.ttl),
		HitCount:       0,
		LastAccessedAt: now,
	}
	if err := s.store.UpsertAnalysis(ctx, entry); err != nil {
		return nil, eris.Wrap(err, "analysis: save entry")
	}

	zap.L().Info("analysis: analyzed company",
		zap.String("domain", domain),
		zap.String("scraper", page.Source),
		zap.Int("input_tokens", result.Usage.Input),
		zap.Int("output_tokens", result.Usage.Output),
		zap.Float64("cost_usd", result.Cost),
	)

	usage := result.Usage
	return &Response{Entry: entry, Cached: false, Usage: &usage, Cost: result.Cost}, nil
}

// Stats summarizes the cache with the top entries by hit count.
func (s *Service) Stats(ctx context.Context, top int) (*model.CacheStats, error) {
	stats, err := s.store.AnalysisStats(ctx, s.clock(), top)
	return stats, eris.Wrap(err, "analysis: stats")
}

// Sweep deletes every expired entry.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredAnalyses(ctx, s.clock())
	if err != nil {
		return 0, eris.Wrap(err, "analysis: sweep")
	}
	zap.L().Info("analysis: swept expired entries", zap.Int("deleted", n))
	return n, nil
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				zap.L().Warn("analysis: periodic sweep failed", zap.Error(err))
			}
		}
	}
}

// clock returns the current time at the precision both stores keep.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
