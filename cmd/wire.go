package main

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/deepbiz/directory/internal/analysis"
	"github.com/deepbiz/directory/internal/business"
	"github.com/deepbiz/directory/internal/resilience"
	"github.com/deepbiz/directory/internal/resolve"
	"github.com/deepbiz/directory/internal/scrape"
	"github.com/deepbiz/directory/internal/source"
	"github.com/deepbiz/directory/internal/store"
	"github.com/deepbiz/directory/pkg/anthropic"
	"github.com/deepbiz/directory/pkg/google"
	"github.com/deepbiz/directory/pkg/jina"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func newMatcher() (*resolve.Matcher, error) {
	policy, err := resolve.PolicyByName(cfg.Match.Policy, cfg.Match.Threshold)
	if err != nil {
		return nil, err
	}
	return resolve.NewMatcher(policy, resolve.WithWeights(cfg.Match.AddressWeight, cfg.Match.NameWeight)), nil
}

func newIngestor(st store.Store, m *resolve.Matcher) *business.Ingestor {
	return business.NewIngestor(st, m,
		business.WithMode(business.UpdateMode(cfg.Ingest.UpdateMode)),
		business.WithCandidateLimit(cfg.Match.CandidateLimit),
	)
}

func newMergePass(st store.Store, m *resolve.Matcher) *business.MergePass {
	return business.NewMergePass(st, m, cfg.Match.CandidateLimit)
}

func ingestBackoff() resilience.Backoff {
	b := resilience.DefaultBackoff()
	b.Attempts = cfg.Ingest.RetryAttempts
	if cfg.Ingest.RetryBackoffMs > 0 {
		b.Initial = time.Duration(cfg.Ingest.RetryBackoffMs) * time.Millisecond
	}
	return b
}

func newListingAdapter() *source.ListingAdapter {
	opts := []source.ListingOption{
		source.WithRetry(ingestBackoff()),
		source.WithRecycleEvery(cfg.Ingest.RecycleEvery),
		source.WithMaxPages(cfg.Ingest.MaxPages),
	}
	if d := cfg.Ingest.RequestInterval(); d > 0 {
		opts = append(opts, source.WithLimiter(rate.NewLimiter(rate.Every(d), 1)))
	}
	return source.NewListingAdapter(opts...)
}

func newPlacesAdapter() *source.PlacesAdapter {
	client := google.NewClient(cfg.Google.PlacesKey,
		google.WithLocale(cfg.Google.Language, cfg.Google.Region),
		google.WithBackoff(ingestBackoff()),
	)
	return source.NewPlacesAdapter(client, cfg.Google.MaxPages)
}

func newFetcher() scrape.Scraper {
	local := scrape.NewLocalScraper(
		scrape.WithTimeout(seconds(cfg.Fetch.LocalTimeoutSecs)),
		scrape.WithMaxChars(cfg.Fetch.MaxChars),
		scrape.WithMinChars(cfg.Fetch.MinChars),
	)

	jinaOpts := []jina.Option{jina.WithRenderTimeout(seconds(cfg.Fetch.RenderedTimeoutSecs))}
	if cfg.Jina.BaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithBaseURL(cfg.Jina.BaseURL))
	}
	rendered := scrape.NewJinaAdapter(jina.NewClient(cfg.Jina.Key, jinaOpts...), cfg.Fetch.MaxChars)

	return scrape.NewChain(local, rendered)
}

func newAnalyzer() *analysis.LLMAnalyzer {
	opts := []option.RequestOption{
		option.WithRequestTimeout(seconds(cfg.Anthropic.TimeoutSecs)),
		option.WithMaxRetries(cfg.Anthropic.MaxRetries),
	}
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	client := anthropic.NewClient(cfg.Anthropic.Key, opts...)
	pricing := anthropic.PricingFor(cfg.Anthropic.Model, cfg.Pricing.Anthropic)
	return analysis.NewLLMAnalyzer(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Fetch.MaxChars, pricing)
}

func newAnalysisService(st store.Store) *analysis.Service {
	opts := []analysis.Option{}
	if ttl := cfg.Cache.TTL(); ttl > 0 {
		opts = append(opts, analysis.WithTTL(ttl))
	}
	return analysis.NewService(st, newFetcher(), newAnalyzer(), opts...)
}
