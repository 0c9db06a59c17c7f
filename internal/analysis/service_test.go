package analysis_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deepbiz/directory/internal/analysis"
	"github.com/deepbiz/directory/internal/analysis/mocks"
	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/scrape"
	"github.com/deepbiz/directory/internal/store"
	"github.com/deepbiz/directory/pkg/anthropic"
	anthropicmocks "github.com/deepbiz/directory/pkg/anthropic/mocks"
)

var t0 = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type stubScraper struct {
	name  string
	text  string
	err   error
	calls int
	urls  []string
}

func (s *stubScraper) Name() string           { return s.name }
func (s *stubScraper) Supports(_ string) bool { return true }
func (s *stubScraper) Scrape(_ context.Context, u string) (*scrape.Result, error) {
	s.calls++
	s.urls = append(s.urls, u)
	if s.err != nil {
		return nil, s.err
	}
	return &scrape.Result{Page: model.FetchedPage{URL: u, Domain: scrape.Domain(u), Text: s.text}, Source: s.name}, nil
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleResult(industry string) *analysis.Result {
	return &analysis.Result{
		Analysis: model.Analysis{
			BusinessDescription: "クリニック向け予約システムを提供",
			Industry:            industry,
			Strengths:           []string{"導入実績", "サポート"},
			TargetCustomers:     "美容クリニック",
			KeyTopics:           []string{"予約", "CRM"},
			CompanySize:         "中小企業",
			PainPoints:          []string{"人材不足"},
		},
		Usage: model.TokenUsage{Input: 5310, Output: 600, Total: 5910},
		Cost:  0.0123,
	}
}

type fixture struct {
	st       *store.SQLiteStore
	clock    *fakeClock
	local    *stubScraper
	rendered *stubScraper
	analyzer *mocks.MockAnalyzer
	svc      *analysis.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:       newStore(t),
		clock:    &fakeClock{now: t0},
		local:    &stubScraper{name: "local", text: "company text"},
		rendered: &stubScraper{name: "rendered", text: "rendered text"},
		analyzer: mocks.NewMockAnalyzer(t),
	}
	f.svc = analysis.NewService(f.st, scrape.NewChain(f.local, f.rendered), f.analyzer, analysis.WithClock(f.clock.Now))
	return f
}

func TestGet_MissThenHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.analyzer.On("Analyze", mock.Anything, "https://example.co.jp", "company text").Return(sampleResult("IT"), nil).Once()

	first, err := f.svc.Get(ctx, "www.example.co.jp")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "example.co.jp", first.Entry.Domain)
	assert.Equal(t, 0, first.Entry.HitCount)
	assert.Equal(t, t0, first.Entry.AnalyzedAt)
	assert.Equal(t, t0.Add(90*24*time.Hour), first.Entry.ExpiresAt)
	require.NotNil(t, first.Usage)
	assert.Equal(t, 5910, first.Usage.Total)

	f.clock.Advance(time.Hour)
	second, err := f.svc.Get(ctx, "example.co.jp")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, second.Entry.HitCount)
	assert.Equal(t, t0.Add(time.Hour), second.Entry.LastAccessedAt)
	assert.Equal(t, first.Entry.Analysis, second.Entry.Analysis)
	assert.Nil(t, second.Usage)

	third, err := f.svc.Get(ctx, "example.co.jp")
	require.NoError(t, err)
	assert.Equal(t, 2, third.Entry.HitCount)
	assert.Equal(t, 1, f.local.calls)
}

func TestGet_ExpiredEntryIsReanalyzed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.st.UpsertAnalysis(ctx, &model.CompanyAnalysis{
		Domain:         "example.co.jp",
		URL:            "https://example.co.jp",
		Analysis:       sampleResult("old").Analysis,
		AnalyzedAt:     t0.Add(-91 * 24 * time.Hour),
		ExpiresAt:      t0.Add(-24 * time.Hour),
		HitCount:       7,
		LastAccessedAt: t0.Add(-48 * time.Hour),
	}))
	f.analyzer.On("Analyze", mock.Anything, "https://example.co.jp", "company text").Return(sampleResult("new"), nil).Once()

	resp, err := f.svc.Get(ctx, "example.co.jp")
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 0, resp.Entry.HitCount)
	assert.Equal(t, "new", resp.Entry.Analysis.Industry)

	got, err := f.st.GetAnalysis(ctx, "example.co.jp")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Analysis.Industry)
	assert.Equal(t, 0, got.HitCount)
}

func TestGet_ExpiryBoundaryIsMiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.st.UpsertAnalysis(ctx, &model.CompanyAnalysis{
		Domain: "example.co.jp", URL: "https://example.co.jp", Analysis: sampleResult("old").Analysis,
		AnalyzedAt: t0.Add(-90 * 24 * time.Hour), ExpiresAt: t0, LastAccessedAt: t0,
	}))
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("model down")).Once()

	_, err := f.svc.Get(ctx, "example.co.jp")
	require.ErrorIs(t, err, analysis.ErrAnalyze)

	got, err := f.st.GetAnalysis(ctx, "example.co.jp")
	require.NoError(t, err)
	assert.Nil(t, got, "entry expiring at now is evicted")
}

// refreshedBehindStore replaces the entry with a fresh one right after the
// service reads the expired row, as a concurrent refresh would.
type refreshedBehindStore struct {
	*store.SQLiteStore
	fresh *model.CompanyAnalysis
}

func (s *refreshedBehindStore) GetAnalysis(ctx context.Context, domain string) (*model.CompanyAnalysis, error) {
	got, err := s.SQLiteStore.GetAnalysis(ctx, domain)
	if err != nil || s.fresh == nil {
		return got, err
	}
	if err := s.SQLiteStore.UpsertAnalysis(ctx, s.fresh); err != nil {
		return nil, err
	}
	s.fresh = nil
	return got, nil
}

func TestGet_EvictionSparesConcurrentRefresh(t *testing.T) {
	base := newStore(t)
	ctx := context.Background()

	require.NoError(t, base.UpsertAnalysis(ctx, &model.CompanyAnalysis{
		Domain: "example.co.jp", URL: "https://example.co.jp", Analysis: sampleResult("old").Analysis,
		AnalyzedAt: t0.Add(-91 * 24 * time.Hour), ExpiresAt: t0.Add(-24 * time.Hour), LastAccessedAt: t0.Add(-24 * time.Hour),
	}))
	st := &refreshedBehindStore{SQLiteStore: base, fresh: &model.CompanyAnalysis{
		Domain: "example.co.jp", URL: "https://example.co.jp", Analysis: sampleResult("fresh").Analysis,
		AnalyzedAt: t0, ExpiresAt: t0.Add(90 * 24 * time.Hour), LastAccessedAt: t0,
	}}

	failing := &stubScraper{name: "local", err: errors.New("status 503")}
	analyzer := mocks.NewMockAnalyzer(t)
	svc := analysis.NewService(st, scrape.NewChain(failing), analyzer, analysis.WithClock(func() time.Time { return t0 }))

	_, err := svc.Get(ctx, "example.co.jp")
	require.ErrorIs(t, err, analysis.ErrFetch)

	got, err := base.GetAnalysis(ctx, "example.co.jp")
	require.NoError(t, err)
	require.NotNil(t, got, "the concurrently written entry is kept")
	assert.Equal(t, "fresh", got.Analysis.Industry)
}

func TestGet_FallsBackToRenderedFetch(t *testing.T) {
	f := newFixture(t)
	f.local.err = errors.New("local_http: status 403")
	f.analyzer.On("Analyze", mock.Anything, "https://example.co.jp", "rendered text").Return(sampleResult("IT"), nil).Once()

	resp, err := f.svc.Get(context.Background(), "example.co.jp")
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, f.local.calls)
	assert.Equal(t, 1, f.rendered.calls)
}

func TestGet_FetchFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.local.err = errors.New("timeout")
	f.rendered.err = errors.New("render failed")

	_, err := f.svc.Get(context.Background(), "example.co.jp")
	require.ErrorIs(t, err, analysis.ErrFetch)
	assert.Contains(t, err.Error(), "render failed")
	f.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything)

	stats, err := f.svc.Stats(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestGet_UnparseableAnalysisWritesNothing(t *testing.T) {
	st := newStore(t)
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "申し訳ありませんが分析できません"}},
		Usage:   anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}, nil)

	llm := analysis.NewLLMAnalyzer(client, "claude-haiku-4-5", 0, 15000, anthropic.Pricing{})
	svc := analysis.NewService(st, &stubScraper{name: "local", text: "text"}, llm, analysis.WithClock(func() time.Time { return t0 }))

	_, err := svc.Get(context.Background(), "example.co.jp")
	require.ErrorIs(t, err, analysis.ErrAnalyze)
	assert.Contains(t, err.Error(), "申し訳ありません")

	got, err := st.GetAnalysis(context.Background(), "example.co.jp")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnalyze_ForceOverwritesAndResetsHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.analyzer.On("Analyze", mock.Anything, "https://example.co.jp", mock.Anything).Return(sampleResult("IT"), nil).Once()
	f.analyzer.On("Analyze", mock.Anything, "https://www.example.co.jp/about", mock.Anything).Return(sampleResult("Healthcare"), nil).Once()

	_, err := f.svc.Get(ctx, "example.co.jp")
	require.NoError(t, err)
	hit, err := f.svc.Get(ctx, "example.co.jp")
	require.NoError(t, err)
	require.Equal(t, 1, hit.Entry.HitCount)

	f.clock.Advance(24 * time.Hour)
	resp, err := f.svc.Analyze(ctx, "https://www.example.co.jp/about", true)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, "example.co.jp", resp.Entry.Domain)
	assert.Equal(t, "Healthcare", resp.Entry.Analysis.Industry)
	assert.Equal(t, 0, resp.Entry.HitCount)
	assert.Equal(t, t0.Add(24*time.Hour+90*24*time.Hour), resp.Entry.ExpiresAt)
	assert.InDelta(t, 0.0123, resp.Cost, 1e-9)

	got, err := f.st.GetAnalysis(ctx, "example.co.jp")
	require.NoError(t, err)
	assert.Equal(t, "Healthcare", got.Analysis.Industry)
	assert.Equal(t, "https://www.example.co.jp/about", got.URL)
	assert.Equal(t, 0, got.HitCount)
}

func TestAnalyze_UnforcedServesValidEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(sampleResult("IT"), nil).Once()

	_, err := f.svc.Analyze(ctx, "example.co.jp", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.co.jp"}, f.local.urls)

	resp, err := f.svc.Analyze(ctx, "https://example.co.jp", false)
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, resp.Entry.HitCount)
}

func TestService_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, "  ", true)
	require.ErrorIs(t, err, analysis.ErrInvalidInput)
	_, err = f.svc.Analyze(ctx, "ftp://example.co.jp", true)
	require.ErrorIs(t, err, analysis.ErrInvalidInput)
	_, err = f.svc.Get(ctx, "")
	require.ErrorIs(t, err, analysis.ErrInvalidInput)
	assert.Zero(t, f.local.calls)
}

func TestService_SweepAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, d := range []string{"a.jp", "b.jp", "c.jp"} {
		expires := t0.Add(time.Hour)
		if i == 0 {
			expires = t0.Add(-time.Hour)
		}
		require.NoError(t, f.st.UpsertAnalysis(ctx, &model.CompanyAnalysis{
			Domain: d, URL: "https://" + d, Analysis: sampleResult("IT").Analysis,
			AnalyzedAt: t0.Add(-time.Hour), ExpiresAt: expires, HitCount: i, LastAccessedAt: t0,
		}))
	}

	stats, err := f.svc.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Expired)
	require.Len(t, stats.Top, 3)
	assert.Equal(t, "c.jp", stats.Top[0].Domain)

	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err = f.svc.Stats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Zero(t, stats.Expired)
}

func TestService_RunSweeperStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.svc.RunSweeper(ctx, time.Millisecond) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
