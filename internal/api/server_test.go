package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deepbiz/directory/internal/analysis"
	"github.com/deepbiz/directory/internal/model"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Get(ctx context.Context, domain string) (*analysis.Response, error) {
	args := m.Called(ctx, domain)
	resp, _ := args.Get(0).(*analysis.Response)
	return resp, args.Error(1)
}

func (m *mockService) Analyze(ctx context.Context, companyURL string, force bool) (*analysis.Response, error) {
	args := m.Called(ctx, companyURL, force)
	resp, _ := args.Get(0).(*analysis.Response)
	return resp, args.Error(1)
}

var analyzedAt = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func entry(hits int) *model.CompanyAnalysis {
	return &model.CompanyAnalysis{
		Domain: "example.co.jp",
		URL:    "https://example.co.jp",
		Analysis: model.Analysis{
			BusinessDescription: "予約システム",
			Industry:            "IT・ソフトウェア",
			Strengths:           []string{"実績"},
			TargetCustomers:     "クリニック",
			KeyTopics:           []string{},
			CompanySize:         "中小企業",
			PainPoints:          []string{},
		},
		AnalyzedAt: analyzedAt,
		ExpiresAt:  analyzedAt.Add(analysis.DefaultTTL),
		HitCount:   hits,
	}
}

func newTestServer(t *testing.T, key string) (*mockService, http.Handler) {
	t.Helper()
	svc := &mockService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return svc, NewServer(svc, key, nil).Routes()
}

func do(t *testing.T, h http.Handler, method, path, auth, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, "secret")

	rr, body := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		serverKey string
		header    string
		want      int
	}{
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"missing header without server key", "", "", http.StatusUnauthorized},
		{"server key unset", "", "Bearer secret", http.StatusInternalServerError},
		{"wrong key", "secret", "Bearer nope", http.StatusForbidden},
		{"wrong scheme", "secret", "Basic secret", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, h := newTestServer(t, tt.serverKey)
			rr, body := do(t, h, http.MethodGet, "/api/v1/companies/example.co.jp/analysis", tt.header, "")
			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAuth_RawKeyAccepted(t *testing.T) {
	t.Parallel()
	svc, h := newTestServer(t, "secret")
	svc.On("Get", mock.Anything, "example.co.jp").Return(&analysis.Response{Entry: entry(1), Cached: true}, nil)

	rr, _ := do(t, h, http.MethodGet, "/api/v1/companies/example.co.jp/analysis", "secret", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetAnalysis_CacheHit(t *testing.T) {
	t.Parallel()
	svc, h := newTestServer(t, "secret")
	svc.On("Get", mock.Anything, "www.example.co.jp").Return(&analysis.Response{Entry: entry(15), Cached: true}, nil)

	rr, body := do(t, h, http.MethodGet, "/api/v1/companies/www.example.co.jp/analysis", "Bearer secret", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "example.co.jp", body["company_domain"])
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, "2026-01-01T10:00:00Z", body["analyzed_at"])
	assert.Equal(t, "2026-04-01T10:00:00Z", body["expires_at"])
	assert.InDelta(t, 15, body["cache_hit_count"], 0)
	assert.NotContains(t, body, "tokens_used")
	assert.NotContains(t, body, "cost")

	a := body["analysis"].(map[string]any)
	assert.Equal(t, "IT・ソフトウェア", a["industry"])
	assert.Equal(t, []any{}, a["keyTopics"])
}

func TestAnalyzeCompany_Forces(t *testing.T) {
	t.Parallel()
	svc, h := newTestServer(t, "secret")
	svc.On("Analyze", mock.Anything, "https://example.co.jp", true).Return(&analysis.Response{
		Entry:  entry(0),
		Cached: false,
		Usage:  &model.TokenUsage{Input: 5310, Output: 600, Total: 5910},
		Cost:   0.008310,
	}, nil)

	rr, body := do(t, h, http.MethodPost, "/api/v1/companies/analyze", "Bearer secret", `{"company_url":"https://example.co.jp"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, body["cached"])
	assert.InDelta(t, 0, body["cache_hit_count"], 0)
	tokens := body["tokens_used"].(map[string]any)
	assert.InDelta(t, 5310, tokens["input"], 0)
	assert.InDelta(t, 600, tokens["output"], 0)
	assert.InDelta(t, 5910, tokens["total"], 0)
	assert.InDelta(t, 0.00831, body["cost"], 1e-9)
}

func TestAnalyzeCompany_BareDomainAccepted(t *testing.T) {
	t.Parallel()
	svc, h := newTestServer(t, "secret")
	svc.On("Analyze", mock.Anything, "example.co.jp", true).Return(&analysis.Response{Entry: entry(0)}, nil)

	rr, body := do(t, h, http.MethodPost, "/api/v1/companies/analyze", "Bearer secret", `{"company_url":"example.co.jp"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	svc.AssertExpectations(t)
}

func TestAnalyzeCompany_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing field", `{}`},
		{"empty field", `{"company_url":""}`},
		{"not json", `company_url=https://example.co.jp`},
		{"too long", fmt.Sprintf(`{"company_url":"https://%s.jp"}`, strings.Repeat("a", 2100))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, h := newTestServer(t, "secret")
			rr, body := do(t, h, http.MethodPost, "/api/v1/companies/analyze", "Bearer secret", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid input", fmt.Errorf("x: %w", analysis.ErrInvalidInput), http.StatusBadRequest, "invalid company domain or URL"},
		{"fetch", fmt.Errorf("%w: dial tcp 10.0.0.1: timeout", analysis.ErrFetch), http.StatusInternalServerError, "failed to fetch company website"},
		{"analyze", fmt.Errorf("%w: parse model response", analysis.ErrAnalyze), http.StatusInternalServerError, "failed to analyze company website"},
		{"unexpected", fmt.Errorf("sqlite: database is locked"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, h := newTestServer(t, "secret")
			svc.On("Get", mock.Anything, "example.co.jp").Return(nil, tt.err)

			rr, body := do(t, h, http.MethodGet, "/api/v1/companies/example.co.jp/analysis", "Bearer secret", "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/companies/analyze", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Less(t, rr.Code, http.StatusMultipleChoices)
	assert.Contains(t, []string{"*", "https://app.example.com"}, rr.Header().Get("Access-Control-Allow-Origin"))
}
