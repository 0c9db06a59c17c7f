package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/deepbiz/directory/internal/analysis"
	"github.com/deepbiz/directory/internal/model"
)

const maxBodyBytes = 1 << 20

type analyzeRequest struct {
	CompanyURL string `json:"company_url" validate:"required,max=2048"`
}

type analysisResponse struct {
	Success       bool              `json:"success"`
	CompanyDomain string            `json:"company_domain"`
	Analysis      model.Analysis    `json:"analysis"`
	Cached        bool              `json:"cached"`
	AnalyzedAt    string            `json:"analyzed_at"`
	ExpiresAt     string            `json:"expires_at"`
	CacheHitCount int               `json:"cache_hit_count"`
	TokensUsed    *model.TokenUsage `json:"tokens_used,omitempty"`
	Cost          *float64          `json:"cost,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Get(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(resp))
}

func (s *Server) analyzeCompany(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "company_url is required")
		return
	}

	resp, err := s.svc.Analyze(r.Context(), req.CompanyURL, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(resp))
}

// fail maps pipeline errors to a status and a message that does not leak
// internals.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, analysis.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "invalid company domain or URL"
	case errors.Is(err, analysis.ErrFetch):
		msg = "failed to fetch company website"
	case errors.Is(err, analysis.ErrAnalyze):
		msg = "failed to analyze company website"
	}

	log := zap.L().Warn
	if status >= http.StatusInternalServerError {
		log = zap.L().Error
	}
	log("api: analysis request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, status, msg)
}

func toResponse(resp *analysis.Response) analysisResponse {
	e := resp.Entry
	out := analysisResponse{
		Success:       true,
		CompanyDomain: e.Domain,
		Analysis:      e.Analysis,
		Cached:        resp.Cached,
		AnalyzedAt:    formatTime(e.AnalyzedAt),
		ExpiresAt:     formatTime(e.ExpiresAt),
		CacheHitCount: e.HitCount,
	}
	if resp.Usage != nil {
		out.TokensUsed = resp.Usage
		cost := resp.Cost
		out.Cost = &cost
	}
	return out
}

// formatTime renders t as RFC 3339 in UTC with a Z suffix.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
