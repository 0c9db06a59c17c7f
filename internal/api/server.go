// Package api serves the company analysis HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/deepbiz/directory/internal/analysis"
)

// AnalysisService is the analysis pipeline behind the handlers.
type AnalysisService interface {
	Get(ctx context.Context, domain string) (*analysis.Response, error)
	Analyze(ctx context.Context, companyURL string, force bool) (*analysis.Response, error)
}

// Server holds the handler dependencies.
type Server struct {
	svc      AnalysisService
	apiKey   string
	origins  []string
	validate *validator.Validate
}

// NewServer creates a Server. An empty apiKey makes every API request fail
// with a server configuration error.
func NewServer(svc AnalysisService, apiKey string, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{
		svc:      svc,
		apiKey:   apiKey,
		origins:  allowedOrigins,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/companies/{domain}/analysis", s.getAnalysis)
		r.Post("/companies/analyze", s.analyzeCompany)
	})

	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
