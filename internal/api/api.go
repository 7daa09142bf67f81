// Package api exposes the reconciliation engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/reconcile"
	"github.com/sells-group/athena/internal/scorer"
)

// Scorer produces score breakdowns.
type Scorer interface {
	Breakdown(ctx context.Context, companyID int64) (*scorer.Breakdown, error)
}

// Runner runs reconciliation passes.
type Runner interface {
	Run(ctx context.Context) (*reconcile.Report, error)
}

// Server holds the handler dependencies.
type Server struct {
	reader  company.Reader
	scorer  Scorer
	runner  Runner
	origins []string
	pinger  func(context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allowed origins. The default allows any
// origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithPing makes /health report the result of ping.
func WithPing(ping func(context.Context) error) Option {
	return func(s *Server) { s.pinger = ping }
}

// NewServer creates a Server.
func NewServer(r company.Reader, sc Scorer, run Runner, opts ...Option) *Server {
	s := &Server{reader: r, scorer: sc, runner: run, origins: []string{"*"}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/company/{id}/score", s.companyScore)
		r.Get("/cross-layer", s.crossLayer)
		r.Post("/reconcile", s.reconcile)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger(r.Context()); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) companyScore(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	b, err := s.scorer.Breakdown(r.Context(), id)
	switch {
	case errors.Is(err, scorer.ErrCompanyNotFound):
		writeError(w, http.StatusNotFound, "company not found")
		return
	case err != nil:
		zap.L().Error("api: score breakdown", zap.Int64("company_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) crossLayer(w http.ResponseWriter, r *http.Request) {
	matches, err := company.FindCrossLayer(r.Context(), s.reader)
	if err != nil {
		zap.L().Error("api: cross-layer", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(matches),
		"matches": matches,
	})
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := s.runner.Run(r.Context())
	switch {
	case errors.Is(err, reconcile.ErrPassInProgress):
		writeError(w, http.StatusConflict, "reconcile pass already in progress")
		return
	case err != nil:
		zap.L().Error("api: reconcile", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "internal error",
			"report": redactPhases(rep),
		})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// redactPhases copies rep with phase error text replaced, since it carries
// raw store errors. The full text is logged.
func redactPhases(rep *reconcile.Report) *reconcile.Report {
	if rep == nil {
		return nil
	}
	out := *rep
	out.Phases = make([]reconcile.PhaseResult, len(rep.Phases))
	for i, p := range rep.Phases {
		if p.Error != "" {
			p.Error = "failed"
		}
		out.Phases[i] = p
	}
	return &out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
