// Package httpapi exposes the prediction service over a thin JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/archive"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/predict"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/rules"
)

// PredictionService is the slice of the predictor the API serves.
type PredictionService interface {
	GetPrediction(ctx context.Context) (domain.Prediction, error)
	DerivedFacts(ctx context.Context, area string) ([]domain.DerivedFact, error)
	Explain(ctx context.Context, subject, property string) (predict.Explanation, error)
	ReloadRules() error
}

// HistoryReader serves archived observations. nil disables the endpoint.
type HistoryReader interface {
	History(ctx context.Context, cat domain.Category, since time.Time) ([]archive.Observation, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes prediction, explanation, history, health, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	predictor  PredictionService
	history    HistoryReader
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(addr string, predictor PredictionService, history HistoryReader, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		predictor: predictor,
		history:   history,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/prediction", s.handlePrediction)
	mux.HandleFunc("GET /api/v1/facts", s.handleFacts)
	mux.HandleFunc("GET /api/v1/explanation", s.handleExplanation)
	mux.HandleFunc("POST /api/v1/rules/reload", s.handleRulesReload)
	mux.HandleFunc("GET /api/v1/observations", s.handleObservations)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	pred, err := s.predictor.GetPrediction(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.predictor.DerivedFacts(r.Context(), r.URL.Query().Get("area"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if facts == nil {
		facts = []domain.DerivedFact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts, "count": len(facts)})
}

func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	area := r.URL.Query().Get("area")
	property := r.URL.Query().Get("property")
	if area == "" || property == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "area and property query parameters are required",
		})
		return
	}
	exp, err := s.predictor.Explain(r.Context(), area, property)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleRulesReload(w http.ResponseWriter, _ *http.Request) {
	if err := s.predictor.ReloadRules(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rules.ErrRuleParse) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Error("rule reload failed", "error", err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "observation archive disabled"})
		return
	}

	cat := domain.Category(r.URL.Query().Get("category"))
	if cat != domain.CategoryMeteo && cat != domain.CategoryHydro {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "category must be meteo or hydro",
		})
		return
	}
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hours must be a positive integer"})
			return
		}
		hours = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	obs, err := s.history.History(r.Context(), cat, since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if obs == nil {
		obs = []archive.Observation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs, "count": len(obs)})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, predict.ErrUnavailable) {
		status = http.StatusServiceUnavailable
	}
	s.logger.Error("request failed", "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort JSON response
}
