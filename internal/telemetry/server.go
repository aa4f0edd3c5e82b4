package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/models"
)

// ProgressSource streams and reports analysis progress
type ProgressSource interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Last() (models.ProgressEvent, bool)
}

// RankingSource reports the most recent completed ranking
type RankingSource interface {
	LatestRun() (*models.AnalysisRun, bool)
}

// Server is the optional listener exposing metrics, health and live progress.
type Server struct {
	router   *mux.Router
	server   *http.Server
	gatherer prometheus.Gatherer
	progress ProgressSource
	ranking  RankingSource
	logger   *common.Logger
	started  time.Time
}

// NewServer creates the telemetry server on addr. progress may be nil.
func NewServer(addr string, gatherer prometheus.Gatherer, progress ProgressSource, logger *common.Logger) *Server {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	s := &Server{
		router:   mux.NewRouter(),
		gatherer: gatherer,
		progress: progress,
		logger:   logger,
		started:  time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestLoggingMiddleware)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/progress", s.handleProgress).Methods(http.MethodGet)
	s.router.HandleFunc("/api/ranking", s.handleRanking).Methods(http.MethodGet)
	if s.progress != nil {
		s.router.HandleFunc("/ws/progress", s.progress.ServeWS).Methods(http.MethodGet)
	}
}

// SetRankingSource exposes the latest ranking on /api/ranking. Call before Start.
func (s *Server) SetRankingSource(src RankingSource) {
	s.ranking = src
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown (blocking).
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting telemetry server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "progress not available"})
		return
	}
	event, ok := s.progress.Last()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis run yet"})
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	if s.ranking == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ranking not available"})
		return
	}
	run, ok := s.ranking.LatestRun()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed ranking yet"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// requestLoggingMiddleware logs each request at debug level
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Telemetry request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
