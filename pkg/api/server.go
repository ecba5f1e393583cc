package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mimir-aip/digitclf/pkg/mlmodel"
	"github.com/mimir-aip/digitclf/pkg/storage"
)

// Server provides read-only HTTP endpoints over recorded runs and their artifacts
type Server struct {
	addr   string
	mux    *http.ServeMux
	logger *slog.Logger
	srv    *http.Server
	runs   *RunHandler
}

// NewServer creates a new API server
func NewServer(addr string, service *mlmodel.Service, artifacts *storage.FileStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:   addr,
		mux:    http.NewServeMux(),
		logger: logger,
		runs:   NewRunHandler(service, artifacts),
	}

	s.registerRoutes()
	return s
}

// registerRoutes sets up the HTTP routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.HandleFunc("/api/runs", s.runs.HandleRuns)
	s.mux.HandleFunc("/api/runs/", s.runs.HandleRun)
	s.mux.HandleFunc("/api/reports", s.runs.HandleReports)
	s.mux.HandleFunc("/api/reports/", s.runs.HandleReport)
	s.mux.HandleFunc("/api/artifacts/", s.runs.HandleArtifact)
}

// Handler returns the root handler, with request logging
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mux.ServeHTTP(w, r)
		s.logger.Debug("request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Start serves until ctx is canceled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", s.addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports ready once the run registry answers a query
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.runs.service.ListRuns("", 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
