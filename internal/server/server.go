// Package server exposes the operational HTTP surface of the prediction
// workers: health, Prometheus metrics, model info and the last validation
// report. The prediction serving API itself lives in another service.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PArns/v4.ml.park.fan/internal/model"
	"github.com/PArns/v4.ml.park.fan/internal/validation"
)

// Server is the ops HTTP server.
type Server struct {
	models *model.Manager
	mux    *http.ServeMux

	mu         sync.RWMutex
	lastReport *validation.Report
	lastRunAt  time.Time
}

// NewServer wires the routes.
func NewServer(models *model.Manager) *Server {
	s := &Server{
		models: models,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/model", s.handleModel)
	s.mux.HandleFunc("/validation-report", s.handleValidationReport)

	return s
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

// RecordRun stores the validation report of the most recent pipeline run.
func (s *Server) RecordRun(report validation.Report) {
	s.mu.Lock()
	s.lastReport = &report
	s.lastRunAt = time.Now().UTC()
	s.mu.Unlock()
}

// handleHealth returns the server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().String(),
	})
}

// handleModel reports the currently loaded model artifact.
func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	artifact, err := s.models.Current()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "no model loaded"})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"version":    artifact.Version,
		"trained_at": artifact.TrainedAt,
		"features":   len(artifact.Schema.Columns),
	})
}

// handleValidationReport returns the report of the last pipeline run.
func (s *Server) handleValidationReport(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	report := s.lastReport
	runAt := s.lastRunAt
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if report == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"status": "no run recorded"})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_at": runAt,
		"report": report,
	})
}
