// Package server wires the HTTP API onto a categorization session.
package server

import (
	"log/slog"
	"net/http"

	"github.com/rumor-ml/propsheet/internal/handlers"
	"github.com/rumor-ml/propsheet/internal/middleware"
	"github.com/rumor-ml/propsheet/internal/session"
)

// Server hosts the categorization API.
type Server struct {
	session *session.Session
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a server over an existing session.
func New(s *session.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		session: s,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	srv.setupRoutes()
	return srv
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	api := handlers.NewAPIHandler(s.session, s.logger)

	s.mux.HandleFunc("POST /api/upload", api.Upload)
	s.mux.HandleFunc("POST /api/categorize", api.Categorize)
	s.mux.HandleFunc("POST /api/learn", api.Learn)
	s.mux.HandleFunc("GET /api/suggestions", api.Suggestions)

	s.mux.HandleFunc("GET /api/datasets", api.GetDatasets)
	s.mux.HandleFunc("GET /api/datasets/{id}", api.GetDataset)
	s.mux.HandleFunc("PUT /api/datasets/{id}/active", api.SetDatasetActive)
	s.mux.HandleFunc("DELETE /api/datasets/{id}", api.DeleteDataset)
	s.mux.HandleFunc("POST /api/datasets/{id}/edit", api.EditDataset)

	s.mux.HandleFunc("GET /api/live", api.GetLive)
	s.mux.HandleFunc("POST /api/live/save", api.SaveLive)
	s.mux.HandleFunc("POST /api/live/discard", api.DiscardLive)
	s.mux.HandleFunc("PUT /api/live/inclusion", api.ToggleInclusion)

	s.mux.HandleFunc("GET /api/buckets", api.GetBuckets)
	s.mux.HandleFunc("POST /api/buckets", api.AddBucket)
	s.mux.HandleFunc("DELETE /api/buckets/{key}", api.DeleteBucket)
	s.mux.HandleFunc("POST /api/buckets/{key}/terms", api.AddBucketTerm)
	s.mux.HandleFunc("DELETE /api/buckets/{key}/terms", api.RemoveBucketTerm)

	s.mux.HandleFunc("GET /api/totals", api.GetTotals)
	s.mux.HandleFunc("GET /api/reconcile", api.GetReconciliation)
	s.mux.HandleFunc("GET /api/summary", api.GetSummary)
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return middleware.CORS(middleware.Logging(s.logger)(s.mux))
}
