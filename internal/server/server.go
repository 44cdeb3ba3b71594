// Package server is the control plane: the remote-callback endpoint,
// inbound approval resolution, the reviewer websocket feed, and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/internal/metrics"
	"github.com/RhysSullivan/assistant-sub002/internal/notify"
	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
	"github.com/RhysSullivan/assistant-sub002/pkg/runtime"
)

// Server hosts the control-plane HTTP API.
type Server struct {
	addr        string
	runs        *runtime.RunTable
	approvals   *approval.Coordinator
	broadcaster *notify.Broadcaster
	metrics     *metrics.Metrics

	http *http.Server
}

// New builds the server. broadcaster and metrics may be nil.
func New(addr string, runs *runtime.RunTable, approvals *approval.Coordinator, broadcaster *notify.Broadcaster, m *metrics.Metrics) *Server {
	s := &Server{
		addr:        addr,
		runs:        runs,
		approvals:   approvals,
		broadcaster: broadcaster,
		metrics:     m,
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Router constructs the chi mux with all routes wired.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth())

	// Remote-callback endpoint, authorized by per-run bearer token.
	r.Post("/runs/{runID}/invoke", s.handleRunInvoke())

	// Inbound approval contract.
	r.Post("/approvals/{id}/approve", s.handleApprove())
	r.Post("/approvals/{id}/deny", s.handleDeny())
	r.Get("/approvals/{id}", s.handleGetApproval())

	if s.broadcaster != nil {
		r.Get("/ws", s.broadcaster.HandleWS)
	}
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("Control plane listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
