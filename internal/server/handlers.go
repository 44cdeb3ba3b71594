package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/internal/observability"
	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
	"github.com/RhysSullivan/assistant-sub002/pkg/runtime"
)

// invokeRequest is the remote-callback body.
type invokeRequest struct {
	ToolPath string         `json:"toolPath"`
	Input    map[string]any `json:"input,omitempty"`
}

// handleRunInvoke bridges one tool call POSTed back by a remote run. The
// bearer token is checked against the run's one-time callback token; run
// state is retained so a late callback is still recognized.
func (s *Server) handleRunInvoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.ToolPath == "" {
			http.Error(w, "toolPath is required", http.StatusBadRequest)
			return
		}

		response, err := s.runs.HandleCallback(r.Context(), runID, token, req.ToolPath, req.Input)
		switch {
		case errors.Is(err, runtime.ErrRunNotFound):
			http.Error(w, "run not found", http.StatusNotFound)
			return
		case errors.Is(err, runtime.ErrBadToken):
			http.Error(w, "invalid callback token", http.StatusUnauthorized)
			return
		case err != nil:
			log.Error().Err(err).Str("run_id", runID).Msg("Callback bridging failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if s.metrics != nil {
			outcome := "ok"
			if !response.OK {
				outcome = "error"
				if response.Denied {
					outcome = "denied"
				}
			}
			s.metrics.ObserveInvocation(req.ToolPath, outcome)
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// resolveRequest is the inbound approval resolution body.
type resolveRequest struct {
	ActorID string `json:"actorId"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleApprove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		record, err := s.approvals.Approve(r.Context(), id, req.ActorID)
		if !s.writeResolution(w, record, err) {
			return
		}
		if s.metrics != nil {
			s.metrics.ObserveApproval(string(approval.StatusApproved))
		}
		observability.RecordApprovalAudit(id, req.ActorID, string(approval.StatusApproved), map[string]interface{}{
			"tool_path": record.ToolPath,
			"run_id":    record.RunID,
		})
	}
}

func (s *Server) handleDeny() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		record, err := s.approvals.Deny(r.Context(), id, req.Reason, req.ActorID)
		if !s.writeResolution(w, record, err) {
			return
		}
		if s.metrics != nil {
			s.metrics.ObserveApproval(string(approval.StatusDenied))
		}
		observability.RecordApprovalAudit(id, req.ActorID, string(approval.StatusDenied), map[string]interface{}{
			"tool_path": record.ToolPath,
			"run_id":    record.RunID,
			"reason":    req.Reason,
		})
	}
}

func (s *Server) handleGetApproval() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := s.approvals.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, approval.ErrNotFound) {
			http.Error(w, "approval not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

// writeResolution maps resolution outcomes to status codes. The losing
// side of an approve/deny race gets 409.
func (s *Server) writeResolution(w http.ResponseWriter, record *approval.Record, err error) bool {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		http.Error(w, "approval not found", http.StatusNotFound)
		return false
	case errors.Is(err, approval.ErrNotPending):
		http.Error(w, "approval already resolved", http.StatusConflict)
		return false
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return false
	}
	writeJSON(w, http.StatusOK, record)
	return true
}

// bearerToken extracts the Authorization bearer value.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
