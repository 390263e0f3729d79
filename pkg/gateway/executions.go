package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// GET /v1/campaigns/{id}/executions
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.repo.ListCampaignExecutions(r.Context(), domain.CampaignID(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

// handleGetExecution returns one execution with its append-only history.
// GET /v1/executions/{id}
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exec, err := s.repo.GetExecution(ctx, domain.ExecutionID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	history, err := s.repo.ListHistory(ctx, exec.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if history == nil {
		history = []domain.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"execution": exec,
		"history":   history,
	})
}

// POST /v1/executions/{id}/pause
func (s *Server) handlePauseExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exec, err := s.repo.GetExecution(ctx, domain.ExecutionID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exec.Status.Terminal() {
		writeError(w, http.StatusConflict, "execution already finished")
		return
	}

	// Body is optional; "manual_task" marks the pause as waiting on a
	// human action rather than a plain operator hold.
	reason := domain.PauseReasonManual
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Reason == string(domain.PauseReasonManualTask) {
		reason = domain.PauseReasonManualTask
	}

	if err := s.engine.PauseExecution(ctx, exec, reason); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// POST /v1/executions/{id}/resume
func (s *Server) handleResumeExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exec, err := s.repo.GetExecution(ctx, domain.ExecutionID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exec.Status.Halted() {
		writeError(w, http.StatusConflict, "execution is not paused")
		return
	}

	if err := s.engine.ResumeExecution(ctx, exec); err != nil {
		s.logger.Error("resume failed", "execution_id", exec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleRetryExecution re-drives a failed execution from its current
// step. Operator action only; the engine never retries on its own.
// POST /v1/executions/{id}/retry
func (s *Server) handleRetryExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exec, err := s.repo.GetExecution(ctx, domain.ExecutionID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exec.Status != domain.ExecutionStatusFailed {
		writeError(w, http.StatusConflict, "only failed executions can be retried")
		return
	}

	if err := s.engine.RetryFailed(ctx, exec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
