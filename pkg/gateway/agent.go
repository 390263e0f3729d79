package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
	"github.com/beaconcrm/outreach-engine/internal/core/services"
)

// handleHeartbeat records agent liveness. The first heartbeat after an
// offline period triggers campaign reactivation and staggered resume.
// POST /v1/agent/{user}/heartbeat
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.PathValue("user"))
	if err := s.monitor.Heartbeat(r.Context(), userID); err != nil {
		s.logger.Error("heartbeat failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"server_time": time.Now().UTC(),
	})
}

// handleAgentStatus returns the liveness record.
// GET /v1/agent/{user}/status
func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.PathValue("user"))
	liveness, err := s.repo.GetLiveness(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "agent has never connected")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, liveness)
}

// handleListInstructions returns the user's pending queue in schedule
// order. The agent decides which entries are due and claims them.
// GET /v1/agent/{user}/instructions
func (s *Server) handleListInstructions(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.PathValue("user"))

	// A queue poll proves the agent is alive just as well as the dedicated
	// heartbeat; without this an agent that only polls goes stale mid-work.
	if err := s.monitor.Heartbeat(r.Context(), userID); err != nil {
		s.logger.Error("liveness refresh on poll failed", "user_id", userID, "error", err)
	}

	instructions, err := s.repo.ListPendingInstructions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if instructions == nil {
		instructions = []domain.Instruction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instructions": instructions,
		"count":        len(instructions),
	})
}

// handleClaimInstruction moves pending to processing. A lost race returns
// 409 so a second agent process backs off.
// POST /v1/agent/instructions/{id}/claim
func (s *Server) handleClaimInstruction(w http.ResponseWriter, r *http.Request) {
	id := domain.InstructionID(r.PathValue("id"))
	err := s.engine.ClaimInstruction(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "claimed"})
	case errors.Is(err, domain.ErrInstructionNotFound):
		writeError(w, http.StatusNotFound, "instruction not found")
	case errors.Is(err, domain.ErrStatusConflict):
		writeError(w, http.StatusConflict, "instruction is not pending")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type reportRequest struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ReplyDetected  bool   `json:"reply_detected,omitempty"`
}

// handleReportInstruction settles an instruction with the agent's outcome
// and drives the owning execution forward.
// POST /v1/agent/instructions/{id}/report
func (s *Server) handleReportInstruction(w http.ResponseWriter, r *http.Request) {
	id := domain.InstructionID(r.PathValue("id"))

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := s.engine.HandleReport(r.Context(), id, services.Report{
		Success:        req.Success,
		Error:          req.Error,
		ConversationID: req.ConversationID,
		ReplyDetected:  req.ReplyDetected,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
	case errors.Is(err, domain.ErrInstructionNotFound):
		writeError(w, http.StatusNotFound, "instruction not found")
	case errors.Is(err, domain.ErrStatusConflict):
		writeError(w, http.StatusConflict, "instruction already settled")
	default:
		s.logger.Error("report handling failed", "instruction_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
