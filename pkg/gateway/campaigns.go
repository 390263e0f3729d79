package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

type stepRequest struct {
	ID              string `json:"id,omitempty"`
	Action          string `json:"action"`
	Content         string `json:"content,omitempty"`
	DelayMinSeconds int    `json:"delay_min_seconds,omitempty"`
	DelayMaxSeconds int    `json:"delay_max_seconds,omitempty"`
}

type createCampaignRequest struct {
	ID     string        `json:"id,omitempty"`
	UserID string        `json:"user_id"`
	Name   string        `json:"name"`
	Steps  []stepRequest `json:"steps"`
}

// handleCreateCampaign registers a campaign and chains its steps in the
// given order.
// POST /v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || len(req.Steps) == 0 {
		writeError(w, http.StatusBadRequest, "user_id and at least one step are required")
		return
	}
	for _, st := range req.Steps {
		if !domain.ActionType(st.Action).Valid() {
			writeError(w, http.StatusBadRequest, "unknown action: "+st.Action)
			return
		}
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:        domain.CampaignID(req.ID),
		UserID:    domain.UserID(req.UserID),
		Name:      req.Name,
		Status:    domain.CampaignStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if campaign.ID == "" {
		campaign.ID = domain.CampaignID(uuid.New().String())
	}

	steps := make([]domain.CampaignStep, len(req.Steps))
	for i, st := range req.Steps {
		id := st.ID
		if id == "" {
			id = uuid.New().String()
		}
		steps[i] = domain.CampaignStep{
			ID:         domain.StepID(id),
			CampaignID: campaign.ID,
			Action:     domain.ActionType(st.Action),
			Content:    st.Content,
			Position:   i,
			Delay: domain.StepDelay{
				Min: time.Duration(st.DelayMinSeconds) * time.Second,
				Max: time.Duration(st.DelayMaxSeconds) * time.Second,
			},
		}
	}
	for i := range steps[:len(steps)-1] {
		steps[i].NextStepID = steps[i+1].ID
	}

	ctx := r.Context()
	if err := s.repo.SaveCampaign(ctx, campaign); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range steps {
		if err := s.repo.SaveStep(ctx, &steps[i]); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, campaign)
}

// handleListCampaigns lists a user's campaigns.
// GET /v1/campaigns?user_id=...
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	campaigns, err := s.repo.ListCampaigns(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaigns": campaigns,
		"count":     len(campaigns),
	})
}

// GET /v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.repo.GetCampaign(r.Context(), domain.CampaignID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

type enrollRequest struct {
	ID         string `json:"id,omitempty"`
	ProfileURL string `json:"profile_url"`
	FullName   string `json:"full_name,omitempty"`
}

// handleEnrollProspect adds a prospect to a campaign and starts its
// execution at the first step.
// POST /v1/campaigns/{id}/prospects
func (s *Server) handleEnrollProspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	campaign, err := s.repo.GetCampaign(ctx, domain.CampaignID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if campaign.Status != domain.CampaignStatusActive {
		writeError(w, http.StatusConflict, "campaign is not active")
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ProfileURL == "" {
		writeError(w, http.StatusBadRequest, "profile_url is required")
		return
	}

	now := time.Now().UTC()
	prospect := &domain.Prospect{
		ID:         domain.ProspectID(req.ID),
		CampaignID: campaign.ID,
		UserID:     campaign.UserID,
		ProfileURL: req.ProfileURL,
		FullName:   req.FullName,
		Status:     domain.ProspectStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if prospect.ID == "" {
		prospect.ID = domain.ProspectID(uuid.New().String())
	}

	exec, err := s.engine.EnrollProspect(ctx, campaign, prospect)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionExists) {
			writeError(w, http.StatusConflict, "prospect already enrolled in this campaign")
			return
		}
		s.logger.Error("enrollment failed", "campaign_id", campaign.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, exec)
}

// handlePauseCampaign is the operator pause: the campaign and all its
// live executions stop and stay stopped until an explicit resume.
// POST /v1/campaigns/{id}/pause
func (s *Server) handlePauseCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	campaign, err := s.repo.GetCampaign(ctx, domain.CampaignID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now().UTC()
	campaign.Status = domain.CampaignStatusPaused
	campaign.PauseReason = domain.PauseReasonManual
	campaign.PausedAt = &now
	campaign.AutoresumeWhenOnline = false
	campaign.UpdatedAt = now
	if err := s.repo.SaveCampaign(ctx, campaign); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	execs, err := s.repo.ListCampaignExecutions(ctx, campaign.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range execs {
		if execs[i].Status.Terminal() || execs[i].Status == domain.ExecutionStatusPaused {
			continue
		}
		if err := s.engine.PauseExecution(ctx, &execs[i], domain.PauseReasonManual); err != nil {
			s.logger.Error("failed to pause execution", "execution_id", execs[i].ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, campaign)
}

// handleResumeCampaign reverses a manual pause.
// POST /v1/campaigns/{id}/resume
func (s *Server) handleResumeCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	campaign, err := s.repo.GetCampaign(ctx, domain.CampaignID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if campaign.Status != domain.CampaignStatusPaused {
		writeError(w, http.StatusConflict, "campaign is not paused")
		return
	}

	campaign.Status = domain.CampaignStatusActive
	campaign.PauseReason = ""
	campaign.PausedAt = nil
	campaign.AutoresumeWhenOnline = false
	campaign.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveCampaign(ctx, campaign); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	execs, err := s.repo.ListCampaignExecutions(ctx, campaign.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range execs {
		if execs[i].Status != domain.ExecutionStatusPaused {
			continue
		}
		// Replied prospects stay paused; resuming them is a decision the
		// operator makes per execution.
		if execs[i].PauseReason == domain.PauseReasonProspectReplied {
			continue
		}
		if err := s.engine.ResumeExecution(ctx, &execs[i]); err != nil {
			s.logger.Error("failed to resume execution", "execution_id", execs[i].ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, campaign)
}
