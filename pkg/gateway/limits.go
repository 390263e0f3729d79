package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// effectiveFamilies resolves stored overrides against engine defaults,
// clamped into the safe band. The same resolution the limiter applies.
func (s *Server) effectiveFamilies(stored *domain.LimitSettings) map[string]domain.FamilyLimits {
	def := s.settings.GetConfig().Limits
	out := make(map[string]domain.FamilyLimits, len(def.Families))
	for family, limits := range def.Families {
		override := stored.LimitsFor(family, limits)
		limits.HourlyCap = def.HourlyBand.Clamp(override.HourlyCap)
		limits.DailyCap = def.DailyBand.Clamp(override.DailyCap)
		limits.WeeklyCap = def.WeeklyBand.Clamp(override.WeeklyCap)
		if override.MinSpacing > 0 {
			limits.MinSpacing = override.MinSpacing
		}
		out[family] = limits
	}
	return out
}

// handleGetLimits returns the user's stored overrides plus the limits
// actually in effect after band clamping.
// GET /v1/limits/{user}
func (s *Server) handleGetLimits(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.PathValue("user"))
	stored, err := s.repo.GetLimitSettings(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	hours := s.settings.GetConfig().Limits.WorkingHours
	if stored.WorkingHours != nil {
		hours = *stored.WorkingHours
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"overrides":     stored.Families,
		"effective":     s.effectiveFamilies(stored),
		"working_hours": hours,
	})
}

type updateLimitsRequest struct {
	Families     map[string]domain.FamilyLimits `json:"families"`
	WorkingHours *domain.WorkingHours           `json:"working_hours,omitempty"`
}

// handleUpdateLimits stores per-user overrides. Values outside the safe
// band are accepted but clamped on every read, so the response shows the
// caps that will actually apply.
// PUT /v1/limits/{user}
func (s *Server) handleUpdateLimits(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.PathValue("user"))

	var req updateLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	known := s.settings.GetConfig().Limits.Families
	for family := range req.Families {
		if _, ok := known[family]; !ok {
			writeError(w, http.StatusBadRequest, "unknown action family: "+family)
			return
		}
	}
	if wh := req.WorkingHours; wh != nil && wh.Enabled && wh.StartHour >= wh.EndHour {
		writeError(w, http.StatusBadRequest, "working hours start must precede end")
		return
	}

	stored := &domain.LimitSettings{
		UserID:       userID,
		Families:     req.Families,
		WorkingHours: req.WorkingHours,
	}
	if err := s.repo.SaveLimitSettings(r.Context(), stored); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"overrides": stored.Families,
		"effective": s.effectiveFamilies(stored),
	})
}

// GET /v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}

// PUT /v1/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update domain.EngineConfig
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.settings.UpdateConfig(r.Context(), &update); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}
