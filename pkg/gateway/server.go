package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/beaconcrm/outreach-engine/internal/config"
	"github.com/beaconcrm/outreach-engine/internal/core/ports"
	"github.com/beaconcrm/outreach-engine/internal/core/services"
)

// Server is the HTTP surface of the engine: the agent work queue on one
// side, campaign and execution control on the other.
type Server struct {
	logger   *slog.Logger
	engine   *services.ExecutionEngine
	monitor  *services.HealthMonitor
	eventBus *services.EventBus
	settings *config.SettingsStore
	repo     ports.Repository
}

func NewServer(
	logger *slog.Logger,
	engine *services.ExecutionEngine,
	monitor *services.HealthMonitor,
	eventBus *services.EventBus,
	settings *config.SettingsStore,
	repo ports.Repository,
) *Server {
	return &Server{
		logger:   logger,
		engine:   engine,
		monitor:  monitor,
		eventBus: eventBus,
		settings: settings,
		repo:     repo,
	}
}

// Handler mounts all routes and wraps them with OpenAPI request validation.
// SSE endpoints bypass validation; they hijack the connection.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Agent surface
	mux.HandleFunc("POST /v1/agent/{user}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /v1/agent/{user}/status", s.handleAgentStatus)
	mux.HandleFunc("GET /v1/agent/{user}/instructions", s.handleListInstructions)
	mux.HandleFunc("POST /v1/agent/instructions/{id}/claim", s.handleClaimInstruction)
	mux.HandleFunc("POST /v1/agent/instructions/{id}/report", s.handleReportInstruction)

	// Campaign surface
	mux.HandleFunc("GET /v1/campaigns", s.handleListCampaigns)
	mux.HandleFunc("POST /v1/campaigns", s.handleCreateCampaign)
	mux.HandleFunc("GET /v1/campaigns/{id}", s.handleGetCampaign)
	mux.HandleFunc("POST /v1/campaigns/{id}/prospects", s.handleEnrollProspect)
	mux.HandleFunc("POST /v1/campaigns/{id}/pause", s.handlePauseCampaign)
	mux.HandleFunc("POST /v1/campaigns/{id}/resume", s.handleResumeCampaign)
	mux.HandleFunc("GET /v1/campaigns/{id}/executions", s.handleListExecutions)

	// Execution surface
	mux.HandleFunc("GET /v1/executions/{id}", s.handleGetExecution)
	mux.HandleFunc("POST /v1/executions/{id}/pause", s.handlePauseExecution)
	mux.HandleFunc("POST /v1/executions/{id}/resume", s.handleResumeExecution)
	mux.HandleFunc("POST /v1/executions/{id}/retry", s.handleRetryExecution)

	// Limits and settings
	mux.HandleFunc("GET /v1/limits/{user}", s.handleGetLimits)
	mux.HandleFunc("PUT /v1/limits/{user}", s.handleUpdateLimits)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handleUpdateSettings)

	validated := s.validationMiddleware(mux)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" && r.URL.Path == "/v1/events" {
			s.handleBroadcastSSE(w, r)
			return
		}
		if r.Method == "GET" && isCampaignEventsPath(r.URL.Path) {
			s.handleCampaignSSE(w, r)
			return
		}
		validated.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
