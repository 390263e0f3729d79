package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/beaconcrm/outreach-engine/internal/core/services"
)

// isCampaignEventsPath matches /v1/campaigns/{id}/events.
func isCampaignEventsPath(path string) bool {
	const prefix = "/v1/campaigns/"
	const suffix = "/events"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return false
	}
	middle := path[len(prefix) : len(path)-len(suffix)]
	return len(middle) > 0 && !strings.Contains(middle, "/")
}

// handleBroadcastSSE streams every engine event to the client.
// GET /v1/events
func (s *Server) handleBroadcastSSE(w http.ResponseWriter, r *http.Request) {
	s.streamSSE(w, r, services.BroadcastChannel)
}

// handleCampaignSSE streams events scoped to one campaign.
// GET /v1/campaigns/{id}/events
func (s *Server) handleCampaignSSE(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	var campaignID string
	if len(parts) >= 3 {
		campaignID = parts[2] // v1/campaigns/{id}/events
	}
	if campaignID == "" {
		http.Error(w, "missing campaign id", http.StatusBadRequest)
		return
	}
	s.streamSSE(w, r, campaignID)
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, key string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := s.eventBus.Subscribe(key)
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
