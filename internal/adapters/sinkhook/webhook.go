package sinkhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// ConfigSource yields the current sink settings. Settings can change at
// runtime, so the webhook reads them per delivery.
type ConfigSource interface {
	GetConfig() *domain.EngineConfig
}

// Webhook posts prospect status changes to an external CRM endpoint.
// When no URL is configured the engine keeps status locally and the
// webhook is a no-op.
type Webhook struct {
	logger *slog.Logger
	cfg    ConfigSource
	client *http.Client
}

func NewWebhook(logger *slog.Logger, cfg ConfigSource) *Webhook {
	return &Webhook{
		logger: logger,
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type statusPayload struct {
	ProspectID  string     `json:"prospect_id"`
	CampaignID  string     `json:"campaign_id"`
	ProfileURL  string     `json:"profile_url"`
	Status      string     `json:"status"`
	ContactedAt *time.Time `json:"contacted_at,omitempty"`
	SentAt      time.Time  `json:"sent_at"`
}

// ProspectStatusChanged delivers the new status. A delivery failure is
// returned to the caller but never blocks the execution itself; callers
// log and continue.
func (w *Webhook) ProspectStatusChanged(ctx context.Context, p domain.Prospect) error {
	sink := w.cfg.GetConfig().Sink
	if sink.URL == "" {
		return nil
	}

	payload := statusPayload{
		ProspectID: string(p.ID),
		CampaignID: string(p.CampaignID),
		ProfileURL: p.ProfileURL,
		Status:     string(p.Status),
		SentAt:     time.Now().UTC(),
	}
	if p.ContactedAt != nil {
		payload.ContactedAt = p.ContactedAt
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", sink.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sink.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sink.Token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned status: %d", resp.StatusCode)
	}

	w.logger.Debug("prospect status delivered", "prospect_id", p.ID, "status", p.Status)
	return nil
}
