package domain

import (
	"errors"
	"time"
)

type CampaignID string

type UserID string

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// Campaign is the engine-side view of a campaign: enough to schedule and
// throttle its steps. Editing of step content happens elsewhere.
type Campaign struct {
	ID     CampaignID     `json:"id"`
	UserID UserID         `json:"user_id"`
	Name   string         `json:"name"`
	Status CampaignStatus `json:"status"`

	// AutoresumeWhenOnline marks campaigns paused by the health monitor,
	// as opposed to campaigns an operator paused on purpose. Only flagged
	// campaigns are restarted when the agent reconnects.
	AutoresumeWhenOnline bool `json:"autoresume_when_online"`

	PausedAt    *time.Time  `json:"paused_at,omitempty"`
	PauseReason PauseReason `json:"pause_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StepID string

// CampaignStep is one node of a campaign's step sequence. NextStepID is
// empty on the terminal step.
type StepDelay struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

type CampaignStep struct {
	ID         StepID     `json:"id"`
	CampaignID CampaignID `json:"campaign_id"`
	Action     ActionType `json:"action"`
	Content    string     `json:"content,omitempty"`
	NextStepID StepID     `json:"next_step_id,omitempty"`
	Position   int        `json:"position"`

	// Delay overrides the per-action default delay band when non-zero.
	Delay StepDelay `json:"delay"`
}

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrStepNotFound     = errors.New("campaign step not found")
)
