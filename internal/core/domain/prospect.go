package domain

import (
	"errors"
	"time"
)

type ProspectID string

// ProspectStatus mirrors what the engine reports to the prospect record
// owner. The engine only ever moves a prospect forward.
type ProspectStatus string

const (
	ProspectStatusPending   ProspectStatus = "pending"
	ProspectStatusContacted ProspectStatus = "contacted"
	ProspectStatusReplied   ProspectStatus = "replied"
	ProspectStatusFailed    ProspectStatus = "failed"
)

// Prospect is the engine's local directory entry for one recipient in one
// campaign. The authoritative CRM record lives with the prospect sink.
type Prospect struct {
	ID         ProspectID     `json:"id"`
	CampaignID CampaignID     `json:"campaign_id"`
	UserID     UserID         `json:"user_id"`
	ProfileURL string         `json:"profile_url"`
	FullName   string         `json:"full_name,omitempty"`
	Status     ProspectStatus `json:"status"`

	ContactedAt *time.Time `json:"contacted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

var ErrProspectNotFound = errors.New("prospect not found")
