package domain

import (
	"errors"
	"time"
)

// AgentLiveness is the per-user heartbeat record for the external browser
// agent. One agent instance serves one user's whole campaign set.
type AgentLiveness struct {
	UserID   UserID    `json:"user_id"`
	IsActive bool      `json:"is_active"`
	LastSeen time.Time `json:"last_seen"`

	LastConnectedAt    *time.Time `json:"last_connected_at,omitempty"`
	LastDisconnectedAt *time.Time `json:"last_disconnected_at,omitempty"`
}

var ErrAgentNotFound = errors.New("agent liveness record not found")
