package domain

import (
	"errors"
	"time"
)

type ExecutionID string

// ExecutionStatus is the state of one prospect's walk through one campaign.
type ExecutionStatus string

const (
	ExecutionStatusRunning             ExecutionStatus = "running"
	ExecutionStatusWaiting             ExecutionStatus = "waiting"
	ExecutionStatusPaused              ExecutionStatus = "paused"
	ExecutionStatusPausedForManualTask ExecutionStatus = "paused_for_manual_task"
	ExecutionStatusCompleted           ExecutionStatus = "completed"
	ExecutionStatusFailed              ExecutionStatus = "failed"
)

// Terminal reports whether the execution can still make progress.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Halted reports whether the execution sits in a pause state that must be
// lifted (by an operator or the monitor) before it may schedule anything.
func (s ExecutionStatus) Halted() bool {
	return s == ExecutionStatusPaused || s == ExecutionStatusPausedForManualTask
}

// PauseReason distinguishes why an execution (or campaign) was paused.
// extension_offline pauses are reversed automatically on reconnect;
// the others never are.
type PauseReason string

const (
	PauseReasonManual           PauseReason = "manual"
	PauseReasonManualTask       PauseReason = "manual_task"
	PauseReasonExtensionOffline PauseReason = "extension_offline"
	PauseReasonProspectReplied  PauseReason = "prospect_replied"
)

// Execution is the durable state machine instance for one
// (campaign, prospect) pair. History and scheduled actions are stored as
// separately keyed rows, not embedded documents, so per-item transitions
// stay atomic.
type Execution struct {
	ID         ExecutionID `json:"id"`
	CampaignID CampaignID  `json:"campaign_id"`
	ProspectID ProspectID  `json:"prospect_id"`
	UserID     UserID      `json:"user_id"`

	CurrentStepID StepID          `json:"current_step_id"`
	Status        ExecutionStatus `json:"status"`

	// WaitingFor names the external event the execution is blocked on;
	// WaitingJobID is the instruction expected to resolve it.
	WaitingFor   string         `json:"waiting_for,omitempty"`
	WaitingJobID *InstructionID `json:"waiting_job_id,omitempty"`

	PausedAt    *time.Time  `json:"paused_at,omitempty"`
	PauseReason PauseReason `json:"pause_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry is one append-only audit line. Entries are never mutated.
type HistoryEntry struct {
	ID          int64       `json:"id"`
	ExecutionID ExecutionID `json:"execution_id"`
	StepID      StepID      `json:"step_id"`
	Action      ActionType  `json:"action"`
	Outcome     string      `json:"outcome"`
	Reason      string      `json:"reason,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// History outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeScheduled = "scheduled"
	OutcomePaused    = "paused"
	OutcomeResumed   = "resumed"
	OutcomeReplied   = "replied"
)

// ScheduledAction records that a step has been slotted in time. A pending
// action stays unprocessed until it is fulfilled or superseded.
type ScheduledAction struct {
	ID           int64       `json:"id"`
	ExecutionID  ExecutionID `json:"execution_id"`
	StepID       StepID      `json:"step_id"`
	Action       ActionType  `json:"action"`
	ScheduledFor time.Time   `json:"scheduled_for"`
	Processed    bool        `json:"processed"`
	Result       string      `json:"result,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrExecutionExists   = errors.New("execution already exists for prospect")
)
