package domain

import (
	"errors"
	"time"
)

type InstructionID string

// ActionType is the closed set of actions the external agent can perform.
type ActionType string

const (
	ActionSendInvitation ActionType = "send_invitation"
	ActionSendMessage    ActionType = "send_message"
	ActionVisitProfile   ActionType = "visit_profile"
	ActionCheckReplies   ActionType = "check_replies"
)

// Valid reports whether the action type is one the engine knows.
func (a ActionType) Valid() bool {
	switch a {
	case ActionSendInvitation, ActionSendMessage, ActionVisitProfile, ActionCheckReplies:
		return true
	}
	return false
}

// InstructionStatus lifecycle: pending → processing → completed | failed.
// cancelled and throttled are forced from outside; throttled is a soft
// pause that keeps the original schedule intent and can go back to pending.
type InstructionStatus string

const (
	InstructionStatusPending    InstructionStatus = "pending"
	InstructionStatusProcessing InstructionStatus = "processing"
	InstructionStatusCompleted  InstructionStatus = "completed"
	InstructionStatusFailed     InstructionStatus = "failed"
	InstructionStatusCancelled  InstructionStatus = "cancelled"
	InstructionStatusThrottled  InstructionStatus = "throttled"
)

// Settled reports whether the instruction reached an immutable state.
func (s InstructionStatus) Settled() bool {
	return s == InstructionStatusCompleted || s == InstructionStatusFailed || s == InstructionStatusCancelled
}

// InstructionPayload carries everything the agent needs to execute the
// action without further lookups.
type InstructionPayload struct {
	ProfileURL     string `json:"profile_url,omitempty"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	NextStepID     StepID `json:"next_step_id,omitempty"`
}

// RateLimitContext snapshots the limits in effect when the instruction was
// scheduled, for auditing drift later.
type RateLimitContext struct {
	HourlyCap     int           `json:"hourly_cap"`
	DailyCap      int           `json:"daily_cap"`
	WeeklyCap     int           `json:"weekly_cap"`
	MinSpacing    time.Duration `json:"min_spacing"`
	UsedThisHour  int           `json:"used_this_hour"`
	UsedToday     int           `json:"used_today"`
	Unthrottled   bool          `json:"unthrottled,omitempty"` // limiter was unreachable, degraded path
	WithinWorking bool          `json:"within_working_hours"`
}

// InstructionResult is the settled outcome payload.
type InstructionResult struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ReplyDetected  bool   `json:"reply_detected,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
}

// Instruction is one scheduled unit of work for the external agent.
type Instruction struct {
	ID          InstructionID `json:"id"`
	UserID      UserID        `json:"user_id"`
	CampaignID  CampaignID    `json:"campaign_id"`
	ProspectID  ProspectID    `json:"prospect_id"`
	ExecutionID ExecutionID   `json:"execution_id"`
	StepID      StepID        `json:"step_id"`

	Action ActionType        `json:"action"`
	Status InstructionStatus `json:"status"`

	// ScheduledFor is computed once at creation and never decreased.
	ScheduledFor time.Time `json:"scheduled_for"`

	Payload   InstructionPayload `json:"payload"`
	RateLimit RateLimitContext   `json:"rate_limit_context"`
	Result    *InstructionResult `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Family maps an action to its rate-limit counter family.
func (a ActionType) Family() string {
	switch a {
	case ActionSendInvitation:
		return "invitation"
	case ActionSendMessage:
		return "message"
	case ActionVisitProfile:
		return "visit"
	case ActionCheckReplies:
		return "check"
	}
	return string(a)
}

var (
	ErrInstructionNotFound = errors.New("instruction not found")
	// ErrStatusConflict is returned when a compare-and-set transition loses
	// the race: the instruction was no longer in the expected status.
	ErrStatusConflict = errors.New("instruction status conflict")
)
