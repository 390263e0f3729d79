package ports

import (
	"context"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// StepProvider resolves campaign steps for the scheduler. Campaign editing
// is an external collaborator; the engine only reads.
type StepProvider interface {
	GetStep(ctx context.Context, campaignID domain.CampaignID, stepID domain.StepID) (*domain.CampaignStep, error)
	FirstStep(ctx context.Context, campaignID domain.CampaignID) (*domain.CampaignStep, error)
}

// ProspectSink receives prospect status changes. The engine does not own
// the prospect schema; it only reports forward progress.
type ProspectSink interface {
	ProspectStatusChanged(ctx context.Context, prospect domain.Prospect) error
}

// Repository abstracts the persistent storage (DuckDB). All instruction
// status changes are compare-and-set against the expected prior status; a
// caller that loses the race gets domain.ErrStatusConflict.
type Repository interface {
	// Campaigns
	SaveCampaign(ctx context.Context, c *domain.Campaign) error
	GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, userID domain.UserID) ([]domain.Campaign, error)
	ListAutoresumeCampaigns(ctx context.Context, userID domain.UserID) ([]domain.Campaign, error)

	// Campaign steps
	SaveStep(ctx context.Context, s *domain.CampaignStep) error
	GetStep(ctx context.Context, campaignID domain.CampaignID, stepID domain.StepID) (*domain.CampaignStep, error)
	FirstStep(ctx context.Context, campaignID domain.CampaignID) (*domain.CampaignStep, error)

	// Prospects
	SaveProspect(ctx context.Context, p *domain.Prospect) error
	GetProspect(ctx context.Context, id domain.ProspectID) (*domain.Prospect, error)
	ListContactedProspects(ctx context.Context, since time.Time) ([]domain.Prospect, error)

	// Executions
	CreateExecution(ctx context.Context, e *domain.Execution) error
	SaveExecution(ctx context.Context, e *domain.Execution) error
	GetExecution(ctx context.Context, id domain.ExecutionID) (*domain.Execution, error)
	FindExecution(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (*domain.Execution, error)
	ListCampaignExecutions(ctx context.Context, campaignID domain.CampaignID) ([]domain.Execution, error)
	ListPausedOffline(ctx context.Context, campaignIDs []domain.CampaignID) ([]domain.Execution, error)
	ListRunnableExecutions(ctx context.Context) ([]domain.Execution, error)

	// Execution history (append-only)
	AppendHistory(ctx context.Context, h *domain.HistoryEntry) error
	ListHistory(ctx context.Context, executionID domain.ExecutionID) ([]domain.HistoryEntry, error)

	// Scheduled actions
	AddScheduledAction(ctx context.Context, a *domain.ScheduledAction) error
	MarkActionProcessed(ctx context.Context, id int64, result string) error
	ListPendingActions(ctx context.Context, executionID domain.ExecutionID) ([]domain.ScheduledAction, error)

	// Instructions
	SaveInstruction(ctx context.Context, ins *domain.Instruction) error
	GetInstruction(ctx context.Context, id domain.InstructionID) (*domain.Instruction, error)
	ListPendingInstructions(ctx context.Context, userID domain.UserID) ([]domain.Instruction, error)
	CountOpenInstructions(ctx context.Context, campaignID domain.CampaignID) (int, error)
	TransitionInstruction(ctx context.Context, id domain.InstructionID, from, to domain.InstructionStatus, result *domain.InstructionResult) error
	CancelCampaignInstructions(ctx context.Context, campaignID domain.CampaignID, reason string) (int, error)
	LatestConversationID(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (string, error)

	// Rate limit counters and per-user settings
	GetCounters(ctx context.Context, userID domain.UserID, family string) (*domain.ActionCounters, error)
	RecordAction(ctx context.Context, userID domain.UserID, family string, at time.Time) error
	GetLimitSettings(ctx context.Context, userID domain.UserID) (*domain.LimitSettings, error)
	SaveLimitSettings(ctx context.Context, s *domain.LimitSettings) error

	// Agent liveness
	GetLiveness(ctx context.Context, userID domain.UserID) (*domain.AgentLiveness, error)
	SaveLiveness(ctx context.Context, l *domain.AgentLiveness) error
	ListStaleAgents(ctx context.Context, olderThan time.Time) ([]domain.AgentLiveness, error)

	// Reply-check dedup cache (TTL enforced lazily by the caller's cutoff)
	WasCheckedSince(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID, since time.Time) (bool, error)
	MarkChecked(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID, at time.Time) error
	PruneCheckedBefore(ctx context.Context, cutoff time.Time) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}
