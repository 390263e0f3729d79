package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
	"github.com/beaconcrm/outreach-engine/internal/core/ports"
)

// EngineRepository defines persistence for the execution state machine.
type EngineRepository interface {
	SchedulerRepository

	SaveCampaign(ctx context.Context, c *domain.Campaign) error
	GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error)

	SaveProspect(ctx context.Context, p *domain.Prospect) error
	GetProspect(ctx context.Context, id domain.ProspectID) (*domain.Prospect, error)

	CreateExecution(ctx context.Context, e *domain.Execution) error
	SaveExecution(ctx context.Context, e *domain.Execution) error
	GetExecution(ctx context.Context, id domain.ExecutionID) (*domain.Execution, error)
	FindExecution(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (*domain.Execution, error)
	ListCampaignExecutions(ctx context.Context, campaignID domain.CampaignID) ([]domain.Execution, error)

	AppendHistory(ctx context.Context, h *domain.HistoryEntry) error
	ListPendingActions(ctx context.Context, executionID domain.ExecutionID) ([]domain.ScheduledAction, error)
	MarkActionProcessed(ctx context.Context, id int64, result string) error

	GetInstruction(ctx context.Context, id domain.InstructionID) (*domain.Instruction, error)
	TransitionInstruction(ctx context.Context, id domain.InstructionID, from, to domain.InstructionStatus, result *domain.InstructionResult) error
	CancelCampaignInstructions(ctx context.Context, campaignID domain.CampaignID, reason string) (int, error)
	CountOpenInstructions(ctx context.Context, campaignID domain.CampaignID) (int, error)
}

// ExecutionEngine drives each prospect's state machine: it advances steps
// on settled instructions, owns every pause/resume/fail transition, and is
// the only writer of execution status.
type ExecutionEngine struct {
	logger    *slog.Logger
	repo      EngineRepository
	steps     ports.StepProvider
	sink      ports.ProspectSink
	scheduler *InstructionScheduler
	limiter   *RateLimiter
	bus       *EventBus
	now       func() time.Time
}

func NewExecutionEngine(
	logger *slog.Logger,
	repo EngineRepository,
	steps ports.StepProvider,
	sink ports.ProspectSink,
	scheduler *InstructionScheduler,
	limiter *RateLimiter,
	bus *EventBus,
) *ExecutionEngine {
	return &ExecutionEngine{
		logger:    logger,
		repo:      repo,
		steps:     steps,
		sink:      sink,
		scheduler: scheduler,
		limiter:   limiter,
		bus:       bus,
		now:       time.Now,
	}
}

// EnrollProspect creates the execution for a (campaign, prospect) pair and
// kicks off its first step. At most one execution exists per pair.
func (e *ExecutionEngine) EnrollProspect(ctx context.Context, campaign *domain.Campaign, prospect *domain.Prospect) (*domain.Execution, error) {
	now := e.now().UTC()

	first, err := e.steps.FirstStep(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve first step: %w", err)
	}

	if err := e.repo.SaveProspect(ctx, prospect); err != nil {
		return nil, fmt.Errorf("save prospect: %w", err)
	}

	exec := &domain.Execution{
		ID:            domain.ExecutionID(uuid.NewString()),
		CampaignID:    campaign.ID,
		ProspectID:    prospect.ID,
		UserID:        campaign.UserID,
		CurrentStepID: first.ID,
		Status:        domain.ExecutionStatusRunning,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.repo.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	if err := e.ProcessStep(ctx, exec); err != nil {
		return exec, err
	}
	return exec, nil
}

// ProcessStep schedules the execution's current step and parks the
// execution in waiting until the instruction settles. A missing step is a
// data integrity gap and terminates the execution rather than looping.
func (e *ExecutionEngine) ProcessStep(ctx context.Context, exec *domain.Execution) error {
	return e.processStepWithFloor(ctx, exec, time.Time{})
}

func (e *ExecutionEngine) processStepWithFloor(ctx context.Context, exec *domain.Execution, notBefore time.Time) error {
	step, err := e.steps.GetStep(ctx, exec.CampaignID, exec.CurrentStepID)
	if errors.Is(err, domain.ErrStepNotFound) {
		return e.failExecution(ctx, exec, exec.CurrentStepID, "", "missing step context")
	}
	if err != nil {
		return fmt.Errorf("resolve step %s: %w", exec.CurrentStepID, err)
	}

	prospect, err := e.repo.GetProspect(ctx, exec.ProspectID)
	if err != nil {
		return fmt.Errorf("load prospect: %w", err)
	}

	ins, err := e.scheduler.ScheduleWithFloor(ctx, exec, prospect, step, notBefore)
	if err != nil {
		return fmt.Errorf("schedule step %s: %w", step.ID, err)
	}

	now := e.now().UTC()
	exec.Status = domain.ExecutionStatusWaiting
	exec.WaitingFor = string(step.Action)
	exec.WaitingJobID = &ins.ID
	exec.PausedAt = nil
	exec.PauseReason = ""
	exec.UpdatedAt = now
	if err := e.repo.SaveExecution(ctx, exec); err != nil {
		return err
	}

	e.appendHistory(ctx, exec, step.ID, step.Action, domain.OutcomeScheduled, "", "")
	e.publishExecution(exec)
	return nil
}

// ClaimInstruction moves pending → processing when the agent picks an item
// up. Losing the race (e.g. the monitor cancelled it first) is a no-op for
// the caller to surface.
func (e *ExecutionEngine) ClaimInstruction(ctx context.Context, id domain.InstructionID) error {
	return e.repo.TransitionInstruction(ctx, id,
		domain.InstructionStatusPending, domain.InstructionStatusProcessing, nil)
}

// Report is the agent's settlement call for one instruction.
type Report struct {
	Success        bool
	Error          string
	ConversationID string
	ReplyDetected  bool
}

// HandleReport settles an instruction and drives the owning execution
// forward. The status change is a single compare-and-set; a report that
// lost a race with cancellation no-ops.
func (e *ExecutionEngine) HandleReport(ctx context.Context, id domain.InstructionID, report Report) error {
	ins, err := e.repo.GetInstruction(ctx, id)
	if err != nil {
		return err
	}
	if ins.Status.Settled() {
		e.logger.Warn("report for settled instruction ignored", "instruction_id", id, "status", ins.Status)
		return domain.ErrStatusConflict
	}

	to := domain.InstructionStatusCompleted
	if !report.Success {
		to = domain.InstructionStatusFailed
	}
	result := &domain.InstructionResult{
		Success:        report.Success,
		Error:          report.Error,
		ConversationID: report.ConversationID,
		ReplyDetected:  report.ReplyDetected,
	}
	if err := e.repo.TransitionInstruction(ctx, id, ins.Status, to, result); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			e.logger.Warn("instruction settlement lost race", "instruction_id", id)
		}
		return err
	}

	// Safety net: the limiter only computed at schedule time, it never
	// reserved. An overage at settlement is logged, never retried.
	now := e.now().UTC()
	if verdict, verr := e.limiter.IsWithinLimits(ctx, ins.UserID, ins.Action); verr == nil && !verdict.Allowed {
		e.logger.Warn("action settled over rate limit",
			"instruction_id", id, "user_id", ins.UserID, "action", ins.Action, "reason", verdict.Reason)
	}
	// An attempt was made either way; the slot is consumed and never
	// refunded on failure.
	if err := e.limiter.RecordAction(ctx, ins.UserID, ins.Action, now); err != nil {
		e.logger.Error("failed to record action", "user_id", ins.UserID, "error", err)
	}

	ins.Status = to
	ins.Result = result

	if ins.Action == domain.ActionCheckReplies {
		// Reply checks run outside the campaign flow; the sweep polls the
		// settled instruction. Only a positive signal touches the machine.
		if report.Success && report.ReplyDetected {
			return e.MarkReplied(ctx, ins.CampaignID, ins.ProspectID)
		}
		return nil
	}

	exec, err := e.repo.GetExecution(ctx, ins.ExecutionID)
	if err != nil {
		return err
	}
	e.settleScheduledAction(ctx, exec, ins.StepID, string(to))

	if !report.Success {
		return e.failExecution(ctx, exec, ins.StepID, ins.Action, report.Error)
	}
	if exec.Status.Halted() {
		return e.settleWhilePaused(ctx, exec, ins)
	}
	return e.advance(ctx, exec, ins)
}

// advance moves the execution past a completed step: append history, mark
// the prospect contacted on outbound actions, then either finish or
// immediately process the declared next step.
func (e *ExecutionEngine) advance(ctx context.Context, exec *domain.Execution, ins *domain.Instruction) error {
	now := e.now().UTC()
	e.appendHistory(ctx, exec, ins.StepID, ins.Action, domain.OutcomeCompleted, "", "")

	if ins.Action == domain.ActionSendInvitation || ins.Action == domain.ActionSendMessage {
		if err := e.markContacted(ctx, exec.ProspectID, now); err != nil {
			e.logger.Error("failed to update prospect status", "prospect_id", exec.ProspectID, "error", err)
		}
	}

	exec.WaitingFor = ""
	exec.WaitingJobID = nil
	exec.UpdatedAt = now

	next := ins.Payload.NextStepID
	if next == "" {
		exec.Status = domain.ExecutionStatusCompleted
		if err := e.repo.SaveExecution(ctx, exec); err != nil {
			return err
		}
		e.logger.Info("execution completed", "execution_id", exec.ID, "campaign_id", exec.CampaignID)
		e.publishExecution(exec)
		return nil
	}

	exec.CurrentStepID = next
	exec.Status = domain.ExecutionStatusRunning
	if err := e.repo.SaveExecution(ctx, exec); err != nil {
		return err
	}
	e.publishExecution(exec)

	return e.ProcessStep(ctx, exec)
}

// settleWhilePaused absorbs a successful settlement that raced a pause:
// the agent already performed the action, so its outcome is recorded and
// the step pointer moves on, but the execution stays paused and nothing
// new is scheduled until an explicit resume. A settled final step leaves
// nothing left to hold back, so the execution completes.
func (e *ExecutionEngine) settleWhilePaused(ctx context.Context, exec *domain.Execution, ins *domain.Instruction) error {
	now := e.now().UTC()
	e.appendHistory(ctx, exec, ins.StepID, ins.Action, domain.OutcomeCompleted, "", "")

	if ins.Action == domain.ActionSendInvitation || ins.Action == domain.ActionSendMessage {
		if err := e.markContacted(ctx, exec.ProspectID, now); err != nil {
			e.logger.Error("failed to update prospect status", "prospect_id", exec.ProspectID, "error", err)
		}
	}

	exec.WaitingFor = ""
	exec.WaitingJobID = nil
	exec.UpdatedAt = now
	if next := ins.Payload.NextStepID; next != "" {
		exec.CurrentStepID = next
	} else {
		exec.Status = domain.ExecutionStatusCompleted
		exec.PausedAt = nil
		exec.PauseReason = ""
	}
	if err := e.repo.SaveExecution(ctx, exec); err != nil {
		return err
	}

	e.logger.Info("instruction settled on paused execution",
		"execution_id", exec.ID, "instruction_id", ins.ID, "status", exec.Status)
	e.publishExecution(exec)
	return nil
}

// failExecution is terminal: no automatic retry at this layer, so the
// audit trail stays unambiguous about real-world side effects. Operators
// can force a retry explicitly.
func (e *ExecutionEngine) failExecution(ctx context.Context, exec *domain.Execution, stepID domain.StepID, action domain.ActionType, errMsg string) error {
	now := e.now().UTC()
	e.appendHistory(ctx, exec, stepID, action, domain.OutcomeFailed, "", errMsg)

	exec.Status = domain.ExecutionStatusFailed
	exec.WaitingFor = ""
	exec.WaitingJobID = nil
	exec.UpdatedAt = now
	if err := e.repo.SaveExecution(ctx, exec); err != nil {
		return err
	}
	if err := e.markProspectFailed(ctx, exec.ProspectID, now); err != nil {
		e.logger.Error("failed to update prospect status", "prospect_id", exec.ProspectID, "error", err)
	}

	e.logger.Warn("execution failed",
		"execution_id", exec.ID, "step_id", stepID, "error", errMsg)
	e.publishExecution(exec)
	return nil
}

// PauseCampaignForOffline pauses a whole campaign because its agent went
// offline: one agent serves the user's entire campaign set, so pausing is
// campaign-wide. Open instructions are cancelled (not failed — no
// real-world attempt occurred) atomically with the pause.
func (e *ExecutionEngine) PauseCampaignForOffline(ctx context.Context, campaign *domain.Campaign) error {
	now := e.now().UTC()

	campaign.Status = domain.CampaignStatusPaused
	campaign.PauseReason = domain.PauseReasonExtensionOffline
	campaign.PausedAt = &now
	campaign.AutoresumeWhenOnline = true
	campaign.UpdatedAt = now
	if err := e.repo.SaveCampaign(ctx, campaign); err != nil {
		return fmt.Errorf("pause campaign: %w", err)
	}

	cancelled, err := e.repo.CancelCampaignInstructions(ctx, campaign.ID, "extension_offline")
	if err != nil {
		return fmt.Errorf("cancel instructions: %w", err)
	}

	execs, err := e.repo.ListCampaignExecutions(ctx, campaign.ID)
	if err != nil {
		return err
	}
	for i := range execs {
		exec := &execs[i]
		if exec.Status.Terminal() || exec.Status.Halted() {
			continue
		}
		exec.Status = domain.ExecutionStatusPaused
		exec.PauseReason = domain.PauseReasonExtensionOffline
		exec.PausedAt = &now
		exec.UpdatedAt = now
		if err := e.repo.SaveExecution(ctx, exec); err != nil {
			return err
		}
		e.appendHistory(ctx, exec, exec.CurrentStepID, "", domain.OutcomePaused, string(domain.PauseReasonExtensionOffline), "")
		e.publishExecution(exec)
	}

	// Invariant: a campaign paused for extension_offline has zero open
	// instructions. Violation means a racing writer slipped through.
	if open, err := e.repo.CountOpenInstructions(ctx, campaign.ID); err == nil && open > 0 {
		e.logger.Error("open instructions remain after offline pause",
			"campaign_id", campaign.ID, "open", open)
	}

	e.logger.Info("campaign paused for offline agent",
		"campaign_id", campaign.ID, "cancelled_instructions", cancelled)
	return nil
}

// ResumeExecution reverses a pause. If the instruction the execution was
// waiting on got cancelled while paused, the same step is re-driven — no
// side effect occurred, so nothing may be skipped. A throttled instruction
// is reactivated with its original schedule intact.
func (e *ExecutionEngine) ResumeExecution(ctx context.Context, exec *domain.Execution) error {
	return e.resumeWithFloor(ctx, exec, time.Time{})
}

func (e *ExecutionEngine) resumeWithFloor(ctx context.Context, exec *domain.Execution, notBefore time.Time) error {
	now := e.now().UTC()

	if exec.WaitingJobID != nil {
		ins, err := e.repo.GetInstruction(ctx, *exec.WaitingJobID)
		if errors.Is(err, domain.ErrInstructionNotFound) {
			return e.failExecution(ctx, exec, exec.CurrentStepID, "", "missing step context")
		}
		if err != nil {
			return err
		}

		switch ins.Status {
		case domain.InstructionStatusCancelled:
			// Re-drive the same step, never the next one.
			e.appendHistory(ctx, exec, exec.CurrentStepID, ins.Action, domain.OutcomeResumed, "reissue after cancellation", "")
			return e.processStepWithFloor(ctx, exec, notBefore)
		case domain.InstructionStatusThrottled:
			if err := e.repo.TransitionInstruction(ctx, ins.ID,
				domain.InstructionStatusThrottled, domain.InstructionStatusPending, nil); err != nil && !errors.Is(err, domain.ErrStatusConflict) {
				return err
			}
		}

		// The awaited instruction is still live (or settled and about to be
		// reported); just flip back to waiting.
		exec.Status = domain.ExecutionStatusWaiting
		exec.PausedAt = nil
		exec.PauseReason = ""
		exec.UpdatedAt = now
		if err := e.repo.SaveExecution(ctx, exec); err != nil {
			return err
		}
		e.appendHistory(ctx, exec, exec.CurrentStepID, ins.Action, domain.OutcomeResumed, "", "")
		e.publishExecution(exec)
		return nil
	}

	pending, err := e.repo.ListPendingActions(ctx, exec.ID)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		exec.Status = domain.ExecutionStatusWaiting
		exec.PausedAt = nil
		exec.PauseReason = ""
		exec.UpdatedAt = now
		if err := e.repo.SaveExecution(ctx, exec); err != nil {
			return err
		}
		e.appendHistory(ctx, exec, exec.CurrentStepID, "", domain.OutcomeResumed, "", "")
		e.publishExecution(exec)
		return nil
	}

	// No outstanding work: resume normal processing immediately.
	exec.Status = domain.ExecutionStatusRunning
	exec.PausedAt = nil
	exec.PauseReason = ""
	exec.UpdatedAt = now
	if err := e.repo.SaveExecution(ctx, exec); err != nil {
		return err
	}
	e.appendHistory(ctx, exec, exec.CurrentStepID, "", domain.OutcomeResumed, "", "")
	return e.processStepWithFloor(ctx, exec, notBefore)
}

// ResumeExecutionAfter is the staggered-resume entry point: executions
// with no outstanding work get their fresh action floored at notBefore so
// a large backlog restarts spread out instead of all at once.
func (e *ExecutionEngine) ResumeExecutionAfter(ctx context.Context, exec *domain.Execution, notBefore time.Time) error {
	return e.resumeWithFloor(ctx, exec, notBefore)
}

// PauseExecution is the operator-facing manual pause. The outstanding
// instruction is throttled, not cancelled, so resume keeps the original
// schedule intent.
func (e *ExecutionEngine) PauseExecution(ctx context.Context, exec *domain.Execution, reason domain.PauseReason) error {
	if exec.Status.Terminal() {
		return fmt.Errorf("cannot pause %s execution", exec.Status)
	}
	now := e.now().UTC()

	if exec.WaitingJobID != nil {
		err := e.repo.TransitionInstruction(ctx, *exec.WaitingJobID,
			domain.InstructionStatusPending, domain.InstructionStatusThrottled, nil)
		if err != nil && !errors.Is(err, domain.ErrStatusConflict) && !errors.Is(err, domain.ErrInstructionNotFound) {
			return err
		}
	}

	exec.Status = domain.ExecutionStatusPaused
	if reason == domain.PauseReasonManualTask {
		exec.Status = domain.ExecutionStatusPausedForManualTask
	}
	exec.PauseReason = reason
	exec.PausedAt = &now
	exec.UpdatedAt = now
	if err := e.repo.SaveExecution(ctx, exec); err != nil {
		return err
	}
	e.appendHistory(ctx, exec, exec.CurrentStepID, "", domain.OutcomePaused, string(reason), "")
	e.publishExecution(exec)
	return nil
}

// MarkReplied records an inbound reply: the prospect is done being
// contacted, the execution pauses without touching its history.
func (e *ExecutionEngine) MarkReplied(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) error {
	now := e.now().UTC()

	prospect, err := e.repo.GetProspect(ctx, prospectID)
	if err != nil {
		return err
	}
	prospect.Status = domain.ProspectStatusReplied
	prospect.UpdatedAt = now
	if err := e.repo.SaveProspect(ctx, prospect); err != nil {
		return err
	}
	e.notifySink(ctx, prospect)

	exec, err := e.repo.FindExecution(ctx, campaignID, prospectID)
	if errors.Is(err, domain.ErrExecutionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return nil
	}

	// The queued outbound instruction must not stay claimable once a reply
	// is in. One already claimed settles against the pause guard instead.
	if exec.WaitingJobID != nil {
		err := e.repo.TransitionInstruction(ctx, *exec.WaitingJobID,
			domain.InstructionStatusPending, domain.InstructionStatusThrottled, nil)
		if err != nil && !errors.Is(err, domain.ErrStatusConflict) && !errors.Is(err, domain.ErrInstructionNotFound) {
			return err
		}
	}

	e.appendHistory(ctx, exec, exec.CurrentStepID, "", domain.OutcomeReplied, string(domain.PauseReasonProspectReplied), "")
	exec.Status = domain.ExecutionStatusPaused
	exec.PauseReason = domain.PauseReasonProspectReplied
	exec.PausedAt = &now
	exec.UpdatedAt = now
	if err := e.repo.SaveExecution(ctx, exec); err != nil {
		return err
	}

	e.logger.Info("reply detected, outbound contact halted",
		"campaign_id", campaignID, "prospect_id", prospectID)
	e.publishExecution(exec)
	return nil
}

// RetryFailed forces a failed execution back to running. Operator action
// only, never automatic.
func (e *ExecutionEngine) RetryFailed(ctx context.Context, exec *domain.Execution) error {
	if exec.Status != domain.ExecutionStatusFailed {
		return fmt.Errorf("execution is %s, not failed", exec.Status)
	}
	exec.Status = domain.ExecutionStatusRunning
	exec.UpdatedAt = e.now().UTC()
	if err := e.repo.SaveExecution(ctx, exec); err != nil {
		return err
	}
	e.appendHistory(ctx, exec, exec.CurrentStepID, "", domain.OutcomeResumed, "operator retry", "")
	return e.ProcessStep(ctx, exec)
}

func (e *ExecutionEngine) markContacted(ctx context.Context, id domain.ProspectID, now time.Time) error {
	prospect, err := e.repo.GetProspect(ctx, id)
	if err != nil {
		return err
	}
	if prospect.Status == domain.ProspectStatusReplied {
		return nil
	}
	prospect.Status = domain.ProspectStatusContacted
	if prospect.ContactedAt == nil {
		prospect.ContactedAt = &now
	}
	prospect.UpdatedAt = now
	if err := e.repo.SaveProspect(ctx, prospect); err != nil {
		return err
	}
	e.notifySink(ctx, prospect)
	return nil
}

// markProspectFailed records that the engine gave up on the prospect. A
// reply already on record outranks the failure.
func (e *ExecutionEngine) markProspectFailed(ctx context.Context, id domain.ProspectID, now time.Time) error {
	prospect, err := e.repo.GetProspect(ctx, id)
	if err != nil {
		return err
	}
	if prospect.Status == domain.ProspectStatusReplied {
		return nil
	}
	prospect.Status = domain.ProspectStatusFailed
	prospect.UpdatedAt = now
	if err := e.repo.SaveProspect(ctx, prospect); err != nil {
		return err
	}
	e.notifySink(ctx, prospect)
	return nil
}

func (e *ExecutionEngine) notifySink(ctx context.Context, prospect *domain.Prospect) {
	if e.sink == nil {
		return
	}
	if err := e.sink.ProspectStatusChanged(ctx, *prospect); err != nil {
		e.logger.Warn("prospect sink notification failed",
			"prospect_id", prospect.ID, "error", err)
	}
}

func (e *ExecutionEngine) settleScheduledAction(ctx context.Context, exec *domain.Execution, stepID domain.StepID, result string) {
	actions, err := e.repo.ListPendingActions(ctx, exec.ID)
	if err != nil {
		e.logger.Error("failed to list scheduled actions", "execution_id", exec.ID, "error", err)
		return
	}
	for _, a := range actions {
		if a.StepID != stepID {
			continue
		}
		if err := e.repo.MarkActionProcessed(ctx, a.ID, result); err != nil {
			e.logger.Error("failed to mark action processed", "action_id", a.ID, "error", err)
		}
	}
}

func (e *ExecutionEngine) appendHistory(ctx context.Context, exec *domain.Execution, stepID domain.StepID, action domain.ActionType, outcome, reason, errMsg string) {
	h := &domain.HistoryEntry{
		ExecutionID: exec.ID,
		StepID:      stepID,
		Action:      action,
		Outcome:     outcome,
		Reason:      reason,
		Error:       errMsg,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.repo.AppendHistory(ctx, h); err != nil {
		e.logger.Error("failed to append history", "execution_id", exec.ID, "error", err)
	}
}

func (e *ExecutionEngine) publishExecution(exec *domain.Execution) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(Event{
		CampaignID: string(exec.CampaignID),
		Type:       EventTypeExecution,
		Data: fmt.Sprintf(`{"execution_id":%q,"status":%q,"step_id":%q,"pause_reason":%q}`,
			exec.ID, exec.Status, exec.CurrentStepID, exec.PauseReason),
		Timestamp: e.now().UnixMilli(),
	})
}
