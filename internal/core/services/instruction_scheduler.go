package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// Default delay bands per action family, used when the campaign step does
// not configure its own. Randomized delays avoid detectable periodicity.
var defaultDelays = map[domain.ActionType]domain.StepDelay{
	domain.ActionSendInvitation: {Min: 2 * time.Minute, Max: 10 * time.Minute},
	domain.ActionSendMessage:    {Min: 1 * time.Minute, Max: 5 * time.Minute},
	domain.ActionVisitProfile:   {Min: 30 * time.Second, Max: 3 * time.Minute},
	domain.ActionCheckReplies:   {Min: 0, Max: 30 * time.Second},
}

// SchedulerRepository defines persistence for freshly scheduled work.
type SchedulerRepository interface {
	SaveInstruction(ctx context.Context, ins *domain.Instruction) error
	AddScheduledAction(ctx context.Context, a *domain.ScheduledAction) error
	LatestConversationID(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (string, error)
}

// InstructionScheduler turns a campaign step into a time-slotted
// instruction the agent can execute without further lookups.
type InstructionScheduler struct {
	logger  *slog.Logger
	repo    SchedulerRepository
	limiter *RateLimiter
	bus     *EventBus
	now     func() time.Time
	randDur func(min, max time.Duration) time.Duration
}

func NewInstructionScheduler(logger *slog.Logger, repo SchedulerRepository, limiter *RateLimiter, bus *EventBus) *InstructionScheduler {
	return &InstructionScheduler{
		logger:  logger,
		repo:    repo,
		limiter: limiter,
		bus:     bus,
		now:     time.Now,
		randDur: randomDuration,
	}
}

func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

// Schedule creates and persists an instruction for the step at the next
// legal slot.
func (s *InstructionScheduler) Schedule(ctx context.Context, exec *domain.Execution, prospect *domain.Prospect, step *domain.CampaignStep) (*domain.Instruction, error) {
	return s.ScheduleWithFloor(ctx, exec, prospect, step, time.Time{})
}

// ScheduleWithFloor is Schedule with an extra earliest-time floor. The
// health monitor uses it to space out a large resume backlog; scheduledFor
// is never moved earlier, only later.
func (s *InstructionScheduler) ScheduleWithFloor(ctx context.Context, exec *domain.Execution, prospect *domain.Prospect, step *domain.CampaignStep, notBefore time.Time) (*domain.Instruction, error) {
	now := s.now().UTC()
	delay := s.delayFor(step)

	slot, err := s.limiter.NextAvailableSlot(ctx, exec.UserID, step.Action, delay)
	rlc, snapErr := s.limiter.Snapshot(ctx, exec.UserID, step.Action)
	if err != nil {
		// Degraded but available: schedule without throttling rather than
		// stall the campaign. Must stay rare; it is the only path that may
		// bypass strict throttling.
		slot = now.Add(delay)
		rlc = domain.RateLimitContext{Unthrottled: true}
		s.logger.Warn("rate limiter unavailable, scheduling unthrottled",
			"user_id", exec.UserID, "action", step.Action, "error", err)
	} else if snapErr != nil {
		s.logger.Warn("rate limit snapshot failed", "user_id", exec.UserID, "error", snapErr)
	}
	if slot.Before(notBefore) {
		slot = notBefore
	}
	if slot.Before(now) {
		slot = now
	}

	payload := domain.InstructionPayload{
		ProfileURL: prospect.ProfileURL,
		Message:    step.Content,
		NextStepID: step.NextStepID,
	}
	if step.Action == domain.ActionSendMessage || step.Action == domain.ActionCheckReplies {
		convID, err := s.repo.LatestConversationID(ctx, exec.CampaignID, exec.ProspectID)
		if err != nil {
			return nil, fmt.Errorf("resolve conversation: %w", err)
		}
		payload.ConversationID = convID
	}

	ins := &domain.Instruction{
		ID:           domain.InstructionID(uuid.NewString()),
		UserID:       exec.UserID,
		CampaignID:   exec.CampaignID,
		ProspectID:   exec.ProspectID,
		ExecutionID:  exec.ID,
		StepID:       step.ID,
		Action:       step.Action,
		Status:       domain.InstructionStatusPending,
		ScheduledFor: slot,
		Payload:      payload,
		RateLimit:    rlc,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.SaveInstruction(ctx, ins); err != nil {
		return nil, fmt.Errorf("save instruction: %w", err)
	}

	action := &domain.ScheduledAction{
		ExecutionID:  exec.ID,
		StepID:       step.ID,
		Action:       step.Action,
		ScheduledFor: slot,
		CreatedAt:    now,
	}
	if err := s.repo.AddScheduledAction(ctx, action); err != nil {
		return nil, fmt.Errorf("record scheduled action: %w", err)
	}

	s.logger.Info("instruction scheduled",
		"instruction_id", ins.ID, "execution_id", exec.ID,
		"action", ins.Action, "scheduled_for", slot)
	s.publish(ins)

	return ins, nil
}

func (s *InstructionScheduler) delayFor(step *domain.CampaignStep) time.Duration {
	band := step.Delay
	if band.Min == 0 && band.Max == 0 {
		band = defaultDelays[step.Action]
	}
	return s.randDur(band.Min, band.Max)
}

func (s *InstructionScheduler) publish(ins *domain.Instruction) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Event{
		CampaignID: string(ins.CampaignID),
		Type:       EventTypeInstruction,
		Data: fmt.Sprintf(`{"instruction_id":%q,"status":%q,"action":%q}`,
			ins.ID, ins.Status, ins.Action),
		Timestamp: s.now().UnixMilli(),
	})
}
