package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// SweepRepository defines persistence for the reply detection sweep.
type SweepRepository interface {
	ListContactedProspects(ctx context.Context, since time.Time) ([]domain.Prospect, error)
	GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error)
	FindExecution(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (*domain.Execution, error)

	LatestConversationID(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (string, error)
	SaveInstruction(ctx context.Context, ins *domain.Instruction) error
	GetInstruction(ctx context.Context, id domain.InstructionID) (*domain.Instruction, error)

	WasCheckedSince(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID, since time.Time) (bool, error)
	MarkChecked(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID, at time.Time) error
	PruneCheckedBefore(ctx context.Context, cutoff time.Time) error
}

// ReplySweep periodically asks the agent, via check_replies instructions,
// whether recently contacted prospects wrote back. Positive results reach
// the state machine through the normal report path; the sweep itself only
// paces the checks and dedupes them.
type ReplySweep struct {
	logger  *slog.Logger
	repo    SweepRepository
	limiter *RateLimiter
	cfg     domain.SweepConfig
	now     func() time.Time
}

func NewReplySweep(logger *slog.Logger, repo SweepRepository, limiter *RateLimiter, cfg domain.SweepConfig) *ReplySweep {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.ContactWindow <= 0 {
		cfg.ContactWindow = 7 * 24 * time.Hour
	}
	if cfg.CheckCacheTTL <= 0 {
		cfg.CheckCacheTTL = 30 * time.Minute
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 25 * time.Second
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	return &ReplySweep{
		logger:  logger,
		repo:    repo,
		limiter: limiter,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run starts the sweep loop. Blocks until ctx is cancelled.
func (s *ReplySweep) Run(ctx context.Context) error {
	s.logger.Info("reply sweep started", "interval", s.cfg.Interval)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reply sweep stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one full pass: select candidates, check them in small
// batches with a delay in between so the agent's poll queue is never
// flooded.
func (s *ReplySweep) SweepOnce(ctx context.Context) {
	now := s.now().UTC()

	if err := s.repo.PruneCheckedBefore(ctx, now.Add(-s.cfg.CheckCacheTTL)); err != nil {
		s.logger.Error("failed to prune reply-check cache", "error", err)
	}

	prospects, err := s.repo.ListContactedProspects(ctx, now.Add(-s.cfg.ContactWindow))
	if err != nil {
		s.logger.Error("failed to list contacted prospects", "error", err)
		return
	}
	if len(prospects) == 0 {
		return
	}

	checked := 0
	for i, p := range prospects {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && i%s.cfg.BatchSize == 0 {
			if !sleepCtx(ctx, s.cfg.BatchDelay) {
				return
			}
		}
		if s.checkProspect(ctx, p) {
			checked++
		}
	}
	s.logger.Info("reply sweep pass finished", "candidates", len(prospects), "checked", checked)
}

// checkProspect issues one check_replies instruction and waits, bounded,
// for the agent to settle it. Returns whether a check was actually issued.
func (s *ReplySweep) checkProspect(ctx context.Context, p domain.Prospect) bool {
	now := s.now().UTC()

	recently, err := s.repo.WasCheckedSince(ctx, p.CampaignID, p.ID, now.Add(-s.cfg.CheckCacheTTL))
	if err != nil {
		s.logger.Error("reply-check cache lookup failed", "prospect_id", p.ID, "error", err)
		return false
	}
	if recently {
		return false
	}

	campaign, err := s.repo.GetCampaign(ctx, p.CampaignID)
	if err != nil || campaign.Status != domain.CampaignStatusActive {
		return false
	}

	convID, err := s.repo.LatestConversationID(ctx, p.CampaignID, p.ID)
	if err != nil {
		s.logger.Error("conversation lookup failed", "prospect_id", p.ID, "error", err)
		return false
	}
	if convID == "" {
		// No message instruction has completed yet — nothing to check,
		// not an error.
		return false
	}

	exec, err := s.repo.FindExecution(ctx, p.CampaignID, p.ID)
	if errors.Is(err, domain.ErrExecutionNotFound) {
		return false
	}
	if err != nil {
		s.logger.Error("execution lookup failed", "prospect_id", p.ID, "error", err)
		return false
	}

	slot, err := s.limiter.NextAvailableSlot(ctx, p.UserID, domain.ActionCheckReplies, 0)
	if err != nil {
		slot = now
	}

	ins := &domain.Instruction{
		ID:          domain.InstructionID(uuid.NewString()),
		UserID:      p.UserID,
		CampaignID:  p.CampaignID,
		ProspectID:  p.ID,
		ExecutionID: exec.ID,
		Action:      domain.ActionCheckReplies,
		Status:      domain.InstructionStatusPending,
		// Never earlier than now; checks are low priority.
		ScheduledFor: slot,
		Payload: domain.InstructionPayload{
			ProfileURL:     p.ProfileURL,
			ConversationID: convID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveInstruction(ctx, ins); err != nil {
		s.logger.Error("failed to create check instruction", "prospect_id", p.ID, "error", err)
		return false
	}
	if err := s.repo.MarkChecked(ctx, p.CampaignID, p.ID, now); err != nil {
		s.logger.Error("failed to record reply check", "prospect_id", p.ID, "error", err)
	}

	settled := s.waitForSettlement(ctx, ins.ID)
	if settled == nil {
		// Timeout resolves to "no reply detected this cycle", not an
		// error; a late positive report still reaches the engine through
		// the normal settlement path.
		s.logger.Info("reply check did not settle in time", "instruction_id", ins.ID, "prospect_id", p.ID)
		return true
	}

	if settled.Result != nil && settled.Result.ReplyDetected {
		s.logger.Info("reply detected", "campaign_id", p.CampaignID, "prospect_id", p.ID)
	}
	return true
}

// waitForSettlement polls until the instruction settles or the timeout
// elapses. Never blocks indefinitely: the agent may simply not respond.
func (s *ReplySweep) waitForSettlement(ctx context.Context, id domain.InstructionID) *domain.Instruction {
	deadline := s.now().Add(s.cfg.SettleTimeout)
	for s.now().Before(deadline) {
		ins, err := s.repo.GetInstruction(ctx, id)
		if err == nil && ins.Status.Settled() {
			return ins
		}
		if !sleepCtx(ctx, s.cfg.SettleInterval) {
			return nil
		}
	}
	return nil
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
