package duckdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CampaignsAndSteps(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// 1. Save campaign
	c := domain.Campaign{
		ID: "c1", UserID: "u1", Name: "launch",
		Status:    domain.CampaignStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.SaveCampaign(ctx, &c))

	// 2. Get campaign
	fetched, err := repo.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, fetched.ID)
	assert.Equal(t, domain.CampaignStatusActive, fetched.Status)

	_, err = repo.GetCampaign(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)

	// 3. Update via upsert
	c.Status = domain.CampaignStatusPaused
	c.PauseReason = domain.PauseReasonExtensionOffline
	c.AutoresumeWhenOnline = true
	require.NoError(t, repo.SaveCampaign(ctx, &c))

	fetched, err = repo.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusPaused, fetched.Status)
	assert.Equal(t, domain.PauseReasonExtensionOffline, fetched.PauseReason)
	assert.True(t, fetched.AutoresumeWhenOnline)

	// 4. Autoresume listing
	autoresume, err := repo.ListAutoresumeCampaigns(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, autoresume, 1)

	// 5. Steps and chain resolution
	require.NoError(t, repo.SaveStep(ctx, &domain.CampaignStep{
		ID: "s2", CampaignID: "c1", Action: domain.ActionSendMessage,
		Content: "following up", Position: 1,
	}))
	require.NoError(t, repo.SaveStep(ctx, &domain.CampaignStep{
		ID: "s1", CampaignID: "c1", Action: domain.ActionSendInvitation,
		Content: "hi", NextStepID: "s2", Position: 0,
		Delay: domain.StepDelay{Min: time.Minute, Max: 5 * time.Minute},
	}))

	first, err := repo.FirstStep(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepID("s1"), first.ID)
	assert.Equal(t, time.Minute, first.Delay.Min)

	step, err := repo.GetStep(ctx, "c1", "s2")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSendMessage, step.Action)

	_, err = repo.GetStep(ctx, "c1", "s9")
	assert.ErrorIs(t, err, domain.ErrStepNotFound)
}

func TestRepository_Executions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e := domain.Execution{
		ID: "e1", CampaignID: "c1", ProspectID: "p1", UserID: "u1",
		CurrentStepID: "s1",
		Status:        domain.ExecutionStatusRunning,
		CreatedAt:     now, UpdatedAt: now,
	}
	require.NoError(t, repo.CreateExecution(ctx, &e))

	// One execution per (campaign, prospect) pair, enforced by the store.
	dup := e
	dup.ID = "e1-dup"
	assert.ErrorIs(t, repo.CreateExecution(ctx, &dup), domain.ErrExecutionExists)

	jobID := domain.InstructionID("i1")
	e.Status = domain.ExecutionStatusWaiting
	e.WaitingFor = string(domain.ActionSendInvitation)
	e.WaitingJobID = &jobID
	require.NoError(t, repo.SaveExecution(ctx, &e))

	fetched, err := repo.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusWaiting, fetched.Status)
	require.NotNil(t, fetched.WaitingJobID)
	assert.Equal(t, jobID, *fetched.WaitingJobID)

	found, err := repo.FindExecution(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, e.ID, found.ID)

	_, err = repo.FindExecution(ctx, "c1", "p9")
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)

	missing := domain.Execution{ID: "ghost", UpdatedAt: now}
	assert.ErrorIs(t, repo.SaveExecution(ctx, &missing), domain.ErrExecutionNotFound)

	// Paused-offline listing only matches the given campaigns.
	e.Status = domain.ExecutionStatusPaused
	e.PauseReason = domain.PauseReasonExtensionOffline
	require.NoError(t, repo.SaveExecution(ctx, &e))

	paused, err := repo.ListPausedOffline(ctx, []domain.CampaignID{"c1"})
	require.NoError(t, err)
	assert.Len(t, paused, 1)

	paused, err = repo.ListPausedOffline(ctx, []domain.CampaignID{"other"})
	require.NoError(t, err)
	assert.Empty(t, paused)
}

func TestRepository_HistoryAndScheduledActions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, outcome := range []string{domain.OutcomeScheduled, domain.OutcomeCompleted, domain.OutcomePaused} {
		require.NoError(t, repo.AppendHistory(ctx, &domain.HistoryEntry{
			ExecutionID: "e1", StepID: "s1", Outcome: outcome,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	history, err := repo.ListHistory(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.OutcomeScheduled, history[0].Outcome)
	assert.Equal(t, domain.OutcomePaused, history[2].Outcome)

	a := domain.ScheduledAction{
		ExecutionID: "e1", StepID: "s1", Action: domain.ActionSendInvitation,
		ScheduledFor: base.Add(time.Minute), CreatedAt: base,
	}
	require.NoError(t, repo.AddScheduledAction(ctx, &a))
	assert.NotZero(t, a.ID)

	pending, err := repo.ListPendingActions(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.MarkActionProcessed(ctx, a.ID, "completed"))
	pending, err = repo.ListPendingActions(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRepository_InstructionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ins := domain.Instruction{
		ID: "i1", UserID: "u1", CampaignID: "c1", ProspectID: "p1",
		ExecutionID: "e1", StepID: "s1",
		Action:       domain.ActionSendMessage,
		Status:       domain.InstructionStatusPending,
		ScheduledFor: now.Add(time.Minute),
		Payload: domain.InstructionPayload{
			ProfileURL:     "https://example.com/in/jane",
			Message:        "hello",
			ConversationID: "conv-7",
			NextStepID:     "s2",
		},
		RateLimit: domain.RateLimitContext{HourlyCap: 10, WithinWorking: true},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.SaveInstruction(ctx, &ins))

	// 1. Payload and limiter context round-trip through JSON columns.
	fetched, err := repo.GetInstruction(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "hello", fetched.Payload.Message)
	assert.Equal(t, "conv-7", fetched.Payload.ConversationID)
	assert.Equal(t, 10, fetched.RateLimit.HourlyCap)
	assert.Nil(t, fetched.Result)

	_, err = repo.GetInstruction(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrInstructionNotFound)

	// 2. Compare-and-set transitions
	require.NoError(t, repo.TransitionInstruction(ctx, "i1",
		domain.InstructionStatusPending, domain.InstructionStatusProcessing, nil))

	err = repo.TransitionInstruction(ctx, "i1",
		domain.InstructionStatusPending, domain.InstructionStatusProcessing, nil)
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	err = repo.TransitionInstruction(ctx, "ghost",
		domain.InstructionStatusPending, domain.InstructionStatusProcessing, nil)
	assert.ErrorIs(t, err, domain.ErrInstructionNotFound)

	// 3. Settlement stores the result
	result := &domain.InstructionResult{Success: true, ConversationID: "conv-8"}
	require.NoError(t, repo.TransitionInstruction(ctx, "i1",
		domain.InstructionStatusProcessing, domain.InstructionStatusCompleted, result))

	fetched, err = repo.GetInstruction(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.InstructionStatusCompleted, fetched.Status)
	require.NotNil(t, fetched.Result)
	assert.Equal(t, "conv-8", fetched.Result.ConversationID)

	// 4. The settled result survives later conversation lookups
	conv, err := repo.LatestConversationID(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "conv-8", conv)
}

func TestRepository_CancelCampaignInstructions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(id string, status domain.InstructionStatus) {
		require.NoError(t, repo.SaveInstruction(ctx, &domain.Instruction{
			ID: domain.InstructionID(id), UserID: "u1", CampaignID: "c1",
			ProspectID: "p1", ExecutionID: "e1",
			Action: domain.ActionSendInvitation, Status: status,
			ScheduledFor: now, CreatedAt: now, UpdatedAt: now,
		}))
	}
	mk("pend", domain.InstructionStatusPending)
	mk("proc", domain.InstructionStatusProcessing)
	mk("done", domain.InstructionStatusCompleted)

	n, err := repo.CancelCampaignInstructions(ctx, "c1", "extension_offline")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	open, err := repo.CountOpenInstructions(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, open)

	cancelled, err := repo.GetInstruction(ctx, "pend")
	require.NoError(t, err)
	assert.Equal(t, domain.InstructionStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Result)
	assert.Equal(t, "extension_offline", cancelled.Result.CancelReason)

	// Settled instructions are never rewritten.
	done, err := repo.GetInstruction(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, domain.InstructionStatusCompleted, done.Status)
}

func TestRepository_RateCountersAndLimits(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Missing row reads as zeroed counters.
	c, err := repo.GetCounters(ctx, "u1", "invitation")
	require.NoError(t, err)
	assert.Zero(t, c.ActionsThisHour)
	assert.Nil(t, c.LastActionAt)

	require.NoError(t, repo.RecordAction(ctx, "u1", "invitation", now))
	require.NoError(t, repo.RecordAction(ctx, "u1", "invitation", now.Add(time.Minute)))

	c, err = repo.GetCounters(ctx, "u1", "invitation")
	require.NoError(t, err)
	assert.Equal(t, 2, c.ActionsThisHour)
	assert.Equal(t, 2, c.ActionsToday)
	assert.Equal(t, 2, c.ActionsThisWeek)
	require.NotNil(t, c.LastActionAt)

	// Families count independently.
	c, err = repo.GetCounters(ctx, "u1", "message")
	require.NoError(t, err)
	assert.Zero(t, c.ActionsToday)

	// Limit settings round-trip; a missing row is empty, not an error.
	s, err := repo.GetLimitSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, s.Families)

	require.NoError(t, repo.SaveLimitSettings(ctx, &domain.LimitSettings{
		UserID: "u1",
		Families: map[string]domain.FamilyLimits{
			"invitation": {HourlyCap: 5, DailyCap: 20, MinSpacing: 2 * time.Minute},
		},
		WorkingHours: &domain.WorkingHours{Enabled: true, StartHour: 8, EndHour: 17},
	}))

	s, err = repo.GetLimitSettings(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, s.Families, "invitation")
	assert.Equal(t, 5, s.Families["invitation"].HourlyCap)
	assert.Equal(t, 2*time.Minute, s.Families["invitation"].MinSpacing)
	require.NotNil(t, s.WorkingHours)
	assert.Equal(t, 8, s.WorkingHours.StartHour)
}

func TestRepository_AgentLiveness(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.GetLiveness(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)

	require.NoError(t, repo.SaveLiveness(ctx, &domain.AgentLiveness{
		UserID: "u1", IsActive: true, LastSeen: now.Add(-5 * time.Minute),
	}))
	require.NoError(t, repo.SaveLiveness(ctx, &domain.AgentLiveness{
		UserID: "u2", IsActive: true, LastSeen: now,
	}))
	require.NoError(t, repo.SaveLiveness(ctx, &domain.AgentLiveness{
		UserID: "u3", IsActive: false, LastSeen: now.Add(-time.Hour),
	}))

	stale, err := repo.ListStaleAgents(ctx, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, domain.UserID("u1"), stale[0].UserID)
}

func TestRepository_ReplyChecks(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seen, err := repo.WasCheckedSince(ctx, "c1", "p1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, repo.MarkChecked(ctx, "c1", "p1", now))

	seen, err = repo.WasCheckedSince(ctx, "c1", "p1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = repo.WasCheckedSince(ctx, "c1", "p1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, repo.PruneCheckedBefore(ctx, now.Add(time.Minute)))
	seen, err = repo.WasCheckedSince(ctx, "c1", "p1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRepository_Settings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetSetting(ctx, "engine_config")
	assert.Error(t, err)

	require.NoError(t, repo.SaveSetting(ctx, "engine_config", `{"v":1}`))
	v, err := repo.GetSetting(ctx, "engine_config")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, v)

	require.NoError(t, repo.SaveSetting(ctx, "engine_config", `{"v":2}`))
	v, err = repo.GetSetting(ctx, "engine_config")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, v)
}
