package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// MonitorRepository defines what the health monitor reads and writes.
type MonitorRepository interface {
	GetLiveness(ctx context.Context, userID domain.UserID) (*domain.AgentLiveness, error)
	SaveLiveness(ctx context.Context, l *domain.AgentLiveness) error
	ListStaleAgents(ctx context.Context, olderThan time.Time) ([]domain.AgentLiveness, error)

	ListCampaigns(ctx context.Context, userID domain.UserID) ([]domain.Campaign, error)
	ListAutoresumeCampaigns(ctx context.Context, userID domain.UserID) ([]domain.Campaign, error)
	SaveCampaign(ctx context.Context, c *domain.Campaign) error

	ListPausedOffline(ctx context.Context, campaignIDs []domain.CampaignID) ([]domain.Execution, error)
	ListPendingActions(ctx context.Context, executionID domain.ExecutionID) ([]domain.ScheduledAction, error)
	GetInstruction(ctx context.Context, id domain.InstructionID) (*domain.Instruction, error)
}

// HealthMonitor watches agent heartbeats. Absence of a heartbeat is
// exactly the signal, so detection runs on a fixed interval rather than
// events. On timeout it pauses everything the agent was serving; on
// reconnect it resumes, staggering large backlogs so the restart itself
// does not become a second outage.
type HealthMonitor struct {
	logger *slog.Logger
	repo   MonitorRepository
	engine *ExecutionEngine
	bus    *EventBus
	cfg    domain.MonitorConfig
	now    func() time.Time

	mu       sync.Mutex
	resuming map[domain.UserID]bool
}

func NewHealthMonitor(logger *slog.Logger, repo MonitorRepository, engine *ExecutionEngine, bus *EventBus, cfg domain.MonitorConfig) *HealthMonitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.OfflineTimeout <= 0 {
		cfg.OfflineTimeout = 2 * time.Minute
	}
	if cfg.StaggerThreshold <= 0 {
		cfg.StaggerThreshold = 100
	}
	if cfg.StaggerSpacing <= 0 {
		cfg.StaggerSpacing = 10 * time.Second
	}
	return &HealthMonitor{
		logger:   logger,
		repo:     repo,
		engine:   engine,
		bus:      bus,
		cfg:      cfg,
		now:      time.Now,
		resuming: make(map[domain.UserID]bool),
	}
}

// Run starts the liveness sweep loop. Blocks until ctx is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) error {
	m.logger.Info("health monitor started",
		"check_interval", m.cfg.CheckInterval, "offline_timeout", m.cfg.OfflineTimeout)
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep marks every agent whose heartbeat went stale as offline and
// pauses its workload.
func (m *HealthMonitor) Sweep(ctx context.Context) {
	cutoff := m.now().UTC().Add(-m.cfg.OfflineTimeout)
	stale, err := m.repo.ListStaleAgents(ctx, cutoff)
	if err != nil {
		m.logger.Error("failed to list stale agents", "error", err)
		return
	}

	for i := range stale {
		m.markOffline(ctx, &stale[i])
	}
}

func (m *HealthMonitor) markOffline(ctx context.Context, l *domain.AgentLiveness) {
	now := m.now().UTC()
	m.logger.Warn("agent went offline",
		"user_id", l.UserID, "last_seen", l.LastSeen)

	l.IsActive = false
	l.LastDisconnectedAt = &now
	if err := m.repo.SaveLiveness(ctx, l); err != nil {
		m.logger.Error("failed to save liveness", "user_id", l.UserID, "error", err)
		return
	}
	m.publishAgent(l.UserID, "offline")

	campaigns, err := m.repo.ListCampaigns(ctx, l.UserID)
	if err != nil {
		m.logger.Error("failed to list campaigns", "user_id", l.UserID, "error", err)
		return
	}
	for i := range campaigns {
		c := &campaigns[i]
		if c.Status != domain.CampaignStatusActive {
			// Manually paused or finished campaigns are not touched and
			// must not auto-resume.
			continue
		}
		if err := m.engine.PauseCampaignForOffline(ctx, c); err != nil {
			m.logger.Error("failed to pause campaign", "campaign_id", c.ID, "error", err)
		}
	}
}

// Heartbeat records an agent poll. The first heartbeat after a recorded
// disconnect triggers the reconnect path.
func (m *HealthMonitor) Heartbeat(ctx context.Context, userID domain.UserID) error {
	now := m.now().UTC()

	l, err := m.repo.GetLiveness(ctx, userID)
	if errors.Is(err, domain.ErrAgentNotFound) {
		l = &domain.AgentLiveness{UserID: userID}
	} else if err != nil {
		return err
	}

	wasActive := l.IsActive
	l.IsActive = true
	l.LastSeen = now
	if !wasActive {
		l.LastConnectedAt = &now
	}
	if err := m.repo.SaveLiveness(ctx, l); err != nil {
		return err
	}

	if !wasActive {
		m.publishAgent(userID, "online")
		m.handleReconnect(ctx, userID, now)
	}
	return nil
}

// handleReconnect restarts campaigns the monitor itself paused. A second
// heartbeat arriving while a resume pass is in flight means "still
// reconnecting" and is a no-op.
func (m *HealthMonitor) handleReconnect(ctx context.Context, userID domain.UserID, reconnectAt time.Time) {
	m.mu.Lock()
	if m.resuming[userID] {
		m.mu.Unlock()
		m.logger.Info("resume already in progress, ignoring heartbeat trigger", "user_id", userID)
		return
	}
	m.resuming[userID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.resuming, userID)
		m.mu.Unlock()
	}()

	campaigns, err := m.repo.ListAutoresumeCampaigns(ctx, userID)
	if err != nil {
		m.logger.Error("failed to list autoresume campaigns", "user_id", userID, "error", err)
		return
	}
	if len(campaigns) == 0 {
		return
	}

	ids := make([]domain.CampaignID, 0, len(campaigns))
	for i := range campaigns {
		c := &campaigns[i]
		c.Status = domain.CampaignStatusActive
		c.AutoresumeWhenOnline = false
		c.PauseReason = ""
		c.PausedAt = nil
		c.UpdatedAt = reconnectAt
		if err := m.repo.SaveCampaign(ctx, c); err != nil {
			m.logger.Error("failed to reactivate campaign", "campaign_id", c.ID, "error", err)
			continue
		}
		ids = append(ids, c.ID)
	}

	paused, err := m.repo.ListPausedOffline(ctx, ids)
	if err != nil {
		m.logger.Error("failed to list paused executions", "user_id", userID, "error", err)
		return
	}

	m.logger.Info("agent reconnected, resuming campaigns",
		"user_id", userID, "campaigns", len(ids), "paused_executions", len(paused))

	if len(paused) > m.cfg.StaggerThreshold {
		m.resumeStaggered(ctx, paused, reconnectAt)
		return
	}

	for i := range paused {
		if err := m.engine.ResumeExecution(ctx, &paused[i]); err != nil {
			m.logger.Error("failed to resume execution", "execution_id", paused[i].ID, "error", err)
		}
	}
}

// resumeStaggered bounds the restart burst: executions that need a fresh
// schedule get floors spaced ~StaggerSpacing apart instead of all landing
// due-now. Executions that still have outstanding work just flip back to
// waiting; missing step context fails them rather than dropping silently.
func (m *HealthMonitor) resumeStaggered(ctx context.Context, paused []domain.Execution, reconnectAt time.Time) {
	fresh := 0
	for i := range paused {
		exec := &paused[i]

		needsSchedule, err := m.needsFreshSchedule(ctx, exec)
		if err != nil {
			m.logger.Error("failed to inspect execution for resume", "execution_id", exec.ID, "error", err)
			continue
		}

		floor := time.Time{}
		if needsSchedule {
			floor = reconnectAt.Add(time.Duration(fresh) * m.cfg.StaggerSpacing)
			fresh++
		}
		if err := m.engine.ResumeExecutionAfter(ctx, exec, floor); err != nil {
			m.logger.Error("failed to resume execution", "execution_id", exec.ID, "error", err)
		}
	}
	m.logger.Info("staggered resume complete",
		"total", len(paused), "rescheduled", fresh, "spacing", m.cfg.StaggerSpacing)
}

// needsFreshSchedule reports whether resuming will have to create a new
// instruction (true) or can reuse outstanding work (false).
func (m *HealthMonitor) needsFreshSchedule(ctx context.Context, exec *domain.Execution) (bool, error) {
	if exec.WaitingJobID != nil {
		ins, err := m.repo.GetInstruction(ctx, *exec.WaitingJobID)
		if errors.Is(err, domain.ErrInstructionNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return ins.Status == domain.InstructionStatusCancelled, nil
	}

	pending, err := m.repo.ListPendingActions(ctx, exec.ID)
	if err != nil {
		return false, err
	}
	return len(pending) == 0, nil
}

func (m *HealthMonitor) publishAgent(userID domain.UserID, state string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(Event{
		CampaignID: BroadcastChannel,
		Type:       EventTypeAgent,
		Data:       `{"user_id":"` + string(userID) + `","state":"` + state + `"}`,
		Timestamp:  m.now().UnixMilli(),
	})
}
