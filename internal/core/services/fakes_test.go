package services

import (
	"context"
	"sync"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// memRepo is the in-memory fixture store shared by the service tests. It
// implements the consumer interfaces of every service in this package.
type memRepo struct {
	mu sync.Mutex

	campaigns    map[domain.CampaignID]domain.Campaign
	steps        map[domain.StepID]domain.CampaignStep
	prospects    map[domain.ProspectID]domain.Prospect
	executions   map[domain.ExecutionID]domain.Execution
	instructions map[domain.InstructionID]domain.Instruction
	history      []domain.HistoryEntry
	actions      []domain.ScheduledAction
	nextActionID int64

	counters      map[string]domain.ActionCounters
	limitSettings map[domain.UserID]domain.LimitSettings
	liveness      map[domain.UserID]domain.AgentLiveness
	replyChecks   map[string]time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		campaigns:     make(map[domain.CampaignID]domain.Campaign),
		steps:         make(map[domain.StepID]domain.CampaignStep),
		prospects:     make(map[domain.ProspectID]domain.Prospect),
		executions:    make(map[domain.ExecutionID]domain.Execution),
		instructions:  make(map[domain.InstructionID]domain.Instruction),
		counters:      make(map[string]domain.ActionCounters),
		limitSettings: make(map[domain.UserID]domain.LimitSettings),
		liveness:      make(map[domain.UserID]domain.AgentLiveness),
		replyChecks:   make(map[string]time.Time),
	}
}

// --- campaigns ---

func (m *memRepo) SaveCampaign(_ context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = *c
	return nil
}

func (m *memRepo) GetCampaign(_ context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	return &c, nil
}

func (m *memRepo) ListCampaigns(_ context.Context, userID domain.UserID) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) ListAutoresumeCampaigns(_ context.Context, userID domain.UserID) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.UserID == userID && c.AutoresumeWhenOnline {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- prospects ---

func (m *memRepo) SaveProspect(_ context.Context, p *domain.Prospect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prospects[p.ID] = *p
	return nil
}

func (m *memRepo) GetProspect(_ context.Context, id domain.ProspectID) (*domain.Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prospects[id]
	if !ok {
		return nil, domain.ErrProspectNotFound
	}
	return &p, nil
}

func (m *memRepo) ListContactedProspects(_ context.Context, since time.Time) ([]domain.Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Prospect
	for _, p := range m.prospects {
		if p.Status == domain.ProspectStatusContacted && p.ContactedAt != nil && !p.ContactedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- executions ---

func (m *memRepo) CreateExecution(_ context.Context, e *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.executions {
		if have.CampaignID == e.CampaignID && have.ProspectID == e.ProspectID {
			return domain.ErrExecutionExists
		}
	}
	m.executions[e.ID] = *e
	return nil
}

func (m *memRepo) SaveExecution(_ context.Context, e *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[e.ID]; !ok {
		return domain.ErrExecutionNotFound
	}
	m.executions[e.ID] = *e
	return nil
}

func (m *memRepo) GetExecution(_ context.Context, id domain.ExecutionID) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return &e, nil
}

func (m *memRepo) FindExecution(_ context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.executions {
		if e.CampaignID == campaignID && e.ProspectID == prospectID {
			out := e
			return &out, nil
		}
	}
	return nil, domain.ErrExecutionNotFound
}

func (m *memRepo) ListCampaignExecutions(_ context.Context, campaignID domain.CampaignID) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for _, e := range m.executions {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) ListPausedOffline(_ context.Context, campaignIDs []domain.CampaignID) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for _, e := range m.executions {
		if e.Status != domain.ExecutionStatusPaused || e.PauseReason != domain.PauseReasonExtensionOffline {
			continue
		}
		for _, id := range campaignIDs {
			if e.CampaignID == id {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (m *memRepo) ListRunnableExecutions(_ context.Context) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for _, e := range m.executions {
		if e.Status == domain.ExecutionStatusRunning && e.WaitingJobID == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- history and scheduled actions ---

func (m *memRepo) AppendHistory(_ context.Context, h *domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = int64(len(m.history) + 1)
	m.history = append(m.history, *h)
	return nil
}

func (m *memRepo) AddScheduledAction(_ context.Context, a *domain.ScheduledAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextActionID++
	a.ID = m.nextActionID
	m.actions = append(m.actions, *a)
	return nil
}

func (m *memRepo) MarkActionProcessed(_ context.Context, id int64, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.actions {
		if m.actions[i].ID == id {
			m.actions[i].Processed = true
			m.actions[i].Result = result
			return nil
		}
	}
	return nil
}

func (m *memRepo) ListPendingActions(_ context.Context, executionID domain.ExecutionID) ([]domain.ScheduledAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduledAction
	for _, a := range m.actions {
		if a.ExecutionID == executionID && !a.Processed {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- instructions ---

func (m *memRepo) SaveInstruction(_ context.Context, ins *domain.Instruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions[ins.ID] = *ins
	return nil
}

func (m *memRepo) GetInstruction(_ context.Context, id domain.InstructionID) (*domain.Instruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ins, ok := m.instructions[id]
	if !ok {
		return nil, domain.ErrInstructionNotFound
	}
	return &ins, nil
}

func (m *memRepo) ListPendingInstructions(_ context.Context, userID domain.UserID) ([]domain.Instruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Instruction
	for _, ins := range m.instructions {
		if ins.UserID == userID && ins.Status == domain.InstructionStatusPending {
			out = append(out, ins)
		}
	}
	return out, nil
}

func (m *memRepo) CountOpenInstructions(_ context.Context, campaignID domain.CampaignID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ins := range m.instructions {
		if ins.CampaignID != campaignID {
			continue
		}
		if ins.Status == domain.InstructionStatusPending || ins.Status == domain.InstructionStatusProcessing {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) TransitionInstruction(_ context.Context, id domain.InstructionID, from, to domain.InstructionStatus, result *domain.InstructionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ins, ok := m.instructions[id]
	if !ok {
		return domain.ErrInstructionNotFound
	}
	if ins.Status != from {
		return domain.ErrStatusConflict
	}
	ins.Status = to
	if result != nil {
		ins.Result = result
	}
	ins.UpdatedAt = time.Now().UTC()
	m.instructions[id] = ins
	return nil
}

func (m *memRepo) CancelCampaignInstructions(_ context.Context, campaignID domain.CampaignID, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, ins := range m.instructions {
		if ins.CampaignID != campaignID {
			continue
		}
		if ins.Status != domain.InstructionStatusPending && ins.Status != domain.InstructionStatusProcessing {
			continue
		}
		ins.Status = domain.InstructionStatusCancelled
		ins.Result = &domain.InstructionResult{CancelReason: reason}
		m.instructions[id] = ins
		n++
	}
	return n, nil
}

func (m *memRepo) LatestConversationID(_ context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	var convID string
	for _, ins := range m.instructions {
		if ins.CampaignID != campaignID || ins.ProspectID != prospectID {
			continue
		}
		if ins.Status != domain.InstructionStatusCompleted || ins.Result == nil || ins.Result.ConversationID == "" {
			continue
		}
		if convID == "" || ins.UpdatedAt.After(latest) {
			latest = ins.UpdatedAt
			convID = ins.Result.ConversationID
		}
	}
	return convID, nil
}

// --- rate limit counters and settings ---

func (m *memRepo) GetCounters(_ context.Context, userID domain.UserID, family string) (*domain.ActionCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[string(userID)+"/"+family]
	if !ok {
		c = domain.ActionCounters{UserID: userID, Family: family}
	}
	return &c, nil
}

func (m *memRepo) RecordAction(_ context.Context, userID domain.UserID, family string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(userID) + "/" + family
	c, ok := m.counters[key]
	if !ok {
		c = domain.ActionCounters{UserID: userID, Family: family}
	}
	c.Normalize(at)
	c.ActionsThisHour++
	c.ActionsToday++
	c.ActionsThisWeek++
	t := at
	c.LastActionAt = &t
	m.counters[key] = c
	return nil
}

func (m *memRepo) GetLimitSettings(_ context.Context, userID domain.UserID) (*domain.LimitSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.limitSettings[userID]
	if !ok {
		s = domain.LimitSettings{UserID: userID}
	}
	return &s, nil
}

func (m *memRepo) SaveLimitSettings(_ context.Context, s *domain.LimitSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limitSettings[s.UserID] = *s
	return nil
}

// --- agent liveness ---

func (m *memRepo) GetLiveness(_ context.Context, userID domain.UserID) (*domain.AgentLiveness, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.liveness[userID]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return &l, nil
}

func (m *memRepo) SaveLiveness(_ context.Context, l *domain.AgentLiveness) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liveness[l.UserID] = *l
	return nil
}

func (m *memRepo) ListStaleAgents(_ context.Context, olderThan time.Time) ([]domain.AgentLiveness, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AgentLiveness
	for _, l := range m.liveness {
		if l.IsActive && l.LastSeen.Before(olderThan) {
			out = append(out, l)
		}
	}
	return out, nil
}

// --- reply-check cache ---

func (m *memRepo) WasCheckedSince(_ context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.replyChecks[string(campaignID)+"/"+string(prospectID)]
	return ok && !at.Before(since), nil
}

func (m *memRepo) MarkChecked(_ context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replyChecks[string(campaignID)+"/"+string(prospectID)] = at
	return nil
}

func (m *memRepo) PruneCheckedBefore(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, at := range m.replyChecks {
		if at.Before(cutoff) {
			delete(m.replyChecks, k)
		}
	}
	return nil
}

// --- step provider over the stored steps ---

func (m *memRepo) GetStep(_ context.Context, campaignID domain.CampaignID, stepID domain.StepID) (*domain.CampaignStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.steps[stepID]
	if !ok || s.CampaignID != campaignID {
		return nil, domain.ErrStepNotFound
	}
	return &s, nil
}

func (m *memRepo) FirstStep(_ context.Context, campaignID domain.CampaignID) (*domain.CampaignStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first *domain.CampaignStep
	for _, s := range m.steps {
		if s.CampaignID != campaignID {
			continue
		}
		s := s
		if first == nil || s.Position < first.Position {
			first = &s
		}
	}
	if first == nil {
		return nil, domain.ErrStepNotFound
	}
	return first, nil
}

func (m *memRepo) putStep(s domain.CampaignStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[s.ID] = s
}

func (m *memRepo) instruction(id domain.InstructionID) domain.Instruction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instructions[id]
}

func (m *memRepo) execution(id domain.ExecutionID) domain.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions[id]
}

func (m *memRepo) historyOutcomes(executionID domain.ExecutionID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, h := range m.history {
		if h.ExecutionID == executionID {
			out = append(out, h.Outcome)
		}
	}
	return out
}

// fakeSink records prospect status notifications.
type fakeSink struct {
	mu      sync.Mutex
	changes []domain.Prospect
}

func (f *fakeSink) ProspectStatusChanged(_ context.Context, p domain.Prospect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, p)
	return nil
}

func (f *fakeSink) statuses() []domain.ProspectStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ProspectStatus
	for _, p := range f.changes {
		out = append(out, p.Status)
	}
	return out
}
