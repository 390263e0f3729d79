package duckdb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// CreateExecution inserts a new execution. The (campaign, prospect) unique
// constraint guarantees at most one state machine per pair; a duplicate
// insert maps to domain.ErrExecutionExists.
func (r *Repository) CreateExecution(ctx context.Context, e *domain.Execution) error {
	query := `
	INSERT INTO executions (id, campaign_id, prospect_id, user_id, current_step_id, status, waiting_for, waiting_job_id, paused_at, pause_reason, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.CampaignID, e.ProspectID, e.UserID, e.CurrentStepID, e.Status,
		e.WaitingFor, waitingJob(e), e.PausedAt, string(e.PauseReason), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "Constraint") {
		return domain.ErrExecutionExists
	}
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return domain.ErrExecutionExists
	}
	return err
}

func (r *Repository) SaveExecution(ctx context.Context, e *domain.Execution) error {
	query := `
	UPDATE executions SET
		current_step_id = ?, status = ?, waiting_for = ?, waiting_job_id = ?,
		paused_at = ?, pause_reason = ?, updated_at = ?
	WHERE id = ?;
	`
	res, err := r.db.ExecContext(ctx, query,
		e.CurrentStepID, e.Status, e.WaitingFor, waitingJob(e),
		e.PausedAt, string(e.PauseReason), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrExecutionNotFound
	}
	return nil
}

func waitingJob(e *domain.Execution) *string {
	if e.WaitingJobID == nil {
		return nil
	}
	s := string(*e.WaitingJobID)
	return &s
}

const executionCols = `id, campaign_id, prospect_id, user_id, current_step_id, status, waiting_for, waiting_job_id, paused_at, pause_reason, created_at, updated_at`

func (r *Repository) GetExecution(ctx context.Context, id domain.ExecutionID) (*domain.Execution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionCols+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrExecutionNotFound
	}
	return e, err
}

func (r *Repository) FindExecution(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (*domain.Execution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionCols+` FROM executions WHERE campaign_id = ? AND prospect_id = ?`, campaignID, prospectID)
	e, err := scanExecution(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrExecutionNotFound
	}
	return e, err
}

func (r *Repository) ListCampaignExecutions(ctx context.Context, campaignID domain.CampaignID) ([]domain.Execution, error) {
	return r.listExecutions(ctx,
		`SELECT `+executionCols+` FROM executions WHERE campaign_id = ? ORDER BY created_at`, campaignID)
}

// ListPausedOffline returns executions the health monitor paused across the
// given campaigns, ordered oldest first so resume order is stable.
func (r *Repository) ListPausedOffline(ctx context.Context, campaignIDs []domain.CampaignID) ([]domain.Execution, error) {
	if len(campaignIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(campaignIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(campaignIDs)+2)
	for _, id := range campaignIDs {
		args = append(args, id)
	}
	args = append(args, domain.ExecutionStatusPaused, string(domain.PauseReasonExtensionOffline))

	return r.listExecutions(ctx,
		`SELECT `+executionCols+` FROM executions
		 WHERE campaign_id IN (`+placeholders+`) AND status = ? AND pause_reason = ?
		 ORDER BY paused_at`, args...)
}

// ListRunnableExecutions returns executions sitting in running with no
// instruction in flight — the ones the due-action worker should push
// forward.
func (r *Repository) ListRunnableExecutions(ctx context.Context) ([]domain.Execution, error) {
	return r.listExecutions(ctx,
		`SELECT `+executionCols+` FROM executions
		 WHERE status = ? AND waiting_job_id IS NULL
		 ORDER BY updated_at`, domain.ExecutionStatusRunning)
}

func (r *Repository) listExecutions(ctx context.Context, query string, args ...any) ([]domain.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanExecution(scan func(dest ...any) error) (*domain.Execution, error) {
	var e domain.Execution
	var id, campaignID, prospectID, userID, stepID, status, reason string
	var waitingJobID sql.NullString
	var pausedAt sql.NullTime

	err := scan(&id, &campaignID, &prospectID, &userID, &stepID, &status,
		&e.WaitingFor, &waitingJobID, &pausedAt, &reason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.ID = domain.ExecutionID(id)
	e.CampaignID = domain.CampaignID(campaignID)
	e.ProspectID = domain.ProspectID(prospectID)
	e.UserID = domain.UserID(userID)
	e.CurrentStepID = domain.StepID(stepID)
	e.Status = domain.ExecutionStatus(status)
	e.PauseReason = domain.PauseReason(reason)
	if waitingJobID.Valid {
		jid := domain.InstructionID(waitingJobID.String)
		e.WaitingJobID = &jid
	}
	if pausedAt.Valid {
		t := pausedAt.Time
		e.PausedAt = &t
	}
	return &e, nil
}

// AppendHistory writes one audit line. History rows are never updated or
// deleted.
func (r *Repository) AppendHistory(ctx context.Context, h *domain.HistoryEntry) error {
	query := `
	INSERT INTO execution_history (execution_id, step_id, action, outcome, reason, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, query,
		h.ExecutionID, h.StepID, h.Action, h.Outcome, h.Reason, h.Error, h.CreatedAt)
	return err
}

func (r *Repository) ListHistory(ctx context.Context, executionID domain.ExecutionID) ([]domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, action, outcome, reason, error, created_at
		 FROM execution_history WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var execID, stepID, action string
		if err := rows.Scan(&h.ID, &execID, &stepID, &action, &h.Outcome, &h.Reason, &h.Error, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.ExecutionID = domain.ExecutionID(execID)
		h.StepID = domain.StepID(stepID)
		h.Action = domain.ActionType(action)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repository) AddScheduledAction(ctx context.Context, a *domain.ScheduledAction) error {
	query := `
	INSERT INTO scheduled_actions (execution_id, step_id, action, scheduled_for, processed, result, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING id;
	`
	return r.db.QueryRowContext(ctx, query,
		a.ExecutionID, a.StepID, a.Action, a.ScheduledFor, a.Processed, a.Result, a.CreatedAt,
	).Scan(&a.ID)
}

func (r *Repository) MarkActionProcessed(ctx context.Context, id int64, result string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_actions SET processed = true, result = ? WHERE id = ?`, result, id)
	return err
}

func (r *Repository) ListPendingActions(ctx context.Context, executionID domain.ExecutionID) ([]domain.ScheduledAction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, action, scheduled_for, processed, result, created_at
		 FROM scheduled_actions WHERE execution_id = ? AND NOT processed ORDER BY scheduled_for`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScheduledAction
	for rows.Next() {
		var a domain.ScheduledAction
		var execID, stepID, action string
		if err := rows.Scan(&a.ID, &execID, &stepID, &action, &a.ScheduledFor, &a.Processed, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ExecutionID = domain.ExecutionID(execID)
		a.StepID = domain.StepID(stepID)
		a.Action = domain.ActionType(action)
		out = append(out, a)
	}
	return out, rows.Err()
}
