package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

func (r *Repository) SaveInstruction(ctx context.Context, ins *domain.Instruction) error {
	payload, err := json.Marshal(ins.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	rlc, err := json.Marshal(ins.RateLimit)
	if err != nil {
		return fmt.Errorf("marshal rate limit context: %w", err)
	}
	var result *string
	if ins.Result != nil {
		raw, err := json.Marshal(ins.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		s := string(raw)
		result = &s
	}

	query := `
	INSERT INTO instructions (id, user_id, campaign_id, prospect_id, execution_id, step_id, action, status, scheduled_for, payload, rate_limit_context, result, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		scheduled_for = excluded.scheduled_for,
		payload = excluded.payload,
		result = excluded.result,
		updated_at = excluded.updated_at;
	`
	_, err = r.db.ExecContext(ctx, query,
		ins.ID, ins.UserID, ins.CampaignID, ins.ProspectID, ins.ExecutionID, ins.StepID,
		ins.Action, ins.Status, ins.ScheduledFor, string(payload), string(rlc), result,
		ins.CreatedAt, ins.UpdatedAt,
	)
	return err
}

const instructionCols = `id, user_id, campaign_id, prospect_id, execution_id, step_id, action, status, scheduled_for, payload, rate_limit_context, result, created_at, updated_at`

func (r *Repository) GetInstruction(ctx context.Context, id domain.InstructionID) (*domain.Instruction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instructionCols+` FROM instructions WHERE id = ?`, id)
	ins, err := scanInstruction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrInstructionNotFound
	}
	return ins, err
}

// ListPendingInstructions returns the user's open work queue in schedule
// order. The agent decides which items are due.
func (r *Repository) ListPendingInstructions(ctx context.Context, userID domain.UserID) ([]domain.Instruction, error) {
	return r.listInstructions(ctx,
		`SELECT `+instructionCols+` FROM instructions WHERE user_id = ? AND status = ? ORDER BY scheduled_for`,
		userID, domain.InstructionStatusPending)
}

func (r *Repository) CountOpenInstructions(ctx context.Context, campaignID domain.CampaignID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM instructions WHERE campaign_id = ? AND status IN (?, ?)`,
		campaignID, domain.InstructionStatusPending, domain.InstructionStatusProcessing,
	).Scan(&n)
	return n, err
}

// TransitionInstruction performs the single atomic compare-and-set every
// status change goes through. Losing the race returns ErrStatusConflict so
// the caller can no-op.
func (r *Repository) TransitionInstruction(ctx context.Context, id domain.InstructionID, from, to domain.InstructionStatus, result *domain.InstructionResult) error {
	var resultJSON *string
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		s := string(raw)
		resultJSON = &s
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE instructions SET status = ?, result = COALESCE(?, result), updated_at = ? WHERE id = ? AND status = ?`,
		to, resultJSON, time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := r.GetInstruction(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrStatusConflict
	}
	return nil
}

// CancelCampaignInstructions cancels every open instruction of a campaign
// in one statement, stamping the cancellation reason into the result
// payload. Settled instructions are untouched.
func (r *Repository) CancelCampaignInstructions(ctx context.Context, campaignID domain.CampaignID, reason string) (int, error) {
	result := domain.InstructionResult{Success: false, CancelReason: reason}
	raw, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("marshal result: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE instructions SET status = ?, result = ?, updated_at = ? WHERE campaign_id = ? AND status IN (?, ?)`,
		domain.InstructionStatusCancelled, string(raw), time.Now().UTC(),
		campaignID, domain.InstructionStatusPending, domain.InstructionStatusProcessing)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// LatestConversationID finds the most recent settled instruction for the
// prospect that recorded a conversation identifier. Empty string means no
// message has completed yet, which is not an error.
func (r *Repository) LatestConversationID(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID) (string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT result FROM instructions
		 WHERE campaign_id = ? AND prospect_id = ? AND status = ? AND result IS NOT NULL
		 ORDER BY updated_at DESC`,
		campaignID, prospectID, domain.InstructionStatusCompleted)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return "", err
		}
		var result domain.InstructionResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			continue
		}
		if result.ConversationID != "" {
			return result.ConversationID, nil
		}
	}
	return "", rows.Err()
}

func (r *Repository) listInstructions(ctx context.Context, query string, args ...any) ([]domain.Instruction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Instruction
	for rows.Next() {
		ins, err := scanInstruction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *ins)
	}
	return out, rows.Err()
}

func scanInstruction(scan func(dest ...any) error) (*domain.Instruction, error) {
	var ins domain.Instruction
	var id, userID, campaignID, prospectID, executionID, stepID, action, status string
	var payload, rlc string
	var result sql.NullString

	err := scan(&id, &userID, &campaignID, &prospectID, &executionID, &stepID,
		&action, &status, &ins.ScheduledFor, &payload, &rlc, &result,
		&ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ins.ID = domain.InstructionID(id)
	ins.UserID = domain.UserID(userID)
	ins.CampaignID = domain.CampaignID(campaignID)
	ins.ProspectID = domain.ProspectID(prospectID)
	ins.ExecutionID = domain.ExecutionID(executionID)
	ins.StepID = domain.StepID(stepID)
	ins.Action = domain.ActionType(action)
	ins.Status = domain.InstructionStatus(status)

	if err := json.Unmarshal([]byte(payload), &ins.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal([]byte(rlc), &ins.RateLimit); err != nil {
		return nil, fmt.Errorf("unmarshal rate limit context: %w", err)
	}
	if result.Valid {
		var res domain.InstructionResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		ins.Result = &res
	}
	return &ins, nil
}
