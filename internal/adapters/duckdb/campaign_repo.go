package duckdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

func (r *Repository) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	query := `
	INSERT INTO campaigns (id, user_id, name, status, autoresume_when_online, paused_at, pause_reason, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		status = excluded.status,
		autoresume_when_online = excluded.autoresume_when_online,
		paused_at = excluded.paused_at,
		pause_reason = excluded.pause_reason,
		updated_at = excluded.updated_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, c.Status, c.AutoresumeWhenOnline,
		c.PausedAt, string(c.PauseReason), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

const campaignCols = `id, user_id, name, status, autoresume_when_online, paused_at, pause_reason, created_at, updated_at`

func (r *Repository) GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCampaignNotFound
	}
	return c, err
}

func (r *Repository) ListCampaigns(ctx context.Context, userID domain.UserID) ([]domain.Campaign, error) {
	return r.listCampaigns(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE user_id = ? ORDER BY created_at`, userID)
}

// ListAutoresumeCampaigns returns campaigns the health monitor paused and
// flagged for restart. Manually paused campaigns never appear here.
func (r *Repository) ListAutoresumeCampaigns(ctx context.Context, userID domain.UserID) ([]domain.Campaign, error) {
	return r.listCampaigns(ctx,
		`SELECT `+campaignCols+` FROM campaigns WHERE user_id = ? AND autoresume_when_online ORDER BY created_at`, userID)
}

func (r *Repository) listCampaigns(ctx context.Context, query string, args ...any) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCampaign(scan func(dest ...any) error) (*domain.Campaign, error) {
	var c domain.Campaign
	var id, userID, status, reason string
	var pausedAt sql.NullTime

	err := scan(&id, &userID, &c.Name, &status, &c.AutoresumeWhenOnline, &pausedAt, &reason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.ID = domain.CampaignID(id)
	c.UserID = domain.UserID(userID)
	c.Status = domain.CampaignStatus(status)
	c.PauseReason = domain.PauseReason(reason)
	if pausedAt.Valid {
		t := pausedAt.Time
		c.PausedAt = &t
	}
	return &c, nil
}

func (r *Repository) SaveStep(ctx context.Context, s *domain.CampaignStep) error {
	query := `
	INSERT INTO campaign_steps (id, campaign_id, action, content, next_step_id, position, delay_min_sec, delay_max_sec)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (campaign_id, id) DO UPDATE SET
		action = excluded.action,
		content = excluded.content,
		next_step_id = excluded.next_step_id,
		position = excluded.position,
		delay_min_sec = excluded.delay_min_sec,
		delay_max_sec = excluded.delay_max_sec;
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.CampaignID, s.Action, s.Content, s.NextStepID, s.Position,
		int64(s.Delay.Min/time.Second), int64(s.Delay.Max/time.Second),
	)
	return err
}

const stepCols = `id, campaign_id, action, content, next_step_id, position, delay_min_sec, delay_max_sec`

func (r *Repository) GetStep(ctx context.Context, campaignID domain.CampaignID, stepID domain.StepID) (*domain.CampaignStep, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stepCols+` FROM campaign_steps WHERE campaign_id = ? AND id = ?`, campaignID, stepID)
	s, err := scanStep(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrStepNotFound
	}
	return s, err
}

func (r *Repository) FirstStep(ctx context.Context, campaignID domain.CampaignID) (*domain.CampaignStep, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stepCols+` FROM campaign_steps WHERE campaign_id = ? ORDER BY position LIMIT 1`, campaignID)
	s, err := scanStep(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrStepNotFound
	}
	return s, err
}

func scanStep(scan func(dest ...any) error) (*domain.CampaignStep, error) {
	var s domain.CampaignStep
	var id, campaignID, action, next string
	var minSec, maxSec int64

	err := scan(&id, &campaignID, &action, &s.Content, &next, &s.Position, &minSec, &maxSec)
	if err != nil {
		return nil, err
	}

	s.ID = domain.StepID(id)
	s.CampaignID = domain.CampaignID(campaignID)
	s.Action = domain.ActionType(action)
	s.NextStepID = domain.StepID(next)
	s.Delay.Min = time.Duration(minSec) * time.Second
	s.Delay.Max = time.Duration(maxSec) * time.Second
	return &s, nil
}
