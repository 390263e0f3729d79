package duckdb

import (
	"context"
	"database/sql"

	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

func (r *Repository) SaveProspect(ctx context.Context, p *domain.Prospect) error {
	query := `
	INSERT INTO prospects (id, campaign_id, user_id, profile_url, full_name, status, contacted_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		profile_url = excluded.profile_url,
		full_name = excluded.full_name,
		status = excluded.status,
		contacted_at = excluded.contacted_at,
		updated_at = excluded.updated_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.CampaignID, p.UserID, p.ProfileURL, p.FullName, p.Status,
		p.ContactedAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

const prospectCols = `id, campaign_id, user_id, profile_url, full_name, status, contacted_at, created_at, updated_at`

func (r *Repository) GetProspect(ctx context.Context, id domain.ProspectID) (*domain.Prospect, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+prospectCols+` FROM prospects WHERE id = ?`, id)
	p, err := scanProspect(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrProspectNotFound
	}
	return p, err
}

// ListContactedProspects returns prospects an outbound message reached
// within the trailing window, oldest first. Feeds the reply sweep.
func (r *Repository) ListContactedProspects(ctx context.Context, since time.Time) ([]domain.Prospect, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+prospectCols+` FROM prospects
		 WHERE status = ? AND contacted_at IS NOT NULL AND contacted_at >= ?
		 ORDER BY contacted_at`, domain.ProspectStatusContacted, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Prospect
	for rows.Next() {
		p, err := scanProspect(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanProspect(scan func(dest ...any) error) (*domain.Prospect, error) {
	var p domain.Prospect
	var id, campaignID, userID, status string
	var contactedAt sql.NullTime

	err := scan(&id, &campaignID, &userID, &p.ProfileURL, &p.FullName, &status, &contactedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.ID = domain.ProspectID(id)
	p.CampaignID = domain.CampaignID(campaignID)
	p.UserID = domain.UserID(userID)
	p.Status = domain.ProspectStatus(status)
	if contactedAt.Valid {
		t := contactedAt.Time
		p.ContactedAt = &t
	}
	return &p, nil
}
