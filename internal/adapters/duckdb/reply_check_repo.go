package duckdb

import (
	"context"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// Reply-check dedup rows replace the in-memory cache a naive sweep would
// keep: they survive restarts and their TTL is enforced by the caller's
// cutoff, not a background timer.

func (r *Repository) WasCheckedSince(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID, since time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reply_checks WHERE campaign_id = ? AND prospect_id = ? AND checked_at >= ?`,
		campaignID, prospectID, since).Scan(&n)
	return n > 0, err
}

func (r *Repository) MarkChecked(ctx context.Context, campaignID domain.CampaignID, prospectID domain.ProspectID, at time.Time) error {
	query := `
	INSERT INTO reply_checks (campaign_id, prospect_id, checked_at) VALUES (?, ?, ?)
	ON CONFLICT (campaign_id, prospect_id) DO UPDATE SET checked_at = excluded.checked_at;
	`
	_, err := r.db.ExecContext(ctx, query, campaignID, prospectID, at)
	return err
}

func (r *Repository) PruneCheckedBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reply_checks WHERE checked_at < ?`, cutoff)
	return err
}
