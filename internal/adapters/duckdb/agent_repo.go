package duckdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

func (r *Repository) GetLiveness(ctx context.Context, userID domain.UserID) (*domain.AgentLiveness, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, is_active, last_seen, last_connected_at, last_disconnected_at
		 FROM agent_liveness WHERE user_id = ?`, userID)

	var l domain.AgentLiveness
	var id string
	var connected, disconnected sql.NullTime
	err := row.Scan(&id, &l.IsActive, &l.LastSeen, &connected, &disconnected)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}

	l.UserID = domain.UserID(id)
	if connected.Valid {
		t := connected.Time
		l.LastConnectedAt = &t
	}
	if disconnected.Valid {
		t := disconnected.Time
		l.LastDisconnectedAt = &t
	}
	return &l, nil
}

func (r *Repository) SaveLiveness(ctx context.Context, l *domain.AgentLiveness) error {
	query := `
	INSERT INTO agent_liveness (user_id, is_active, last_seen, last_connected_at, last_disconnected_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET
		is_active = excluded.is_active,
		last_seen = excluded.last_seen,
		last_connected_at = excluded.last_connected_at,
		last_disconnected_at = excluded.last_disconnected_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		l.UserID, l.IsActive, l.LastSeen, l.LastConnectedAt, l.LastDisconnectedAt)
	return err
}

// ListStaleAgents returns records still marked active whose last heartbeat
// is older than the cutoff. This is the monitor's offline-detection query.
func (r *Repository) ListStaleAgents(ctx context.Context, olderThan time.Time) ([]domain.AgentLiveness, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, is_active, last_seen, last_connected_at, last_disconnected_at
		 FROM agent_liveness WHERE is_active AND last_seen < ?`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentLiveness
	for rows.Next() {
		var l domain.AgentLiveness
		var id string
		var connected, disconnected sql.NullTime
		if err := rows.Scan(&id, &l.IsActive, &l.LastSeen, &connected, &disconnected); err != nil {
			return nil, err
		}
		l.UserID = domain.UserID(id)
		if connected.Valid {
			t := connected.Time
			l.LastConnectedAt = &t
		}
		if disconnected.Valid {
			t := disconnected.Time
			l.LastDisconnectedAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
