package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// GetCounters returns the user's counters for one action family, with
// expired buckets rolled forward. A missing row is a zeroed counter set,
// not an error.
func (r *Repository) GetCounters(ctx context.Context, userID domain.UserID, family string) (*domain.ActionCounters, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx,
		`SELECT actions_this_hour, hour_started_at, actions_today, day_started_at, actions_this_week, week_started_at, last_action_at
		 FROM rate_counters WHERE user_id = ? AND family = ?`, userID, family)

	c := &domain.ActionCounters{UserID: userID, Family: family}
	var lastAction sql.NullTime
	err := row.Scan(&c.ActionsThisHour, &c.HourStartedAt, &c.ActionsToday, &c.DayStartedAt,
		&c.ActionsThisWeek, &c.WeekStartedAt, &lastAction)
	if err == sql.ErrNoRows {
		c.HourStartedAt = now.Truncate(time.Hour)
		c.DayStartedAt = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		c.WeekStartedAt = domain.StartOfWeek(now)
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if lastAction.Valid {
		t := lastAction.Time
		c.LastActionAt = &t
	}
	c.Normalize(now)
	return c, nil
}

// RecordAction increments the user's counters for one attempt. The whole
// read-roll-increment runs in a transaction so concurrent recorders
// serialize; counters are never decremented, even if the agent later
// reports the action failed.
func (r *Repository) RecordAction(ctx context.Context, userID domain.UserID, family string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	c := &domain.ActionCounters{UserID: userID, Family: family}
	var lastAction sql.NullTime
	row := tx.QueryRowContext(ctx,
		`SELECT actions_this_hour, hour_started_at, actions_today, day_started_at, actions_this_week, week_started_at, last_action_at
		 FROM rate_counters WHERE user_id = ? AND family = ?`, userID, family)
	err = row.Scan(&c.ActionsThisHour, &c.HourStartedAt, &c.ActionsToday, &c.DayStartedAt,
		&c.ActionsThisWeek, &c.WeekStartedAt, &lastAction)
	switch err {
	case nil:
		if lastAction.Valid {
			t := lastAction.Time
			c.LastActionAt = &t
		}
	case sql.ErrNoRows:
		c.HourStartedAt = at.Truncate(time.Hour)
		c.DayStartedAt = time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
		c.WeekStartedAt = domain.StartOfWeek(at)
	default:
		return err
	}

	c.Normalize(at)
	c.ActionsThisHour++
	c.ActionsToday++
	c.ActionsThisWeek++
	c.LastActionAt = &at

	query := `
	INSERT INTO rate_counters (user_id, family, actions_this_hour, hour_started_at, actions_today, day_started_at, actions_this_week, week_started_at, last_action_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id, family) DO UPDATE SET
		actions_this_hour = excluded.actions_this_hour,
		hour_started_at = excluded.hour_started_at,
		actions_today = excluded.actions_today,
		day_started_at = excluded.day_started_at,
		actions_this_week = excluded.actions_this_week,
		week_started_at = excluded.week_started_at,
		last_action_at = excluded.last_action_at;
	`
	if _, err := tx.ExecContext(ctx, query,
		c.UserID, c.Family, c.ActionsThisHour, c.HourStartedAt, c.ActionsToday, c.DayStartedAt,
		c.ActionsThisWeek, c.WeekStartedAt, c.LastActionAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetLimitSettings returns the user's throttling overrides. A missing row
// yields empty settings; the limiter falls back to engine defaults.
func (r *Repository) GetLimitSettings(ctx context.Context, userID domain.UserID) (*domain.LimitSettings, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT settings FROM limit_settings WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return &domain.LimitSettings{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}

	var s domain.LimitSettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("unmarshal limit settings: %w", err)
	}
	s.UserID = userID
	return &s, nil
}

func (r *Repository) SaveLimitSettings(ctx context.Context, s *domain.LimitSettings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal limit settings: %w", err)
	}
	query := `
	INSERT INTO limit_settings (user_id, settings) VALUES (?, ?)
	ON CONFLICT (user_id) DO UPDATE SET settings = excluded.settings;
	`
	_, err = r.db.ExecContext(ctx, query, s.UserID, string(raw))
	return err
}
