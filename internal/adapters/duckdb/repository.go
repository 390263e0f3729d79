package duckdb

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/beaconcrm/outreach-engine/internal/core/ports"
)

// Repository is the DuckDB-backed system of record for the engine. All
// mutable shared state (instructions, executions, rate counters) lives
// here, never in process memory, so it survives restarts.
type Repository struct {
	db *sql.DB
}

// Ensure Repository implements the storage port.
var _ ports.Repository = (*Repository)(nil)

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS history_seq`,
		`CREATE SEQUENCE IF NOT EXISTS action_seq`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id VARCHAR PRIMARY KEY,
			user_id VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			autoresume_when_online BOOLEAN NOT NULL DEFAULT false,
			paused_at TIMESTAMP,
			pause_reason VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS campaign_steps (
			id VARCHAR NOT NULL,
			campaign_id VARCHAR NOT NULL,
			action VARCHAR NOT NULL,
			content VARCHAR NOT NULL DEFAULT '',
			next_step_id VARCHAR NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			delay_min_sec BIGINT NOT NULL DEFAULT 0,
			delay_max_sec BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (campaign_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS prospects (
			id VARCHAR PRIMARY KEY,
			campaign_id VARCHAR NOT NULL,
			user_id VARCHAR NOT NULL,
			profile_url VARCHAR NOT NULL,
			full_name VARCHAR NOT NULL DEFAULT '',
			status VARCHAR NOT NULL,
			contacted_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id VARCHAR PRIMARY KEY,
			campaign_id VARCHAR NOT NULL,
			prospect_id VARCHAR NOT NULL,
			user_id VARCHAR NOT NULL,
			current_step_id VARCHAR NOT NULL DEFAULT '',
			status VARCHAR NOT NULL,
			waiting_for VARCHAR NOT NULL DEFAULT '',
			waiting_job_id VARCHAR,
			paused_at TIMESTAMP,
			pause_reason VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (campaign_id, prospect_id)
		)`,
		`CREATE TABLE IF NOT EXISTS execution_history (
			id BIGINT PRIMARY KEY DEFAULT nextval('history_seq'),
			execution_id VARCHAR NOT NULL,
			step_id VARCHAR NOT NULL DEFAULT '',
			action VARCHAR NOT NULL DEFAULT '',
			outcome VARCHAR NOT NULL,
			reason VARCHAR NOT NULL DEFAULT '',
			error VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_actions (
			id BIGINT PRIMARY KEY DEFAULT nextval('action_seq'),
			execution_id VARCHAR NOT NULL,
			step_id VARCHAR NOT NULL,
			action VARCHAR NOT NULL,
			scheduled_for TIMESTAMP NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT false,
			result VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS instructions (
			id VARCHAR PRIMARY KEY,
			user_id VARCHAR NOT NULL,
			campaign_id VARCHAR NOT NULL,
			prospect_id VARCHAR NOT NULL,
			execution_id VARCHAR NOT NULL,
			step_id VARCHAR NOT NULL DEFAULT '',
			action VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			scheduled_for TIMESTAMP NOT NULL,
			payload VARCHAR NOT NULL DEFAULT '{}',
			rate_limit_context VARCHAR NOT NULL DEFAULT '{}',
			result VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rate_counters (
			user_id VARCHAR NOT NULL,
			family VARCHAR NOT NULL,
			actions_this_hour INTEGER NOT NULL DEFAULT 0,
			hour_started_at TIMESTAMP NOT NULL,
			actions_today INTEGER NOT NULL DEFAULT 0,
			day_started_at TIMESTAMP NOT NULL,
			actions_this_week INTEGER NOT NULL DEFAULT 0,
			week_started_at TIMESTAMP NOT NULL,
			last_action_at TIMESTAMP,
			PRIMARY KEY (user_id, family)
		)`,
		`CREATE TABLE IF NOT EXISTS limit_settings (
			user_id VARCHAR PRIMARY KEY,
			settings VARCHAR NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_liveness (
			user_id VARCHAR PRIMARY KEY,
			is_active BOOLEAN NOT NULL DEFAULT false,
			last_seen TIMESTAMP NOT NULL,
			last_connected_at TIMESTAMP,
			last_disconnected_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS reply_checks (
			campaign_id VARCHAR NOT NULL,
			prospect_id VARCHAR NOT NULL,
			checked_at TIMESTAMP NOT NULL,
			PRIMARY KEY (campaign_id, prospect_id)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}
