// Package store is the gateway's relational store: the Postgres-backed
// persistence layer behind the Organization/Project/ApiKey/IamRule/LogRecord
// data model of SPEC_FULL.md §3. No example in the reference corpus ships a
// relational driver of its own (the reference gateway talks only to Redis
// and upstream HTTP APIs); this package is grounded on the sibling gateway
// example's database/sql + lib/pq pattern in
// internal/requestlog/store.go, generalized from an append-only request-log
// writer into the transactional, row-locked store the usage pipeline needs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps a Postgres connection pool. All methods are safe for
// concurrent use; the pool itself provides connection-level isolation.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies connectivity with a single Ping. It does
// not run migrations; call Migrate explicitly when RUN_MIGRATIONS is set.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping checks connectivity within ctx's deadline, used by the GET / health
// envelope (§6).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates every table this package owns if it does not already
// exist. Safe to run repeatedly. Gated behind RUN_MIGRATIONS at boot (§6);
// organization/project/api_key/iam_rule rows themselves are populated by the
// out-of-scope signup/management surface, not by this gateway.
func (s *Store) Migrate(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS organization (
		id                   TEXT PRIMARY KEY,
		credits              NUMERIC(18,6) NOT NULL DEFAULT 0,
		plan                 TEXT NOT NULL DEFAULT 'free',
		retention_level      TEXT NOT NULL DEFAULT 'retain',
		status               TEXT NOT NULL DEFAULT 'active',
		auto_topup_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
		auto_topup_threshold NUMERIC(18,6) NOT NULL DEFAULT 0,
		auto_topup_amount    NUMERIC(18,6) NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS project (
		id              TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organization(id),
		mode            TEXT NOT NULL DEFAULT 'api-keys'
	)`,
	`CREATE TABLE IF NOT EXISTS api_key (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL REFERENCES project(id),
		token        TEXT NOT NULL UNIQUE,
		masked_token TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'active',
		usage        NUMERIC(18,6) NOT NULL DEFAULT 0,
		usage_limit  NUMERIC(18,6)
	)`,
	`CREATE TABLE IF NOT EXISTS iam_rule (
		id         TEXT PRIMARY KEY,
		api_key_id TEXT NOT NULL REFERENCES api_key(id),
		rule_type  TEXT NOT NULL,
		value      JSONB NOT NULL DEFAULT '{}',
		status     TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE TABLE IF NOT EXISTS provider_key (
		organization_id TEXT NOT NULL REFERENCES organization(id),
		provider_id     TEXT NOT NULL,
		token           TEXT NOT NULL,
		PRIMARY KEY (organization_id, provider_id)
	)`,
	`CREATE TABLE IF NOT EXISTS log (
		id                               TEXT PRIMARY KEY,
		request_id                       TEXT NOT NULL,
		organization_id                  TEXT NOT NULL REFERENCES organization(id),
		project_id                       TEXT NOT NULL REFERENCES project(id),
		api_key_id                       TEXT NOT NULL REFERENCES api_key(id),
		created_at                       TIMESTAMPTZ NOT NULL,
		duration_ms                      BIGINT NOT NULL DEFAULT 0,
		requested_model                  TEXT NOT NULL,
		requested_provider               TEXT NOT NULL DEFAULT '',
		used_model                       TEXT NOT NULL,
		used_provider                    TEXT NOT NULL,
		mode                             TEXT NOT NULL,
		used_mode                        TEXT NOT NULL,
		cached                           BOOLEAN NOT NULL DEFAULT FALSE,
		cost                             NUMERIC(18,6),
		input_cost                       NUMERIC(18,6),
		output_cost                      NUMERIC(18,6),
		request_cost                     NUMERIC(18,6),
		prompt_tokens                    INTEGER,
		completion_tokens                INTEGER,
		total_tokens                     INTEGER,
		reasoning_tokens                 INTEGER,
		cached_tokens                    INTEGER,
		has_error                        BOOLEAN NOT NULL DEFAULT FALSE,
		unified_finish_reason            TEXT NOT NULL DEFAULT 'unknown',
		response_size                    INTEGER NOT NULL DEFAULT 0,
		time_to_first_token_ms           BIGINT,
		time_to_first_reasoning_token_ms BIGINT,
		messages                         TEXT NOT NULL DEFAULT '',
		content                          TEXT NOT NULL DEFAULT '',
		custom_headers                   JSONB NOT NULL DEFAULT '{}',
		processed_at                     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS log_unprocessed_idx ON log (created_at) WHERE processed_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS log_minute_idx ON log (created_at, used_model, used_provider)`,
	`CREATE TABLE IF NOT EXISTS lock (
		key        TEXT PRIMARY KEY,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transaction (
		id              TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organization(id),
		amount          NUMERIC(18,6) NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		provider_ref    TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS transaction_org_created_idx ON transaction (organization_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS model_provider_mapping_history (
		model_id              TEXT NOT NULL,
		provider_id           TEXT NOT NULL,
		minute_timestamp      TIMESTAMPTZ NOT NULL,
		logs_count            INTEGER NOT NULL DEFAULT 0,
		errors_count          INTEGER NOT NULL DEFAULT 0,
		client_errors_count   INTEGER NOT NULL DEFAULT 0,
		gateway_errors_count  INTEGER NOT NULL DEFAULT 0,
		upstream_errors_count INTEGER NOT NULL DEFAULT 0,
		cached_count          INTEGER NOT NULL DEFAULT 0,
		prompt_tokens_sum     BIGINT NOT NULL DEFAULT 0,
		completion_tokens_sum BIGINT NOT NULL DEFAULT 0,
		total_tokens_sum      BIGINT NOT NULL DEFAULT 0,
		duration_sum_ms       BIGINT NOT NULL DEFAULT 0,
		ttft_sum_ms           BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (model_id, provider_id, minute_timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS model_history (
		model_id              TEXT NOT NULL,
		minute_timestamp      TIMESTAMPTZ NOT NULL,
		logs_count            INTEGER NOT NULL DEFAULT 0,
		errors_count          INTEGER NOT NULL DEFAULT 0,
		client_errors_count   INTEGER NOT NULL DEFAULT 0,
		gateway_errors_count  INTEGER NOT NULL DEFAULT 0,
		upstream_errors_count INTEGER NOT NULL DEFAULT 0,
		cached_count          INTEGER NOT NULL DEFAULT 0,
		prompt_tokens_sum     BIGINT NOT NULL DEFAULT 0,
		completion_tokens_sum BIGINT NOT NULL DEFAULT 0,
		total_tokens_sum      BIGINT NOT NULL DEFAULT 0,
		duration_sum_ms       BIGINT NOT NULL DEFAULT 0,
		ttft_sum_ms           BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (model_id, minute_timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS model_provider_stats (
		model_id    TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		logs_count  BIGINT NOT NULL DEFAULT 0,
		errors_count BIGINT NOT NULL DEFAULT 0,
		avg_duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		stats_updated_at TIMESTAMPTZ,
		PRIMARY KEY (model_id, provider_id)
	)`,
	`CREATE TABLE IF NOT EXISTS model_stats (
		model_id    TEXT PRIMARY KEY,
		logs_count  BIGINT NOT NULL DEFAULT 0,
		errors_count BIGINT NOT NULL DEFAULT 0,
		avg_duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		stats_updated_at TIMESTAMPTZ
	)`,
}
