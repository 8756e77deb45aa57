package store

import (
	"context"
	"fmt"
	"time"
)

// MinuteAgg is one (model, provider) pair's aggregated counters for a single
// wall-clock minute, the shape §4.G's minute-history rollup both computes
// from raw log rows and upserts into history tables.
type MinuteAgg struct {
	ModelID             string
	ProviderID          string // empty for the per-model aggregate
	LogsCount           int
	ErrorsCount         int
	ClientErrorsCount   int
	GatewayErrorsCount  int
	UpstreamErrorsCount int
	CachedCount         int
	PromptTokensSum     int64
	CompletionTokensSum int64
	TotalTokensSum      int64
	DurationSumMs       int64
	TTFTSumMs           int64
}

// MappingAggregatesForMinute groups log rows created within
// [minute, minute+60s) by (used_model, used_provider), for §4.G's per-minute
// history rollup. Token sums exclude cached rows; logsCount/cachedCount
// include them, matching §4.G's exact phrasing.
func (s *Store) MappingAggregatesForMinute(ctx context.Context, minute time.Time) ([]MinuteAgg, error) {
	const q = `
		SELECT
			used_model, used_provider,
			COUNT(*) AS logs_count,
			COUNT(*) FILTER (WHERE has_error) AS errors_count,
			COUNT(*) FILTER (WHERE unified_finish_reason = 'client_error') AS client_errors_count,
			COUNT(*) FILTER (WHERE unified_finish_reason = 'gateway_error') AS gateway_errors_count,
			COUNT(*) FILTER (WHERE unified_finish_reason = 'upstream_error') AS upstream_errors_count,
			COUNT(*) FILTER (WHERE cached) AS cached_count,
			COALESCE(SUM(prompt_tokens) FILTER (WHERE NOT cached), 0) AS prompt_tokens_sum,
			COALESCE(SUM(completion_tokens) FILTER (WHERE NOT cached), 0) AS completion_tokens_sum,
			COALESCE(SUM(total_tokens) FILTER (WHERE NOT cached), 0) AS total_tokens_sum,
			COALESCE(SUM(duration_ms), 0) AS duration_sum_ms,
			COALESCE(SUM(time_to_first_token_ms), 0) AS ttft_sum_ms
		FROM log
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY used_model, used_provider`

	rows, err := s.db.QueryContext(ctx, q, minute, minute.Add(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("store: mapping aggregates: %w", err)
	}
	defer rows.Close()

	var out []MinuteAgg
	for rows.Next() {
		var a MinuteAgg
		if err := rows.Scan(
			&a.ModelID, &a.ProviderID, &a.LogsCount, &a.ErrorsCount,
			&a.ClientErrorsCount, &a.GatewayErrorsCount, &a.UpstreamErrorsCount, &a.CachedCount,
			&a.PromptTokensSum, &a.CompletionTokensSum, &a.TotalTokensSum, &a.DurationSumMs, &a.TTFTSumMs,
		); err != nil {
			return nil, fmt.Errorf("store: scan mapping aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertMappingMinute writes one (model, provider, minute) row, idempotent
// on its primary key per §3's MinuteBucket invariant.
func (s *Store) UpsertMappingMinute(ctx context.Context, minute time.Time, a MinuteAgg) error {
	const q = `
		INSERT INTO model_provider_mapping_history (
			model_id, provider_id, minute_timestamp, logs_count, errors_count,
			client_errors_count, gateway_errors_count, upstream_errors_count, cached_count,
			prompt_tokens_sum, completion_tokens_sum, total_tokens_sum, duration_sum_ms, ttft_sum_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (model_id, provider_id, minute_timestamp) DO UPDATE SET
			logs_count = EXCLUDED.logs_count,
			errors_count = EXCLUDED.errors_count,
			client_errors_count = EXCLUDED.client_errors_count,
			gateway_errors_count = EXCLUDED.gateway_errors_count,
			upstream_errors_count = EXCLUDED.upstream_errors_count,
			cached_count = EXCLUDED.cached_count,
			prompt_tokens_sum = EXCLUDED.prompt_tokens_sum,
			completion_tokens_sum = EXCLUDED.completion_tokens_sum,
			total_tokens_sum = EXCLUDED.total_tokens_sum,
			duration_sum_ms = EXCLUDED.duration_sum_ms,
			ttft_sum_ms = EXCLUDED.ttft_sum_ms`

	_, err := s.db.ExecContext(ctx, q, a.ModelID, a.ProviderID, minute,
		a.LogsCount, a.ErrorsCount, a.ClientErrorsCount, a.GatewayErrorsCount, a.UpstreamErrorsCount, a.CachedCount,
		a.PromptTokensSum, a.CompletionTokensSum, a.TotalTokensSum, a.DurationSumMs, a.TTFTSumMs)
	if err != nil {
		return fmt.Errorf("store: upsert mapping minute: %w", err)
	}
	return nil
}

// UpsertModelMinute writes one (model, minute) row aggregated across every
// provider, analogous to UpsertMappingMinute.
func (s *Store) UpsertModelMinute(ctx context.Context, minute time.Time, a MinuteAgg) error {
	const q = `
		INSERT INTO model_history (
			model_id, minute_timestamp, logs_count, errors_count,
			client_errors_count, gateway_errors_count, upstream_errors_count, cached_count,
			prompt_tokens_sum, completion_tokens_sum, total_tokens_sum, duration_sum_ms, ttft_sum_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (model_id, minute_timestamp) DO UPDATE SET
			logs_count = EXCLUDED.logs_count,
			errors_count = EXCLUDED.errors_count,
			client_errors_count = EXCLUDED.client_errors_count,
			gateway_errors_count = EXCLUDED.gateway_errors_count,
			upstream_errors_count = EXCLUDED.upstream_errors_count,
			cached_count = EXCLUDED.cached_count,
			prompt_tokens_sum = EXCLUDED.prompt_tokens_sum,
			completion_tokens_sum = EXCLUDED.completion_tokens_sum,
			total_tokens_sum = EXCLUDED.total_tokens_sum,
			duration_sum_ms = EXCLUDED.duration_sum_ms,
			ttft_sum_ms = EXCLUDED.ttft_sum_ms`

	_, err := s.db.ExecContext(ctx, q, a.ModelID, minute,
		a.LogsCount, a.ErrorsCount, a.ClientErrorsCount, a.GatewayErrorsCount, a.UpstreamErrorsCount, a.CachedCount,
		a.PromptTokensSum, a.CompletionTokensSum, a.TotalTokensSum, a.DurationSumMs, a.TTFTSumMs)
	if err != nil {
		return fmt.Errorf("store: upsert model minute: %w", err)
	}
	return nil
}

// LatestMinuteTimestamp returns the most recent minute_timestamp in
// model_history, used by backfill to decide how far behind it is; the
// per-mapping history table is not consulted.
// ok is false when there is no history at all.
func (s *Store) LatestMinuteTimestamp(ctx context.Context) (time.Time, bool, error) {
	var t *time.Time
	err := s.db.QueryRowContext(ctx, `SELECT MAX(minute_timestamp) FROM model_history`).Scan(&t)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: latest minute timestamp: %w", err)
	}
	if t == nil {
		return time.Time{}, false, nil
	}
	return *t, true, nil
}

// RollupAggregatedStats implements §4.G's 5-minute rollup: sums/averages
// over model_provider_mapping_history rows from the trailing window into
// the denormalized model_provider_stats/model_stats tables. The reference
// catalog (internal/catalog) is a static in-process table with nothing to
// UPDATE, so these two tables are this gateway's concrete home for the
// "denormalized counters on the catalog" §4.G describes — a dashboard-facing
// read model, not a mutation of ProviderRegistry itself.
func (s *Store) RollupAggregatedStats(ctx context.Context, since time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: rollup: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO model_provider_stats (model_id, provider_id, logs_count, errors_count, avg_duration_ms, stats_updated_at)
		SELECT model_id, provider_id, SUM(logs_count), SUM(errors_count),
		       CASE WHEN SUM(logs_count) > 0 THEN SUM(duration_sum_ms)::float8 / SUM(logs_count) ELSE 0 END,
		       now()
		FROM model_provider_mapping_history
		WHERE minute_timestamp >= $1
		GROUP BY model_id, provider_id
		ON CONFLICT (model_id, provider_id) DO UPDATE SET
			logs_count = EXCLUDED.logs_count,
			errors_count = EXCLUDED.errors_count,
			avg_duration_ms = EXCLUDED.avg_duration_ms,
			stats_updated_at = EXCLUDED.stats_updated_at`, since); err != nil {
		return fmt.Errorf("store: rollup: provider stats: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO model_stats (model_id, logs_count, errors_count, avg_duration_ms, stats_updated_at)
		SELECT model_id, SUM(logs_count), SUM(errors_count),
		       CASE WHEN SUM(logs_count) > 0 THEN SUM(duration_sum_ms)::float8 / SUM(logs_count) ELSE 0 END,
		       now()
		FROM model_history
		WHERE minute_timestamp >= $1
		GROUP BY model_id
		ON CONFLICT (model_id) DO UPDATE SET
			logs_count = EXCLUDED.logs_count,
			errors_count = EXCLUDED.errors_count,
			avg_duration_ms = EXCLUDED.avg_duration_ms,
			stats_updated_at = EXCLUDED.stats_updated_at`, since); err != nil {
		return fmt.Errorf("store: rollup: model stats: %w", err)
	}

	return tx.Commit()
}
