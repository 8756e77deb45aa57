package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/vectorplane/llmgateway/internal/store"
)

// ClickHouseSink is the §10.5 optional analytics sink: a best-effort
// secondary write of each minute-history bucket, enabled only when
// CLICKHOUSE_DSN (§6) is set. Its table is flat and append-only, unlike the
// upsert-on-conflict Postgres history tables, since OLAP-style ad hoc
// analysis over history wants every observed value of a bucket, not just
// the latest.
type ClickHouseSink struct {
	conn chdriver.Conn
}

// NewClickHouseSink opens a native-protocol connection to dsn and verifies
// it with a ping. The caller owns creating the destination table; this
// sink only ever appends to it.
func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("stats: parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("stats: open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("stats: ping clickhouse: %w", err)
	}

	return &ClickHouseSink{conn: conn}, nil
}

// WriteMappingMinute appends one flattened minute-history row. Failure here
// is always swallowed by the caller — it never blocks the Postgres commit
// that is this system's source of truth.
func (s *ClickHouseSink) WriteMappingMinute(ctx context.Context, minute time.Time, a store.MinuteAgg) error {
	const q = `
		INSERT INTO model_provider_mapping_history (
			model_id, provider_id, minute_timestamp, logs_count, errors_count,
			client_errors_count, gateway_errors_count, upstream_errors_count, cached_count,
			prompt_tokens_sum, completion_tokens_sum, total_tokens_sum, duration_sum_ms, ttft_sum_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.conn.Exec(ctx, q,
		a.ModelID, a.ProviderID, minute, a.LogsCount, a.ErrorsCount,
		a.ClientErrorsCount, a.GatewayErrorsCount, a.UpstreamErrorsCount, a.CachedCount,
		a.PromptTokensSum, a.CompletionTokensSum, a.TotalTokensSum, a.DurationSumMs, a.TTFTSumMs,
	)
}

// Close releases the underlying connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
