package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vectorplane/llmgateway/internal/domain"
)

// InsertLogs persists a batch of LogRecords in one transaction, the queue
// drain step of §4.F: one prepared INSERT runs per record, and the batch
// commits or rolls back as a whole. Callers are responsible for calling
// LogRecord.StripRetention first on records belonging to a RetentionNone
// organization; this method never inspects organization policy itself —
// the usage worker looks up each organization's retention level before
// calling it.
func (s *Store) InsertLogs(ctx context.Context, logs []domain.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: insert logs: begin: %w", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO log (
			id, request_id, organization_id, project_id, api_key_id, created_at, duration_ms,
			requested_model, requested_provider, used_model, used_provider, mode, used_mode, cached,
			cost, input_cost, output_cost, request_cost,
			prompt_tokens, completion_tokens, total_tokens, reasoning_tokens, cached_tokens,
			has_error, unified_finish_reason, response_size,
			time_to_first_token_ms, time_to_first_reasoning_token_ms,
			messages, content, custom_headers
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,
			$8,$9,$10,$11,$12,$13,$14,
			$15,$16,$17,$18,
			$19,$20,$21,$22,$23,
			$24,$25,$26,
			$27,$28,
			$29,$30,$31
		)`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: insert logs: prepare: %w", err)
	}
	defer stmt.Close()

	for _, l := range logs {
		headers, err := json.Marshal(l.CustomHeaders)
		if err != nil {
			return fmt.Errorf("store: insert logs: encode custom headers for %s: %w", l.ID, err)
		}

		var ttftMs, ttfrtMs *int64
		if l.TimeToFirstToken != nil {
			ms := l.TimeToFirstToken.Milliseconds()
			ttftMs = &ms
		}
		if l.TimeToFirstReasoningToken != nil {
			ms := l.TimeToFirstReasoningToken.Milliseconds()
			ttfrtMs = &ms
		}

		_, err = stmt.ExecContext(ctx,
			l.ID, l.RequestID, l.OrganizationID, l.ProjectID, l.ApiKeyID, l.CreatedAt, l.Duration.Milliseconds(),
			l.RequestedModel, l.RequestedProvider, l.UsedModel, l.UsedProvider, l.Mode, l.UsedMode, l.Cached,
			l.Cost, l.InputCost, l.OutputCost, l.RequestCost,
			l.PromptTokens, l.CompletionTokens, l.TotalTokens, l.ReasoningTokens, l.CachedTokens,
			l.HasError, l.UnifiedFinishReason, l.ResponseSize,
			ttftMs, ttfrtMs,
			l.Messages, l.Content, headers,
		)
		if err != nil {
			return fmt.Errorf("store: insert logs: exec %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: insert logs: commit: %w", err)
	}
	return nil
}

// OrganizationRetention looks up a single organization's retention policy,
// used by the queue drain loop to decide whether to strip a log's body
// before InsertLogs.
func (s *Store) OrganizationRetention(ctx context.Context, organizationID string) (domain.RetentionLevel, error) {
	var level domain.RetentionLevel
	err := s.db.QueryRowContext(ctx, `SELECT retention_level FROM organization WHERE id = $1`, organizationID).Scan(&level)
	if err != nil {
		return "", fmt.Errorf("store: organization retention: %w", err)
	}
	return level, nil
}
