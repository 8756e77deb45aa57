package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// claimedLog is the subset of a log row the credit batch needs: its id,
// owning api key and organization, cost, and billing mode. Schema-validated
// rows with a NULL cost are skipped from accumulation but still marked
// processed, since §4.F only accumulates "cost>0 AND NOT cached".
type claimedLog struct {
	id       string
	apiKeyID string
	orgID    string
	usedMode string
	cost     *decimal.Decimal
	cached   bool
}

// ProcessCreditBatch implements §4.F step 2 end to end: claim up to
// batchSize unprocessed logs under FOR UPDATE SKIP LOCKED, accumulate
// per-key and per-org deltas, apply them, and mark the claimed rows
// processed — all inside one transaction so the accumulation and the
// processedAt write are atomic (§8's "processedAt transitions exactly once"
// invariant). Returns the number of rows claimed (zero is not an error; it
// means there was nothing to do).
func (s *Store) ProcessCreditBatch(ctx context.Context, batchSize int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: credit batch: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, api_key_id, organization_id, used_mode, cost, cached
		FROM log
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("store: credit batch: claim: %w", err)
	}

	var claimed []claimedLog
	for rows.Next() {
		var (
			l    claimedLog
			cost sql.NullString
		)
		if err := rows.Scan(&l.id, &l.apiKeyID, &l.orgID, &l.usedMode, &cost, &l.cached); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: credit batch: scan: %w", err)
		}
		if cost.Valid {
			d, err := decimal.NewFromString(cost.String)
			if err == nil {
				l.cost = &d
			}
		}
		claimed = append(claimed, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("store: credit batch: iterate: %w", err)
	}
	rows.Close()

	if len(claimed) == 0 {
		return 0, tx.Commit()
	}

	apiKeyCosts := map[string]decimal.Decimal{}
	orgCosts := map[string]decimal.Decimal{}
	ids := make([]string, 0, len(claimed))

	for _, l := range claimed {
		ids = append(ids, l.id)
		if l.cost == nil || l.cached || !l.cost.IsPositive() {
			continue
		}
		apiKeyCosts[l.apiKeyID] = apiKeyCosts[l.apiKeyID].Add(*l.cost)
		if l.usedMode == "credits" {
			orgCosts[l.orgID] = orgCosts[l.orgID].Add(*l.cost)
		}
	}

	for apiKeyID, delta := range apiKeyCosts {
		if _, err := tx.ExecContext(ctx, `UPDATE api_key SET usage = usage + $1 WHERE id = $2`, delta, apiKeyID); err != nil {
			return 0, fmt.Errorf("store: credit batch: update api_key %s: %w", apiKeyID, err)
		}
	}
	for orgID, delta := range orgCosts {
		if _, err := tx.ExecContext(ctx, `UPDATE organization SET credits = credits - $1 WHERE id = $2`, delta, orgID); err != nil {
			return 0, fmt.Errorf("store: credit batch: update organization %s: %w", orgID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE log SET processed_at = now() WHERE id = ANY($1)`, pqStringArray(ids)); err != nil {
		return 0, fmt.Errorf("store: credit batch: mark processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: credit batch: commit: %w", err)
	}
	return len(claimed), nil
}
