package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vectorplane/llmgateway/internal/domain"
)

// AutoTopupCandidates returns every organization with auto top-up enabled
// whose credits have fallen below its own threshold, the selection §4.F's
// auto top-up probe iterates over.
func (s *Store) AutoTopupCandidates(ctx context.Context) ([]domain.Organization, error) {
	const q = `
		SELECT id, credits, plan, retention_level, status,
		       auto_topup_enabled, auto_topup_threshold, auto_topup_amount
		FROM organization
		WHERE auto_topup_enabled AND credits < auto_topup_threshold`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: auto topup candidates: %w", err)
	}
	defer rows.Close()

	var orgs []domain.Organization
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Credits, &o.Plan, &o.RetentionLevel, &o.Status,
			&o.AutoTopupEnabled, &o.AutoTopupThreshold, &o.AutoTopupAmount); err != nil {
			return nil, fmt.Errorf("store: scan auto topup candidate: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// HasRecentTransaction reports whether organizationID has a pending or
// failed transaction created within the last window, the guard §4.F uses to
// avoid double-charging while a prior attempt is still settling.
func (s *Store) HasRecentTransaction(ctx context.Context, organizationID string, window time.Duration) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM transaction
			WHERE organization_id = $1
			  AND status IN ('pending', 'failed')
			  AND created_at > now() - $2::interval
		)`

	var exists bool
	err := s.db.QueryRowContext(ctx, q, organizationID, fmt.Sprintf("%d seconds", int(window.Seconds()))).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: has recent transaction: %w", err)
	}
	return exists, nil
}

// CreateTransaction inserts a pending Transaction row and returns nothing
// beyond the error; t.ID and t.CreatedAt are set by the caller before
// calling so the same id can be correlated with the payment provider call
// that follows.
func (s *Store) CreateTransaction(ctx context.Context, t domain.Transaction) error {
	const q = `
		INSERT INTO transaction (id, organization_id, amount, status, provider_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, q, t.ID, t.OrganizationID, t.Amount, t.Status, t.ProviderRef, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create transaction: %w", err)
	}
	return nil
}

// UpdateTransactionStatus patches a transaction's status and provider
// reference after the payment provider call returns, and credits the
// organization when the charge succeeded — both in one transaction so a
// successful charge always has matching credits.
func (s *Store) UpdateTransactionStatus(ctx context.Context, transactionID string, status domain.TransactionStatus, providerRef string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: update transaction: begin: %w", err)
	}
	defer tx.Rollback()

	var orgID string
	var amount decimal.Decimal
	if err := tx.QueryRowContext(ctx, `SELECT organization_id, amount FROM transaction WHERE id = $1`, transactionID).Scan(&orgID, &amount); err != nil {
		return fmt.Errorf("store: update transaction: lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE transaction SET status = $1, provider_ref = $2 WHERE id = $3`, status, providerRef, transactionID); err != nil {
		return fmt.Errorf("store: update transaction: status: %w", err)
	}

	if status == domain.TransactionSucceeded {
		if _, err := tx.ExecContext(ctx, `UPDATE organization SET credits = credits + $1 WHERE id = $2`, amount, orgID); err != nil {
			return fmt.Errorf("store: update transaction: credit: %w", err)
		}
	}

	return tx.Commit()
}
