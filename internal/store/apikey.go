package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vectorplane/llmgateway/internal/domain"
)

// ErrNotFound is returned when a lookup by token or id has no match.
var ErrNotFound = errors.New("store: not found")

// ApiKeyByToken resolves an ApiKey, its Project and Organization in one
// joined statement (§4.E step 1), then the key's active IAM rules in a
// second query. Returns ErrNotFound when token does not match an existing key.
func (s *Store) ApiKeyByToken(ctx context.Context, token string) (domain.ApiKey, domain.Project, domain.Organization, []domain.IamRule, error) {
	const q = `
		SELECT k.id, k.project_id, k.token, k.masked_token, k.status, k.usage, k.usage_limit,
		       p.id, p.organization_id, p.mode,
		       o.id, o.credits, o.plan, o.retention_level, o.status,
		       o.auto_topup_enabled, o.auto_topup_threshold, o.auto_topup_amount
		FROM api_key k
		JOIN project p ON p.id = k.project_id
		JOIN organization o ON o.id = p.organization_id
		WHERE k.token = $1`

	var (
		key      domain.ApiKey
		project  domain.Project
		org      domain.Organization
		usageLim sql.NullString
	)

	row := s.db.QueryRowContext(ctx, q, token)
	if err := row.Scan(
		&key.ID, &key.ProjectID, &key.Token, &key.MaskedToken, &key.Status, &key.Usage, &usageLim,
		&project.ID, &project.OrganizationID, &project.Mode,
		&org.ID, &org.Credits, &org.Plan, &org.RetentionLevel, &org.Status,
		&org.AutoTopupEnabled, &org.AutoTopupThreshold, &org.AutoTopupAmount,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ApiKey{}, domain.Project{}, domain.Organization{}, nil, ErrNotFound
		}
		return domain.ApiKey{}, domain.Project{}, domain.Organization{}, nil, fmt.Errorf("store: api key by token: %w", err)
	}
	if usageLim.Valid {
		d, err := decimal.NewFromString(usageLim.String)
		if err == nil {
			key.UsageLimit = &d
		}
	}

	rules, err := s.iamRulesForKey(ctx, key.ID)
	if err != nil {
		return domain.ApiKey{}, domain.Project{}, domain.Organization{}, nil, err
	}

	return key, project, org, rules, nil
}

func (s *Store) iamRulesForKey(ctx context.Context, apiKeyID string) ([]domain.IamRule, error) {
	const q = `SELECT id, api_key_id, rule_type, value, status FROM iam_rule WHERE api_key_id = $1 AND status = 'active'`

	rows, err := s.db.QueryContext(ctx, q, apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("store: iam rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.IamRule
	for rows.Next() {
		var (
			r       domain.IamRule
			rawJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.ApiKeyID, &r.RuleType, &rawJSON, &r.Status); err != nil {
			return nil, fmt.Errorf("store: scan iam rule: %w", err)
		}
		if len(rawJSON) > 0 {
			if err := json.Unmarshal(rawJSON, &r.Value); err != nil {
				return nil, fmt.Errorf("store: decode iam rule value %s: %w", r.ID, err)
			}
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ProviderCredential satisfies router.CredentialSource: the organization's
// own stored key for providerID, if one exists.
func (s *Store) ProviderCredential(ctx context.Context, organizationID, providerID string) (string, bool, error) {
	const q = `SELECT token FROM provider_key WHERE organization_id = $1 AND provider_id = $2`

	var token string
	err := s.db.QueryRowContext(ctx, q, organizationID, providerID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: provider credential: %w", err)
	}
	return token, true, nil
}
