package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
)

const ruleColumns = `id, tenant_id, execution_id, event_type, method, target,
	conditions, enabled, created_at, updated_at`

// CreateRule persists a new notification rule.
func (s *Store) CreateRule(ctx context.Context, r *notify.Rule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bidflow_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID.String(), r.TenantID, r.ExecutionID,
		string(r.EventType), string(r.Method), r.Target,
		orEmptyMap(r.Conditions), r.Enabled, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return bidflow.ErrAlreadyExists
		}
		return fmt.Errorf("bidflow/postgres: create rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule scoped to the tenant.
func (s *Store) GetRule(ctx context.Context, tenantID string, ruleID id.RuleID) (*notify.Rule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM bidflow_rules WHERE id = $1 AND tenant_id = $2`,
		ruleID.String(), tenantID,
	)
	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bidflow.ErrRuleNotFound
		}
		return nil, fmt.Errorf("bidflow/postgres: get rule: %w", err)
	}
	return r, nil
}

// ListRules returns all of a tenant's rules, oldest first.
func (s *Store) ListRules(ctx context.Context, tenantID string) ([]*notify.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM bidflow_rules
		WHERE tenant_id = $1
		ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("bidflow/postgres: list rules: %w", err)
	}
	defer rows.Close()

	result := make([]*notify.Rule, 0)
	for rows.Next() {
		r, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("bidflow/postgres: scan rule: %w", scanErr)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bidflow/postgres: iterate rules: %w", err)
	}
	return result, nil
}

// UpdateRule persists changes to an existing rule.
func (s *Store) UpdateRule(ctx context.Context, r *notify.Rule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bidflow_rules SET
			execution_id = $3, event_type = $4, method = $5, target = $6,
			conditions = $7, enabled = $8, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2`,
		r.ID.String(), r.TenantID, r.ExecutionID,
		string(r.EventType), string(r.Method), r.Target,
		orEmptyMap(r.Conditions), r.Enabled,
	)
	if err != nil {
		return fmt.Errorf("bidflow/postgres: update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bidflow.ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule scoped to the tenant.
func (s *Store) DeleteRule(ctx context.Context, tenantID string, ruleID id.RuleID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bidflow_rules WHERE id = $1 AND tenant_id = $2`,
		ruleID.String(), tenantID,
	)
	if err != nil {
		return fmt.Errorf("bidflow/postgres: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bidflow.ErrRuleNotFound
	}
	return nil
}

func scanRule(row pgx.Row) (*notify.Rule, error) {
	var (
		r                 notify.Rule
		rawID             string
		eventType, method string
	)
	err := row.Scan(
		&rawID, &r.TenantID, &r.ExecutionID, &eventType, &method, &r.Target,
		&r.Conditions, &r.Enabled, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.ID, err = id.ParseRuleID(rawID); err != nil {
		return nil, err
	}
	r.EventType = notify.EventType(eventType)
	r.Method = notify.Method(method)
	return &r, nil
}
