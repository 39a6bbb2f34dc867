package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
)

// CreateRule persists a new notification rule.
func (s *Store) CreateRule(ctx context.Context, r *notify.Rule) error {
	rID := r.ID.String()
	key := ruleKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("bidflow/redis: create rule exists: %w", err)
	}
	if exists > 0 {
		return bidflow.ErrAlreadyExists
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("bidflow/redis: encode rule: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, tenantRulesKey(r.TenantID), rID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bidflow/redis: create rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule scoped to the tenant.
func (s *Store) GetRule(ctx context.Context, tenantID string, ruleID id.RuleID) (*notify.Rule, error) {
	r, err := s.loadRule(ctx, ruleID.String())
	if err != nil {
		return nil, err
	}
	if r == nil || r.TenantID != tenantID {
		return nil, bidflow.ErrRuleNotFound
	}
	return r, nil
}

// ListRules returns all of a tenant's rules, oldest first.
func (s *Store) ListRules(ctx context.Context, tenantID string) ([]*notify.Rule, error) {
	ids, err := s.client.SMembers(ctx, tenantRulesKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("bidflow/redis: list rules smembers: %w", err)
	}

	result := make([]*notify.Rule, 0, len(ids))
	for _, rID := range ids {
		r, getErr := s.loadRule(ctx, rID)
		if getErr != nil || r == nil || r.TenantID != tenantID {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// UpdateRule persists changes to an existing rule.
func (s *Store) UpdateRule(ctx context.Context, r *notify.Rule) error {
	current, err := s.loadRule(ctx, r.ID.String())
	if err != nil {
		return err
	}
	if current == nil || current.TenantID != r.TenantID {
		return bidflow.ErrRuleNotFound
	}

	cp := *r
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("bidflow/redis: encode rule: %w", err)
	}
	if err := s.client.Set(ctx, ruleKey(r.ID.String()), data, 0).Err(); err != nil {
		return fmt.Errorf("bidflow/redis: update rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule scoped to the tenant.
func (s *Store) DeleteRule(ctx context.Context, tenantID string, ruleID id.RuleID) error {
	rID := ruleID.String()

	current, err := s.loadRule(ctx, rID)
	if err != nil {
		return err
	}
	if current == nil || current.TenantID != tenantID {
		return bidflow.ErrRuleNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, ruleKey(rID))
	pipe.SRem(ctx, tenantRulesKey(tenantID), rID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bidflow/redis: delete rule: %w", err)
	}
	return nil
}

func (s *Store) loadRule(ctx context.Context, rID string) (*notify.Rule, error) {
	data, err := s.client.Get(ctx, ruleKey(rID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("bidflow/redis: load rule: %w", err)
	}

	var r notify.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("bidflow/redis: decode rule: %w", err)
	}
	return &r, nil
}
