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
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// CreateState persists a new execution record.
func (s *Store) CreateState(ctx context.Context, st *workflow.State) error {
	eID := st.ID.String()
	key := stateKey(eID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("bidflow/redis: create state exists: %w", err)
	}
	if exists > 0 {
		return bidflow.ErrAlreadyExists
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("bidflow/redis: encode state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, stateIDsKey, eID)
	pipe.SAdd(ctx, tenantStatesKey(st.TenantID), eID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bidflow/redis: create state: %w", err)
	}
	return nil
}

// GetState retrieves an execution record by ID.
func (s *Store) GetState(ctx context.Context, execID id.ExecutionID) (*workflow.State, error) {
	data, err := s.client.Get(ctx, stateKey(execID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, bidflow.ErrNotFound
		}
		return nil, fmt.Errorf("bidflow/redis: get state: %w", err)
	}
	return decodeState(data)
}

// UpdateState persists changes to an existing record. The write is
// compare-and-swap on Version, enforced with WATCH so a concurrent write
// between the read and the MULTI aborts the transaction.
func (s *Store) UpdateState(ctx context.Context, st *workflow.State) error {
	key := stateKey(st.ID.String())

	cp := st.Clone()
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("bidflow/redis: encode state: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		stored, getErr := tx.Get(ctx, key).Bytes()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				return bidflow.ErrNotFound
			}
			return fmt.Errorf("bidflow/redis: update state read: %w", getErr)
		}

		current, decErr := decodeState(stored)
		if decErr != nil {
			return decErr
		}
		if current.Version != st.Version {
			return bidflow.ErrVersionConflict
		}

		_, pipeErr := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return pipeErr
	}, key)

	if errors.Is(err, goredis.TxFailedErr) {
		// Someone else committed between our read and MULTI; the version
		// they wrote can no longer match the caller's.
		return bidflow.ErrVersionConflict
	}
	if err != nil {
		return err
	}

	st.Version = cp.Version
	st.UpdatedAt = cp.UpdatedAt
	return nil
}

// ListStates returns the tenant's executions matching the filter,
// oldest first.
func (s *Store) ListStates(ctx context.Context, tenantID string, f workflow.Filter) ([]*workflow.State, error) {
	ids, err := s.client.SMembers(ctx, tenantStatesKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("bidflow/redis: list states smembers: %w", err)
	}

	result := make([]*workflow.State, 0, len(ids))
	for _, eID := range ids {
		st, getErr := s.loadState(ctx, eID)
		if getErr != nil || st == nil {
			continue
		}
		if st.TenantID != tenantID {
			continue
		}
		if f.Status != "" && st.Status != f.Status {
			continue
		}
		if f.Project != "" && st.Project() != f.Project {
			continue
		}
		result = append(result, st)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return []*workflow.State{}, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// ListActiveStates returns every RUNNING or PAUSED execution across
// all tenants.
func (s *Store) ListActiveStates(ctx context.Context) ([]*workflow.State, error) {
	ids, err := s.client.SMembers(ctx, stateIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("bidflow/redis: list active smembers: %w", err)
	}

	result := make([]*workflow.State, 0)
	for _, eID := range ids {
		st, getErr := s.loadState(ctx, eID)
		if getErr != nil || st == nil {
			continue
		}
		if st.Status.Active() {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// RemoveState deletes an execution record and its index entries.
func (s *Store) RemoveState(ctx context.Context, execID id.ExecutionID) (bool, error) {
	eID := execID.String()

	st, err := s.loadState(ctx, eID)
	if err != nil {
		return false, err
	}
	if st == nil {
		return false, nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, stateKey(eID))
	pipe.SRem(ctx, stateIDsKey, eID)
	pipe.SRem(ctx, tenantStatesKey(st.TenantID), eID)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("bidflow/redis: remove state: %w", err)
	}
	return true, nil
}

// ── helpers ──

// loadState fetches and decodes one record; a missing key returns
// (nil, nil) so enumeration can skip records deleted mid-scan.
func (s *Store) loadState(ctx context.Context, eID string) (*workflow.State, error) {
	data, err := s.client.Get(ctx, stateKey(eID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("bidflow/redis: load state: %w", err)
	}
	return decodeState(data)
}

func decodeState(data []byte) (*workflow.State, error) {
	var st workflow.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("bidflow/redis: decode state: %w", err)
	}
	return &st, nil
}
