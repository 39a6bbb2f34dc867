package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// AppendCheckpoint persists a new checkpoint entry at the tail of the
// execution's checkpoint list.
func (s *Store) AppendCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("bidflow/redis: encode checkpoint: %w", err)
	}
	if err := s.client.RPush(ctx, checkpointsKey(cp.ExecutionID.String()), data).Err(); err != nil {
		return fmt.Errorf("bidflow/redis: append checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns all checkpoints for an execution, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, execID id.ExecutionID) ([]*workflow.Checkpoint, error) {
	entries, err := s.client.LRange(ctx, checkpointsKey(execID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("bidflow/redis: list checkpoints: %w", err)
	}

	result := make([]*workflow.Checkpoint, 0, len(entries))
	// Stored in append order; reverse for newest first.
	for i := len(entries) - 1; i >= 0; i-- {
		cp, decErr := decodeCheckpoint([]byte(entries[i]))
		if decErr != nil {
			continue
		}
		result = append(result, cp)
	}
	return result, nil
}

// LatestCheckpoint returns the most recent checkpoint, or nil if none.
func (s *Store) LatestCheckpoint(ctx context.Context, execID id.ExecutionID) (*workflow.Checkpoint, error) {
	data, err := s.client.LIndex(ctx, checkpointsKey(execID.String()), -1).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("bidflow/redis: latest checkpoint: %w", err)
	}
	return decodeCheckpoint([]byte(data))
}

// DeleteCheckpoints removes every checkpoint for an execution.
func (s *Store) DeleteCheckpoints(ctx context.Context, execID id.ExecutionID) (int, error) {
	key := checkpointsKey(execID.String())

	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("bidflow/redis: delete checkpoints llen: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("bidflow/redis: delete checkpoints: %w", err)
	}
	return int(n), nil
}

// CleanupCheckpoints removes checkpoints created before the cutoff,
// always retaining the keep most-recent entries regardless of age.
// The list is rewritten under WATCH so a concurrent append restarts
// the cleanup rather than being lost.
func (s *Store) CleanupCheckpoints(ctx context.Context, execID id.ExecutionID, cutoff time.Time, keep int) (int, error) {
	key := checkpointsKey(execID.String())
	removed := 0

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		removed = 0
		entries, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("bidflow/redis: cleanup lrange: %w", err)
		}
		if len(entries) <= keep {
			return nil
		}

		// Entries are in append order: everything before the keep-newest
		// suffix is an eviction candidate.
		protected := len(entries) - keep
		kept := make([]any, 0, len(entries))
		for i, raw := range entries {
			cp, decErr := decodeCheckpoint([]byte(raw))
			if decErr != nil {
				removed++
				continue
			}
			if i >= protected || !cp.CreatedAt.Before(cutoff) {
				kept = append(kept, raw)
			} else {
				removed++
			}
		}
		if removed == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(kept) > 0 {
				pipe.RPush(ctx, key, kept...)
			}
			return nil
		})
		return err
	}, key)

	if errors.Is(err, goredis.TxFailedErr) {
		// A concurrent append raced the rewrite; skip this round, the
		// next cleanup sweep will catch up.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func decodeCheckpoint(data []byte) (*workflow.Checkpoint, error) {
	var cp workflow.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("bidflow/redis: decode checkpoint: %w", err)
	}
	return &cp, nil
}
