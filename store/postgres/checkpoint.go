package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

const checkpointColumns = `id, execution_id, step_id, data, recoverable, created_at`

// AppendCheckpoint persists a new checkpoint entry. The BIGSERIAL seq
// column preserves append order even when timestamps collide.
func (s *Store) AppendCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bidflow_checkpoints (`+checkpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		cp.ID.String(), cp.ExecutionID.String(), cp.StepID,
		cp.Data, cp.Recoverable, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("bidflow/postgres: append checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns all checkpoints for an execution, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, execID id.ExecutionID) ([]*workflow.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+checkpointColumns+`
		FROM bidflow_checkpoints
		WHERE execution_id = $1
		ORDER BY seq DESC`,
		execID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("bidflow/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	result := make([]*workflow.Checkpoint, 0)
	for rows.Next() {
		cp, scanErr := scanCheckpoint(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("bidflow/postgres: scan checkpoint: %w", scanErr)
		}
		result = append(result, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bidflow/postgres: iterate checkpoints: %w", err)
	}
	return result, nil
}

// LatestCheckpoint returns the most recent checkpoint, or nil if none.
func (s *Store) LatestCheckpoint(ctx context.Context, execID id.ExecutionID) (*workflow.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+checkpointColumns+`
		FROM bidflow_checkpoints
		WHERE execution_id = $1
		ORDER BY seq DESC
		LIMIT 1`,
		execID.String(),
	)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("bidflow/postgres: latest checkpoint: %w", err)
	}
	return cp, nil
}

// DeleteCheckpoints removes every checkpoint for an execution.
func (s *Store) DeleteCheckpoints(ctx context.Context, execID id.ExecutionID) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bidflow_checkpoints WHERE execution_id = $1`,
		execID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("bidflow/postgres: delete checkpoints: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CleanupCheckpoints removes checkpoints created before the cutoff,
// always retaining the keep most-recent entries regardless of age.
func (s *Store) CleanupCheckpoints(ctx context.Context, execID id.ExecutionID, cutoff time.Time, keep int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM bidflow_checkpoints
		WHERE execution_id = $1
		  AND created_at < $2
		  AND seq NOT IN (
			SELECT seq FROM bidflow_checkpoints
			WHERE execution_id = $1
			ORDER BY seq DESC
			LIMIT $3
		  )`,
		execID.String(), cutoff, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("bidflow/postgres: cleanup checkpoints: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanCheckpoint(row pgx.Row) (*workflow.Checkpoint, error) {
	var (
		cp           workflow.Checkpoint
		cpID, execID string
	)
	err := row.Scan(&cpID, &execID, &cp.StepID, &cp.Data, &cp.Recoverable, &cp.CreatedAt)
	if err != nil {
		return nil, err
	}
	if cp.ID, err = id.ParseCheckpointID(cpID); err != nil {
		return nil, err
	}
	if cp.ExecutionID, err = id.ParseExecutionID(execID); err != nil {
		return nil, err
	}
	return &cp, nil
}
