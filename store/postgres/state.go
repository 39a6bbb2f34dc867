package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

const stateColumns = `id, definition_id, tenant_id, user_id, status, current_step,
	completed_steps, state_data, error_info, metadata, version, created_at, updated_at`

// CreateState persists a new execution record.
func (s *Store) CreateState(ctx context.Context, st *workflow.State) error {
	errInfo, err := encodeErrorInfo(st.ErrorInfo)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO bidflow_executions (`+stateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		st.ID.String(), st.DefinitionID.String(), st.TenantID, st.UserID,
		string(st.Status), st.CurrentStep, st.CompletedSteps,
		orEmptyMap(st.StateData), errInfo, orEmptyStringMap(st.Metadata),
		st.Version, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return bidflow.ErrAlreadyExists
		}
		return fmt.Errorf("bidflow/postgres: create state: %w", err)
	}
	return nil
}

// GetState retrieves an execution record by ID.
func (s *Store) GetState(ctx context.Context, execID id.ExecutionID) (*workflow.State, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+stateColumns+`
		FROM bidflow_executions WHERE id = $1`,
		execID.String(),
	)
	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bidflow.ErrNotFound
		}
		return nil, fmt.Errorf("bidflow/postgres: get state: %w", err)
	}
	return st, nil
}

// UpdateState persists changes to an existing record. The write is
// compare-and-swap on Version: the UPDATE is guarded on the stored
// version matching the caller's, so a concurrent writer loses cleanly.
func (s *Store) UpdateState(ctx context.Context, st *workflow.State) error {
	errInfo, err := encodeErrorInfo(st.ErrorInfo)
	if err != nil {
		return err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE bidflow_executions SET
			status = $3, current_step = $4, completed_steps = $5,
			state_data = $6, error_info = $7, metadata = $8,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		st.ID.String(), st.Version,
		string(st.Status), st.CurrentStep, st.CompletedSteps,
		orEmptyMap(st.StateData), errInfo, orEmptyStringMap(st.Metadata),
	)
	if scanErr := row.Scan(&st.Version, &st.UpdatedAt); scanErr != nil {
		if !errors.Is(scanErr, pgx.ErrNoRows) {
			return fmt.Errorf("bidflow/postgres: update state: %w", scanErr)
		}
		// Distinguish a missing record from a version mismatch.
		var exists bool
		if chkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM bidflow_executions WHERE id = $1)`,
			st.ID.String(),
		).Scan(&exists); chkErr != nil {
			return fmt.Errorf("bidflow/postgres: update state exists: %w", chkErr)
		}
		if !exists {
			return bidflow.ErrNotFound
		}
		return bidflow.ErrVersionConflict
	}
	return nil
}

// ListStates returns the tenant's executions matching the filter,
// oldest first.
func (s *Store) ListStates(ctx context.Context, tenantID string, f workflow.Filter) ([]*workflow.State, error) {
	query := `SELECT ` + stateColumns + ` FROM bidflow_executions WHERE tenant_id = $1`
	args := []any{tenantID}

	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Project != "" {
		args = append(args, f.Project)
		query += fmt.Sprintf(" AND metadata->>'project_id' = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bidflow/postgres: list states: %w", err)
	}
	defer rows.Close()
	return collectStates(rows)
}

// ListActiveStates returns every RUNNING or PAUSED execution across
// all tenants.
func (s *Store) ListActiveStates(ctx context.Context) ([]*workflow.State, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+stateColumns+`
		FROM bidflow_executions
		WHERE status IN ('RUNNING', 'PAUSED')
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("bidflow/postgres: list active states: %w", err)
	}
	defer rows.Close()
	return collectStates(rows)
}

// RemoveState deletes an execution record.
func (s *Store) RemoveState(ctx context.Context, execID id.ExecutionID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bidflow_executions WHERE id = $1`,
		execID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("bidflow/postgres: remove state: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ── helpers ──

func scanState(row pgx.Row) (*workflow.State, error) {
	var (
		st            workflow.State
		execID, defID string
		status        string
		errInfo       []byte
	)
	err := row.Scan(
		&execID, &defID, &st.TenantID, &st.UserID, &status, &st.CurrentStep,
		&st.CompletedSteps, &st.StateData, &errInfo, &st.Metadata,
		&st.Version, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if st.ID, err = id.ParseExecutionID(execID); err != nil {
		return nil, err
	}
	if st.DefinitionID, err = id.ParseDefinitionID(defID); err != nil {
		return nil, err
	}
	st.Status = workflow.Status(status)
	if len(errInfo) > 0 {
		var ei workflow.ErrorInfo
		if err := json.Unmarshal(errInfo, &ei); err != nil {
			return nil, fmt.Errorf("decode error info: %w", err)
		}
		st.ErrorInfo = &ei
	}
	return &st, nil
}

func collectStates(rows pgx.Rows) ([]*workflow.State, error) {
	result := make([]*workflow.State, 0)
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("bidflow/postgres: scan state: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bidflow/postgres: iterate states: %w", err)
	}
	return result, nil
}

func encodeErrorInfo(ei *workflow.ErrorInfo) ([]byte, error) {
	if ei == nil {
		return nil, nil
	}
	data, err := json.Marshal(ei)
	if err != nil {
		return nil, fmt.Errorf("bidflow/postgres: encode error info: %w", err)
	}
	return data, nil
}

// orEmptyMap keeps JSONB columns NOT NULL without forcing callers to
// allocate empty maps.
func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
