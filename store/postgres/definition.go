package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// CreateDefinition persists a new workflow template. Steps are stored as
// a JSONB document since they are immutable and always read whole.
func (s *Store) CreateDefinition(ctx context.Context, def *workflow.Definition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("bidflow/postgres: encode steps: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO bidflow_definitions
			(id, name, version, tenant_id, created_by, steps, metadata, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		def.ID.String(), def.Name, def.Version, def.TenantID, def.CreatedBy,
		steps, orEmptyStringMap(def.Metadata), def.IsActive,
		def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return bidflow.ErrAlreadyExists
		}
		return fmt.Errorf("bidflow/postgres: create definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a workflow template by ID.
func (s *Store) GetDefinition(ctx context.Context, defID id.DefinitionID) (*workflow.Definition, error) {
	var (
		def   workflow.Definition
		rawID string
		steps []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, version, tenant_id, created_by, steps, metadata, is_active, created_at, updated_at
		FROM bidflow_definitions WHERE id = $1`,
		defID.String(),
	).Scan(
		&rawID, &def.Name, &def.Version, &def.TenantID, &def.CreatedBy,
		&steps, &def.Metadata, &def.IsActive, &def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bidflow.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("bidflow/postgres: get definition: %w", err)
	}

	if def.ID, err = id.ParseDefinitionID(rawID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &def.Steps); err != nil {
		return nil, fmt.Errorf("bidflow/postgres: decode steps: %w", err)
	}
	return &def, nil
}
