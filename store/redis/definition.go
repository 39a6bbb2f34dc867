package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// CreateDefinition persists a new workflow template. Definitions are
// immutable after creation, so a plain SETNX suffices.
func (s *Store) CreateDefinition(ctx context.Context, def *workflow.Definition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("bidflow/redis: encode definition: %w", err)
	}

	ok, err := s.client.SetNX(ctx, defKey(def.ID.String()), data, 0).Result()
	if err != nil {
		return fmt.Errorf("bidflow/redis: create definition: %w", err)
	}
	if !ok {
		return bidflow.ErrAlreadyExists
	}
	return nil
}

// GetDefinition retrieves a workflow template by ID.
func (s *Store) GetDefinition(ctx context.Context, defID id.DefinitionID) (*workflow.Definition, error) {
	data, err := s.client.Get(ctx, defKey(defID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, bidflow.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("bidflow/redis: get definition: %w", err)
	}

	var def workflow.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("bidflow/redis: decode definition: %w", err)
	}
	return &def, nil
}
