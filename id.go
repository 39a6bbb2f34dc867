package bidflow

import "github.com/warlockedward/AI-Bid-Assistant-sub001/id"

// ID is the primary identifier type for all bidflow entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
