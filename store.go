package bidflow

import "context"

// Storer is the minimal store interface covering lifecycle operations.
// The full composite interface (store.Store) is asserted where subsystem
// stores are wired; keeping lifecycle separate avoids import cycles
// between the root package and the subsystem packages.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
