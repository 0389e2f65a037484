package store

import (
	"context"

	"github.com/carecompanion/n1/internal/experiment"
)

// Store is the persistence adapter for experiment records. Records are read
// and overwritten whole, keyed by user id.
type Store interface {
	LoadState(ctx context.Context, userID string) (experiment.State, error)
	SaveState(ctx context.Context, userID string, state experiment.State) error
}
