package store

import (
	"context"

	"github.com/me/ossim/pkg/model"
)

// Store defines the persistence layer for simulation runs and their events.
type Store interface {
	// Run records
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	UpdateRun(ctx context.Context, run *model.Run) error

	// Event log
	AppendEvents(ctx context.Context, events []model.Event) error
	ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]*model.Event, int, error)

	// Snapshots
	SaveSnapshot(ctx context.Context, runID string, seq int64, snap *model.Snapshot) error
	LatestSnapshot(ctx context.Context, runID string) (*model.Snapshot, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
