package scheduler

import (
	"context"

	"github.com/me/ossim/pkg/model"
)

// Scheduler drives a simulation from admission to the last termination.
type Scheduler interface {
	// Run ticks until every job has terminated or a fatal error occurs.
	// Resources are released before it returns.
	Run(ctx context.Context) error

	// Tick runs a single scheduling round. Used for testing.
	Tick(ctx context.Context) error

	// Snapshot returns the current bookkeeping without modifying it.
	Snapshot() model.Snapshot
}

// Launcher creates and destroys worker processes.
type Launcher interface {
	// Launch starts a worker and returns its dispatch address.
	Launch(ctx context.Context) (model.ProcessID, error)
	// Kill stops one worker.
	Kill(id model.ProcessID)
	// KillAll stops every worker still running.
	KillAll()
	// Wait blocks until every stopped worker has exited.
	Wait()
}
