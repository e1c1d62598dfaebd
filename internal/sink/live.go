package sink

import (
	"context"
	"sync/atomic"

	"github.com/me/ossim/pkg/model"
)

// Live remembers the latest snapshot and event of an in-progress run so
// the monitor can serve them without touching the store.
type Live struct {
	snapshot atomic.Pointer[model.Snapshot]
	last     atomic.Pointer[model.Event]
	runID    atomic.Value
}

// NewLive creates an empty Live view.
func NewLive() *Live {
	l := &Live{}
	l.runID.Store("")
	return l
}

func (l *Live) Emit(_ context.Context, ev model.Event) error {
	l.runID.Store(ev.RunID)
	if ev.Snapshot != nil {
		l.snapshot.Store(ev.Snapshot)
	}
	ev.Snapshot = nil
	l.last.Store(&ev)
	return nil
}

func (l *Live) Close() error { return nil }

// Snapshot returns the most recent snapshot, or nil before the first one.
func (l *Live) Snapshot() *model.Snapshot { return l.snapshot.Load() }

// LastEvent returns the most recent event, or nil before the first one.
func (l *Live) LastEvent() *model.Event { return l.last.Load() }

// RunID returns the id of the run feeding this view.
func (l *Live) RunID() string { return l.runID.Load().(string) }
