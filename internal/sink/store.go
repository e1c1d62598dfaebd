package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/tebeka/atexit"

	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/pkg/model"
)

// DefaultBatchSize is the number of events buffered before a write.
const DefaultBatchSize = 256

// StoreSink persists events to a Store in batches. Snapshots are written
// straight through so the latest one is always queryable.
type StoreSink struct {
	store     store.Store
	batchSize int

	mu      sync.Mutex
	pending []model.Event
	closed  bool
}

// NewStoreSink creates a StoreSink and registers a flush to run at process
// exit.
func NewStoreSink(st store.Store, batchSize int) *StoreSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	s := &StoreSink{store: st, batchSize: batchSize}

	atexit.Register(func() { s.Flush(context.Background()) })

	return s
}

func (s *StoreSink) Emit(ctx context.Context, ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store sink closed")
	}

	if ev.Kind == model.EventSnapshot && ev.Snapshot != nil {
		if err := s.store.SaveSnapshot(ctx, ev.RunID, ev.Seq, ev.Snapshot); err != nil {
			return fmt.Errorf("save snapshot %d: %w", ev.Seq, err)
		}
	}

	ev.Snapshot = nil
	s.pending = append(s.pending, ev)
	if len(s.pending) >= s.batchSize {
		return s.flushLocked(ctx)
	}
	return nil
}

// Flush writes every buffered event.
func (s *StoreSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *StoreSink) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.store.AppendEvents(ctx, s.pending); err != nil {
		return fmt.Errorf("append %d events: %w", len(s.pending), err)
	}
	s.pending = s.pending[:0]
	return nil
}

// Close flushes the buffer. The underlying store stays open.
func (s *StoreSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.flushLocked(context.Background())
}
