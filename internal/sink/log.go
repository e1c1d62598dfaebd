package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/me/ossim/pkg/model"
)

// DefaultMaxLines caps the number of log lines one run may write.
const DefaultMaxLines = 10000

// LogSink writes each event as a structured log record. A snapshot is
// written as one record for the queues plus one per occupied slot.
type LogSink struct {
	logger   *slog.Logger
	maxLines int

	mu        sync.Mutex
	lines     int
	truncated bool
}

// NewLogSink creates a LogSink. maxLines <= 0 disables the cap.
func NewLogSink(logger *slog.Logger, maxLines int) *LogSink {
	return &LogSink{
		logger:   logger.With("component", "events"),
		maxLines: maxLines,
	}
}

// Lines returns the number of records written so far.
func (s *LogSink) Lines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

func (s *LogSink) Emit(ctx context.Context, ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Kind == model.EventSnapshot && ev.Snapshot != nil {
		snap := ev.Snapshot
		s.write(ctx, "process table", "clock", snap.Clock,
			"ready0", formatIDs(snap.Queues[0]),
			"ready1", formatIDs(snap.Queues[1]),
			"ready2", formatIDs(snap.Queues[2]),
			"blocked", formatIDs(snap.Blocked))
		for i, pcb := range snap.Table {
			if !pcb.Occupied {
				continue
			}
			s.write(ctx, "slot", "slot", i, "pid", pcb.ID, "level", pcb.Level,
				"service", pcb.Service, "start", pcb.Start, "blocked", pcb.Blocked, "wake", pcb.Wake)
		}
		return nil
	}

	attrs := []any{"seq", ev.Seq, "kind", ev.Kind, "clock", ev.Clock}
	if ev.PID != 0 {
		attrs = append(attrs, "pid", ev.PID, "level", ev.Level)
	}
	if ev.Quantum > 0 {
		attrs = append(attrs, "quantum", ev.Quantum)
	}
	if ev.Outcome != "" {
		attrs = append(attrs, "outcome", ev.Outcome)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}
	s.write(ctx, "event", attrs...)
	return nil
}

// write logs one record unless the line budget is spent.
func (s *LogSink) write(ctx context.Context, msg string, attrs ...any) {
	if s.maxLines > 0 && s.lines >= s.maxLines {
		if !s.truncated {
			s.truncated = true
			s.logger.WarnContext(ctx, "log line limit reached, further events not logged", "max_lines", s.maxLines)
		}
		return
	}
	s.lines++
	s.logger.InfoContext(ctx, msg, attrs...)
}

func (s *LogSink) Close() error { return nil }

func formatIDs(ids []model.ProcessID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, " "))
}
