// Package scheduler implements the three-level feedback-queue scheduler
// that drives a simulation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/mailbox"
	"github.com/me/ossim/internal/proctable"
	"github.com/me/ossim/internal/sink"
	"github.com/me/ossim/pkg/model"
)

// Config holds scheduler configuration.
type Config struct {
	TotalJobs        int
	MaxConcurrent    int
	AdmitInterval    time.Duration
	Quanta           [model.Levels]time.Duration
	RoundIncrement   time.Duration
	IOWait           time.Duration
	SnapshotInterval time.Duration
	Timeout          time.Duration // wall-clock budget for Run; zero disables it
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TotalJobs:        5,
		MaxConcurrent:    3,
		AdmitInterval:    100 * time.Millisecond,
		Quanta:           [model.Levels]time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond},
		RoundIncrement:   100 * time.Millisecond,
		IOWait:           250 * time.Millisecond,
		SnapshotInterval: 500 * time.Millisecond,
		Timeout:          3 * time.Second,
	}
}

func (c Config) validate() error {
	if c.TotalJobs < 1 || c.MaxConcurrent < 1 {
		return fmt.Errorf("total jobs and max concurrent must be positive")
	}
	for level, q := range c.Quanta {
		if q <= 0 {
			return fmt.Errorf("quantum for level %d must be positive", level)
		}
		if q > c.RoundIncrement {
			return fmt.Errorf("quantum for level %d (%s) exceeds round increment %s", level, q, c.RoundIncrement)
		}
	}
	if c.AdmitInterval < 0 || c.IOWait < 0 || c.SnapshotInterval <= 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	return nil
}

// Resources are the collaborators a Loop drives. Table and Sink may be
// nil; the rest are required.
type Resources struct {
	RunID    string
	Clock    *clock.Clock
	Table    *proctable.Table
	Mailbox  *mailbox.Mailbox
	Launcher Launcher
	Sink     sink.Sink
}

// Stats summarises a Loop's progress.
type Stats struct {
	Admitted   int
	Terminated int
	Dispatches int
	Messages   int64
	Clock      model.SimTime
}

var _ Scheduler = (*Loop)(nil)

// Loop implements the Scheduler interface. It owns the process table and
// the ready and blocked queues; nothing else mutates them.
type Loop struct {
	runID    string
	clock    *clock.Clock
	table    *proctable.Table
	ready    ReadyQueues
	blocked  BlockedSet
	mailbox  *mailbox.Mailbox
	launcher Launcher
	sink     sink.Sink
	config   Config
	logger   *slog.Logger
	tracer   trace.Tracer

	admitted     int
	terminated   int
	dispatches   int
	seq          int64
	nextAdmit    model.SimTime
	nextSnapshot model.SimTime

	releaseOnce sync.Once
}

// NewLoop checks that every resource is usable and returns a Loop.
// Missing or released resources yield a RESOURCE_ERROR.
func NewLoop(res Resources, cfg Config, logger *slog.Logger) (*Loop, error) {
	if res.Clock == nil || res.Clock.Closed() {
		return nil, model.NewResourceError("attach clock", errors.New("clock unavailable"))
	}
	if res.Mailbox == nil || res.Mailbox.Closed() {
		return nil, model.NewResourceError("attach dispatch channel", errors.New("mailbox unavailable"))
	}
	if res.Launcher == nil {
		return nil, model.NewResourceError("attach launcher", errors.New("no launcher"))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if res.Table == nil {
		res.Table = proctable.New(proctable.DefaultCapacity)
	}
	if res.Sink == nil {
		res.Sink = sink.Discard
	}
	if cfg.MaxConcurrent > res.Table.Capacity() {
		return nil, fmt.Errorf("max concurrent %d exceeds table capacity %d", cfg.MaxConcurrent, res.Table.Capacity())
	}

	return &Loop{
		runID:        res.RunID,
		clock:        res.Clock,
		table:        res.Table,
		mailbox:      res.Mailbox,
		launcher:     res.Launcher,
		sink:         res.Sink,
		config:       cfg,
		logger:       logger.With("component", "scheduler", "run_id", res.RunID),
		tracer:       otel.Tracer("github.com/me/ossim/internal/scheduler"),
		nextSnapshot: model.SimTimeOf(cfg.SnapshotInterval),
	}, nil
}

// Run ticks until every admitted job has terminated. On every exit path
// the workers are killed and the channel and clock are released.
func (l *Loop) Run(ctx context.Context) error {
	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()
	}
	defer l.release()

	l.logger.Info("scheduler started",
		"total_jobs", l.config.TotalJobs,
		"max_concurrent", l.config.MaxConcurrent,
		"quanta", l.config.Quanta,
		"timeout", l.config.Timeout,
	)

	for !l.Done() {
		if err := ctx.Err(); err != nil {
			return l.fail(model.NewTimeoutError("run", err))
		}
		if err := l.Tick(ctx); err != nil {
			return l.fail(err)
		}
		if l.logger.Enabled(ctx, slog.LevelDebug) {
			if err := l.checkPlacement(); err != nil {
				return l.fail(err)
			}
		}
	}

	l.emitSnapshot(ctx)
	stats := l.Stats()
	l.logger.Info("scheduler finished",
		"admitted", stats.Admitted,
		"terminated", stats.Terminated,
		"dispatches", stats.Dispatches,
		"messages", stats.Messages,
		"clock", stats.Clock,
	)
	return nil
}

// Done reports whether every job has been admitted and has terminated.
func (l *Loop) Done() bool {
	return l.admitted == l.config.TotalJobs && l.ready.Len() == 0 && l.blocked.Len() == 0
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Admitted:   l.admitted,
		Terminated: l.terminated,
		Dispatches: l.dispatches,
		Messages:   l.mailbox.Sent(),
		Clock:      l.clock.Now(),
	}
}

// Tick runs a single scheduling round: wake, admit, then dispatch one
// process or let the clock idle forward.
func (l *Loop) Tick(ctx context.Context) error {
	l.wakeBlocked(ctx)

	if err := l.admit(ctx); err != nil {
		return err
	}

	id, level, ok := l.ready.Next()
	if !ok {
		if l.Done() {
			return nil
		}
		now := l.clock.Advance(l.config.RoundIncrement)
		l.emit(ctx, model.Event{Kind: model.EventIdle, Detail: fmt.Sprintf("blocked=%d", l.blocked.Len())})
		l.logger.Debug("idle", "clock", now, "blocked", l.blocked.Len())
	} else if err := l.dispatch(ctx, id, level); err != nil {
		return err
	}

	if !l.clock.Now().Before(l.nextSnapshot) {
		l.emitSnapshot(ctx)
		for !l.clock.Now().Before(l.nextSnapshot) {
			l.nextSnapshot = l.nextSnapshot.Add(l.config.SnapshotInterval)
		}
	}
	return nil
}

// wakeBlocked moves every process whose wake time has passed to the tail
// of level 0.
func (l *Loop) wakeBlocked(ctx context.Context) {
	for _, id := range l.blocked.Wake(l.clock.Now()) {
		pcb, ok := l.table.Lookup(id)
		if !ok {
			continue
		}
		if err := transition(pcb, model.ProcessStateReady); err != nil {
			l.logger.Error("wake", "pid", id, "error", err)
		}
		pcb.Blocked = false
		pcb.Level = 0
		l.ready.Enqueue(0, id)
		l.emit(ctx, model.Event{Kind: model.EventWoken, PID: id})
	}
}

// admit launches one job when the population, the table and the admission
// interval allow it.
func (l *Loop) admit(ctx context.Context) error {
	if l.admitted >= l.config.TotalJobs || l.table.Live() >= l.config.MaxConcurrent || l.table.Full() {
		return nil
	}
	now := l.clock.Now()
	if now.Before(l.nextAdmit) {
		return nil
	}

	id, err := l.launcher.Launch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return model.NewTimeoutError("launch worker", err)
		}
		return model.NewResourceError("launch worker", err)
	}
	slot, err := l.table.Allocate(id, now)
	if err != nil {
		l.launcher.Kill(id)
		return err
	}

	l.admitted++
	l.nextAdmit = now.Add(l.config.AdmitInterval)
	l.ready.Enqueue(0, id)
	l.emit(ctx, model.Event{Kind: model.EventAdmitted, PID: id, Detail: fmt.Sprintf("slot=%d", slot)})
	l.logger.Debug("admitted", "pid", id, "slot", slot, "clock", now)
	return nil
}

// dispatch grants id the quantum of its level, charges the round to the
// clock while the grant is in flight, and applies the reported outcome.
func (l *Loop) dispatch(ctx context.Context, id model.ProcessID, level int) (err error) {
	ctx, span := l.tracer.Start(ctx, "scheduler.dispatch", trace.WithAttributes(
		attribute.Int("pid", int(id)),
		attribute.Int("level", level),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	pcb, ok := l.table.Lookup(id)
	if !ok {
		return fmt.Errorf("dispatch: process %d has no slot", id)
	}
	if err := transition(pcb, model.ProcessStateDispatched); err != nil {
		return err
	}

	quantum := l.config.Quanta[level]
	if err := l.mailbox.Send(ctx, model.NewDispatch(id, quantum, l.clock.Now())); err != nil {
		return l.commError(ctx, fmt.Sprintf("send grant to %d", id), err)
	}
	l.dispatches++
	l.emit(ctx, model.Event{Kind: model.EventDispatched, PID: id, Level: level, Quantum: quantum})

	l.clock.Advance(l.config.RoundIncrement)

	report, err := l.mailbox.Receive(ctx, model.SchedulerID)
	if err != nil {
		return l.commError(ctx, fmt.Sprintf("receive report from %d", id), err)
	}
	if report.Kind != model.MessageReport || report.From != id {
		return model.NewCommunicationError("receive report",
			fmt.Errorf("expected report from %d, got %s from %d", id, report.Kind, report.From))
	}
	span.SetAttributes(attribute.String("outcome", report.Outcome.String()))
	l.emit(ctx, model.Event{Kind: model.EventReported, PID: id, Level: level, Quantum: quantum, Outcome: report.Outcome})

	return l.apply(ctx, pcb, level, quantum, report.Outcome)
}

func (l *Loop) apply(ctx context.Context, pcb *model.PCB, level int, quantum time.Duration, outcome model.Outcome) error {
	id := pcb.ID
	switch outcome {
	case model.OutcomeContinue:
		next := min(level+1, model.Levels-1)
		pcb.Service += quantum
		pcb.Level = next
		if err := transition(pcb, model.ProcessStateReady); err != nil {
			return err
		}
		l.ready.Enqueue(next, id)
		l.emit(ctx, model.Event{Kind: model.EventDemoted, PID: id, Level: next, Detail: fmt.Sprintf("%d -> %d", level, next)})

	case model.OutcomeBlock:
		pcb.Service += quantum
		pcb.Blocked = true
		pcb.Wake = l.clock.Now().Add(l.config.IOWait)
		if err := transition(pcb, model.ProcessStateBlocked); err != nil {
			return err
		}
		l.blocked.Block(id, pcb.Wake)
		l.emit(ctx, model.Event{Kind: model.EventBlocked, PID: id, Level: level, Detail: "wake=" + pcb.Wake.String()})

	case model.OutcomeTerminate:
		service := pcb.Service + quantum
		if err := transition(pcb, model.ProcessStateTerminated); err != nil {
			return err
		}
		if err := l.table.Release(id); err != nil {
			return err
		}
		l.mailbox.Forget(id)
		l.terminated++
		l.emit(ctx, model.Event{Kind: model.EventTerminated, PID: id, Level: level, Detail: "service=" + service.String()})
		l.logger.Debug("terminated", "pid", id, "service", service, "clock", l.clock.Now())

	default:
		return model.NewCommunicationError("apply report", fmt.Errorf("unknown outcome %q from %d", outcome, id))
	}
	return nil
}

// Snapshot returns a copy of the table and queues.
func (l *Loop) Snapshot() model.Snapshot {
	return model.Snapshot{
		Clock:   l.clock.Now(),
		Table:   l.table.Snapshot(),
		Queues:  l.ready.Contents(),
		Blocked: l.blocked.IDs(),
	}
}

func (l *Loop) emitSnapshot(ctx context.Context) {
	snap := l.Snapshot()
	l.emit(ctx, model.Event{Kind: model.EventSnapshot, Snapshot: &snap})
}

// emit stamps ev and hands it to the sink. Sink failures are logged and
// never stop the simulation.
func (l *Loop) emit(ctx context.Context, ev model.Event) {
	l.seq++
	ev.RunID = l.runID
	ev.Seq = l.seq
	ev.Clock = l.clock.Now()
	if err := l.sink.Emit(context.WithoutCancel(ctx), ev); err != nil {
		l.logger.Warn("emit event", "kind", ev.Kind, "seq", ev.Seq, "error", err)
	}
}

// commError classifies a channel failure. A failure caused by the safety
// budget running out is a timeout.
func (l *Loop) commError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return model.NewTimeoutError(op, ctx.Err())
	}
	return model.NewCommunicationError(op, err)
}

// transition moves pcb to next if the lifecycle allows it.
func transition(pcb *model.PCB, next model.ProcessState) error {
	if !pcb.State.CanTransitionTo(next) {
		return &model.InvalidTransitionError{
			Entity: "process",
			ID:     pcb.ID.String(),
			From:   pcb.State.String(),
			To:     next.String(),
		}
	}
	pcb.State = next
	return nil
}

// checkPlacement verifies that every live process sits in exactly one
// ready level or in the blocked set, and that nothing else does.
func (l *Loop) checkPlacement() error {
	seen := make(map[model.ProcessID]int)
	for _, ids := range l.ready.levels {
		for _, id := range ids {
			seen[id]++
		}
	}
	for _, id := range l.blocked.IDs() {
		seen[id]++
	}
	for _, pcb := range l.table.Snapshot() {
		if !pcb.Occupied {
			continue
		}
		if seen[pcb.ID] != 1 {
			return fmt.Errorf("placement: process %d found in %d places", pcb.ID, seen[pcb.ID])
		}
		delete(seen, pcb.ID)
	}
	for id := range seen {
		return fmt.Errorf("placement: process %d queued without a slot", id)
	}
	return nil
}
