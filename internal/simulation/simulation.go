package simulation

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/ossim/internal/config"
	"github.com/me/ossim/internal/scheduler"
	"github.com/me/ossim/internal/sink"
	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/pkg/model"
)

// Simulation is one configured, not yet started run.
type Simulation struct {
	id     string
	config config.SimConfig
	loop   *scheduler.Loop
	sink   sink.Sink
	store  store.Store
	logger *slog.Logger
}

// ID returns the run id.
func (s *Simulation) ID() string { return s.id }

// Run drives the simulation to completion and returns its summary. The
// summary is returned even when the run fails.
func (s *Simulation) Run(ctx context.Context) (*model.Run, error) {
	run := &model.Run{
		ID:        s.id,
		State:     model.RunStateRunning,
		Config:    s.config,
		StartedAt: time.Now().UTC(),
	}
	if s.store != nil {
		if err := s.store.CreateRun(ctx, run); err != nil {
			return run, model.NewResourceError("record run", err)
		}
	}

	runErr := s.loop.Run(ctx)
	if err := s.sink.Close(); err != nil {
		s.logger.Warn("close event sinks", "error", err)
	}

	s.finish(run, runErr)
	if s.store != nil {
		if err := s.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
			s.logger.Error("update run record", "error", err)
		}
	}
	return run, runErr
}

func (s *Simulation) finish(run *model.Run, err error) {
	stats := s.loop.Stats()
	now := time.Now().UTC()

	next := StateFor(err)
	if !run.State.CanTransitionTo(next) {
		s.logger.Error("invalid run transition", "from", run.State, "to", next)
	}
	run.State = next
	run.FinishedAt = &now
	run.Admitted = stats.Admitted
	run.Terminated = stats.Terminated
	run.Dispatches = stats.Dispatches
	run.Messages = stats.Messages
	run.FinalClock = stats.Clock
	if err != nil {
		run.ExitReason = err.Error()
		run.ErrorKind = model.KindOf(err)
	}
}

// StateFor maps a run error to the run's final state.
func StateFor(err error) model.RunState {
	switch {
	case err == nil:
		return model.RunStateCompleted
	case model.KindOf(err) == model.KindTimeout:
		return model.RunStateTimedOut
	default:
		return model.RunStateFailed
	}
}
