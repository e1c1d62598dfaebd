// Package worker implements the simulated processes the scheduler
// dispatches, and the launcher that starts them.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/ossim/pkg/model"
)

// Clock is the read side of the simulated clock.
type Clock interface {
	Now() model.SimTime
	WaitUntil(ctx context.Context, target model.SimTime) (model.SimTime, error)
}

// Mailbox is the worker's view of the dispatch channel.
type Mailbox interface {
	Send(ctx context.Context, msg model.Message) error
	Receive(ctx context.Context, addr model.ProcessID) (model.Message, error)
}

// Config describes one simulated process.
type Config struct {
	ID       model.ProcessID
	Outcome  model.Outcome // drawn once at birth
	Start    model.SimTime
	Lifetime time.Duration // zero means no limit
}

// Worker waits for quantum grants addressed to it, lets the quantum elapse
// on the simulated clock and reports an outcome back to the scheduler.
type Worker struct {
	cfg     Config
	clock   Clock
	mailbox Mailbox
	logger  *slog.Logger
}

// New creates a Worker.
func New(cfg Config, clk Clock, mb Mailbox, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:     cfg,
		clock:   clk,
		mailbox: mb,
		logger:  logger.With("component", "worker", "pid", cfg.ID),
	}
}

// ID returns the worker's dispatch address.
func (w *Worker) ID() model.ProcessID { return w.cfg.ID }

// Run serves grants until the worker reports TERMINATE or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("worker started", "outcome", w.cfg.Outcome, "lifetime", w.cfg.Lifetime)

	for {
		grant, err := w.mailbox.Receive(ctx, w.cfg.ID)
		if err != nil {
			return fmt.Errorf("receive grant: %w", err)
		}
		if grant.Kind != model.MessageGrant {
			return fmt.Errorf("unexpected %s message %s", grant.Kind, grant.ID)
		}

		now, err := w.clock.WaitUntil(ctx, grant.IssuedAt.Add(grant.Quantum))
		if err != nil {
			return fmt.Errorf("wait for quantum: %w", err)
		}

		outcome := w.decide(now)
		w.logger.Debug("quantum used", "quantum", grant.Quantum, "clock", now, "outcome", outcome)

		if err := w.mailbox.Send(ctx, model.NewReport(w.cfg.ID, outcome)); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
		if outcome == model.OutcomeTerminate {
			return nil
		}
	}
}

// decide returns the worker's category, or TERMINATE once its lifetime has
// elapsed.
func (w *Worker) decide(now model.SimTime) model.Outcome {
	if w.cfg.Lifetime > 0 && now.Sub(w.cfg.Start) >= w.cfg.Lifetime {
		return model.OutcomeTerminate
	}
	return w.cfg.Outcome
}
