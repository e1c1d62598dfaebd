// Package simulation assembles a scheduler, its workers and its event
// sinks into one runnable simulation.
package simulation

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rs/xid"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/config"
	"github.com/me/ossim/internal/mailbox"
	"github.com/me/ossim/internal/proctable"
	"github.com/me/ossim/internal/scheduler"
	"github.com/me/ossim/internal/sink"
	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/internal/worker"
	"github.com/me/ossim/pkg/model"
)

// Builder can be used to build a simulation.
type Builder struct {
	config config.SimConfig
	store  store.Store
	logger *slog.Logger
	live   *sink.Live
	sinks  []sink.Sink
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		config: config.DefaultSimConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithConfig sets the simulation parameters.
func (b Builder) WithConfig(cfg config.SimConfig) Builder {
	b.config = cfg
	return b
}

// WithStore records the run and its events in st.
func (b Builder) WithStore(st store.Store) Builder {
	b.store = st
	return b
}

// WithLogger sets the logger used by every component and by the event log.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// WithLive feeds the latest snapshot into live for the monitor server.
func (b Builder) WithLive(live *sink.Live) Builder {
	b.live = live
	return b
}

// WithSink adds an extra event consumer.
func (b Builder) WithSink(s sink.Sink) Builder {
	b.sinks = append(b.sinks, s)
	return b
}

// Build validates the configuration and acquires the clock, the dispatch
// channel and the launcher.
func (b Builder) Build() (*Simulation, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		id:     "run_" + xid.New().String(),
		config: b.config,
		store:  b.store,
	}
	s.logger = b.logger.With("run_id", s.id)

	clk := clock.New()
	mb := mailbox.New()
	launcher, err := worker.NewInProcessLauncher(b.config.Launcher(), clk, mb, s.logger)
	if err != nil {
		return nil, model.NewResourceError("create launcher", err)
	}

	sinks := []sink.Sink{sink.NewLogSink(s.logger, b.config.LogMaxLines)}
	if b.store != nil {
		sinks = append(sinks, sink.NewStoreSink(b.store, sink.DefaultBatchSize))
	}
	if b.live != nil {
		sinks = append(sinks, b.live)
	}
	sinks = append(sinks, b.sinks...)
	s.sink = sink.Multi(sinks...)

	s.loop, err = scheduler.NewLoop(scheduler.Resources{
		RunID:    s.id,
		Clock:    clk,
		Table:    proctable.New(b.config.TableSize),
		Mailbox:  mb,
		Launcher: launcher,
		Sink:     s.sink,
	}, b.config.Scheduler(), s.logger)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	return s, nil
}
