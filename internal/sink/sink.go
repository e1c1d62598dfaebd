// Package sink receives the structured events a simulation emits.
package sink

import (
	"context"
	"errors"

	"github.com/me/ossim/pkg/model"
)

//go:generate mockgen -destination ../scheduler/mock_sink_test.go -package scheduler github.com/me/ossim/internal/sink Sink

// Sink consumes scheduler events in emission order.
type Sink interface {
	Emit(ctx context.Context, ev model.Event) error
	Close() error
}

type multi []Sink

// Multi fans every event out to each sink in order. Emit and Close visit
// every sink and join their errors.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Emit(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, model.Event) error { return nil }
func (discard) Close() error                            { return nil }
