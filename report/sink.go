package report

import (
	"context"
	"errors"

	"github.com/pithecene-io/magnetmeta/types"
)

// Sink receives outcomes in emission order.
type Sink interface {
	WriteOutcome(ctx context.Context, o types.Outcome) error
	Close() error
}

// multiSink writes each outcome to every sink.
type multiSink struct {
	sinks []Sink
}

// Multi returns a Sink that fans out to sinks. Nil sinks are skipped.
// A failure in one sink does not stop delivery to the others; errors are
// joined.
func Multi(sinks ...Sink) Sink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &multiSink{sinks: kept}
}

func (m *multiSink) WriteOutcome(ctx context.Context, o types.Outcome) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteOutcome(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

