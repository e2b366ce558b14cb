package policy

import (
	"context"

	"github.com/pithecene-io/magnetmeta/types"
)

// StrictPolicy writes every outcome immediately as a group of one.
// Target errors are returned to the caller.
type StrictPolicy struct {
	target Target
	stats  statsRecorder
}

// NewStrictPolicy creates a write-through policy.
func NewStrictPolicy(target Target) *StrictPolicy {
	return &StrictPolicy{target: target}
}

// WriteOutcome implements report.Sink.
func (p *StrictPolicy) WriteOutcome(ctx context.Context, o types.Outcome) error {
	p.stats.incReceived()
	if err := p.target.WriteOutcomes(ctx, []types.Outcome{o}); err != nil {
		p.stats.incErrors()
		return err
	}
	p.stats.addPersisted(1)
	return nil
}

// Flush is a no-op; nothing is buffered.
func (p *StrictPolicy) Flush(context.Context) error {
	p.stats.incFlushes()
	return nil
}

// Close closes the target.
func (p *StrictPolicy) Close() error {
	return p.target.Close()
}

// Stats implements Policy.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*StrictPolicy)(nil)
