package runtime

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/magnetmeta/types"
)

// runPipelined keeps at most Concurrency attempts in flight. An identifier is
// dispatched when it acquires a slot, so dispatch events trail the pool.
// Attempt failures never cancel siblings: the group is not bound to ctx and
// attempt never returns an error.
func (o *Orchestrator) runPipelined(ctx context.Context, ids []types.Identifier, events chan<- types.Event) {
	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)

	for i, id := range ids {
		t := task{index: i, id: id}
		g.Go(func() error {
			events <- dispatched(t)
			o.attempt(ctx, t, events)
			return nil
		})
	}
	_ = g.Wait()
}

// runFanOut submits every identifier to the pool queue up front, then drains
// the queue with Concurrency workers.
func (o *Orchestrator) runFanOut(ctx context.Context, ids []types.Identifier, events chan<- types.Event) {
	// Queue is sized to the batch so submission never blocks.
	queue := make(chan task, len(ids))
	for i, id := range ids {
		t := task{index: i, id: id}
		queue <- t
		events <- dispatched(t)
	}
	close(queue)

	workers := min(o.config.Concurrency, len(ids))
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for t := range queue {
				o.attempt(ctx, t, events)
			}
		}()
	}
	wg.Wait()
}
