package policy_test

import (
	"context"
	"sync"

	"github.com/pithecene-io/magnetmeta/types"
)

// stubTarget records writes for assertions.
type stubTarget struct {
	mu      sync.Mutex
	writes  [][]types.Outcome
	closed  bool
	failErr error
}

func (s *stubTarget) WriteOutcomes(_ context.Context, outcomes []types.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	group := make([]types.Outcome, len(outcomes))
	copy(group, outcomes)
	s.writes = append(s.writes, group)
	return nil
}

func (s *stubTarget) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubTarget) setFail(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

func (s *stubTarget) groups() [][]types.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]types.Outcome(nil), s.writes...)
}

func (s *stubTarget) indices() []int {
	var out []int
	for _, g := range s.groups() {
		for _, o := range g {
			out = append(out, o.Index)
		}
	}
	return out
}

func outcome(i int) types.Outcome {
	return types.Resolved(i, types.Identifier("magnet:?n="+string(rune('a'+i%26))), types.Metadata{Name: "x"}, 0)
}
