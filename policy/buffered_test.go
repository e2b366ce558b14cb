package policy_test

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/magnetmeta/policy"
)

func TestNewBufferedPolicy_Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     policy.BufferedConfig
		wantErr bool
	}{
		{"defaults", policy.BufferedConfig{}, false},
		{"explicit", policy.BufferedConfig{FlushRecords: 5, MaxRecords: 10}, false},
		{"negative flush", policy.BufferedConfig{FlushRecords: -1}, true},
		{"negative interval", policy.BufferedConfig{FlushInterval: -time.Second}, true},
		{"max below flush", policy.BufferedConfig{FlushRecords: 10, MaxRecords: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol, err := policy.NewBufferedPolicy(&stubTarget{}, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, policy.ErrInvalidConfig) {
					t.Errorf("error %v should wrap ErrInvalidConfig", err)
				}
				return
			}
			_ = pol.Close()
		})
	}
}

func TestBufferedPolicy_FlushesAtThreshold(t *testing.T) {
	target := &stubTarget{}
	pol, err := policy.NewBufferedPolicy(target, policy.BufferedConfig{FlushRecords: 3})
	if err != nil {
		t.Fatal(err)
	}

	for i := range 7 {
		if err := pol.WriteOutcome(t.Context(), outcome(i)); err != nil {
			t.Fatalf("WriteOutcome(%d): %v", i, err)
		}
	}

	groups := target.groups()
	if len(groups) != 2 || len(groups[0]) != 3 || len(groups[1]) != 3 {
		t.Fatalf("groups = %d (%v), want two groups of 3", len(groups), groups)
	}
	if got := pol.Stats().Buffered; got != 1 {
		t.Errorf("Buffered = %d, want 1", got)
	}

	if err := pol.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if want := []int{0, 1, 2, 3, 4, 5, 6}; !slices.Equal(target.indices(), want) {
		t.Errorf("indices = %v, want %v", target.indices(), want)
	}
	if !target.closed {
		t.Error("Close should close the target")
	}

	stats := pol.Stats()
	if stats.Received != 7 || stats.Persisted != 7 || stats.Buffered != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBufferedPolicy_FailedFlushKeepsBuffer(t *testing.T) {
	target := &stubTarget{}
	pol, err := policy.NewBufferedPolicy(target, policy.BufferedConfig{FlushRecords: 2, MaxRecords: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer pol.Close()

	target.setFail(errors.New("s3 unavailable"))
	_ = pol.WriteOutcome(t.Context(), outcome(0))
	if err := pol.WriteOutcome(t.Context(), outcome(1)); err == nil {
		t.Fatal("threshold flush should report the target error")
	}
	if got := pol.Stats().Buffered; got != 2 {
		t.Fatalf("Buffered = %d after failed flush, want 2", got)
	}

	target.setFail(nil)
	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	if want := []int{0, 1}; !slices.Equal(target.indices(), want) {
		t.Errorf("indices = %v, want %v", target.indices(), want)
	}

	stats := pol.Stats()
	if stats.Errors != 1 || stats.Persisted != 2 || stats.Flushes != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBufferedPolicy_DropsWhenFull(t *testing.T) {
	target := &stubTarget{failErr: errors.New("down")}
	pol, err := policy.NewBufferedPolicy(target, policy.BufferedConfig{FlushRecords: 2, MaxRecords: 2})
	if err != nil {
		t.Fatal(err)
	}

	_ = pol.WriteOutcome(t.Context(), outcome(0))
	_ = pol.WriteOutcome(t.Context(), outcome(1))
	if err := pol.WriteOutcome(t.Context(), outcome(2)); !errors.Is(err, policy.ErrBufferFull) {
		t.Fatalf("error = %v, want ErrBufferFull", err)
	}

	stats := pol.Stats()
	if stats.Dropped != 1 || stats.Buffered != 2 || stats.Received != 3 {
		t.Errorf("stats = %+v", stats)
	}

	target.setFail(nil)
	if err := pol.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if want := []int{0, 1}; !slices.Equal(target.indices(), want) {
		t.Errorf("indices = %v, want %v", target.indices(), want)
	}
}

func TestBufferedPolicy_IntervalFlush(t *testing.T) {
	target := &stubTarget{}
	pol, err := policy.NewBufferedPolicy(target, policy.BufferedConfig{
		FlushRecords:  100,
		FlushInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pol.Close()

	if err := pol.WriteOutcome(t.Context(), outcome(0)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(target.groups()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("interval flush did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBufferedPolicy_CloseIsIdempotent(t *testing.T) {
	pol, err := policy.NewBufferedPolicy(&stubTarget{}, policy.BufferedConfig{FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if err := pol.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pol.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestBufferedPolicy_ConcurrentWrites(t *testing.T) {
	target := &stubTarget{}
	pol, err := policy.NewBufferedPolicy(target, policy.BufferedConfig{FlushRecords: 7, MaxRecords: 1000})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = pol.WriteOutcome(t.Context(), outcome(w*50+i))
			}
		}()
	}
	wg.Wait()
	if err := pol.Close(); err != nil {
		t.Fatal(err)
	}

	got := target.indices()
	if len(got) != 200 {
		t.Fatalf("persisted %d outcomes, want 200", len(got))
	}
	slices.Sort(got)
	for i, idx := range got {
		if idx != i {
			t.Fatalf("missing or duplicated index near %d", i)
		}
	}
	if s := pol.Stats(); s.Persisted != 200 || s.Dropped != 0 {
		t.Errorf("stats = %+v", s)
	}
}
