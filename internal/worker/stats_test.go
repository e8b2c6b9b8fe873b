package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	airlock "github.com/reodash/airlock/internal"
)

type fakeStatsSource struct {
	mu    sync.Mutex
	calls int
	stats airlock.GenerationStats
	err   error
}

func (s *fakeStatsSource) Stats(context.Context) (airlock.GenerationStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return airlock.GenerationStats{}, s.err
	}
	return s.stats, nil
}

func (s *fakeStatsSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestStatsWorker_WaitsForReady(t *testing.T) {
	t.Parallel()
	src := &fakeStatsSource{stats: airlock.GenerationStats{Generation: "airlock-1.0.0", Entries: 3}}
	ready := make(chan struct{})
	w := NewStatsWorker(src, time.Hour, nil, ready)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if src.callCount() != 0 {
		t.Error("stats reported before activation")
	}

	close(ready)
	deadline := time.After(2 * time.Second)
	for src.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no report after activation")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run returned %v", err)
	}
}

func TestStatsWorker_Ticks(t *testing.T) {
	t.Parallel()
	src := &fakeStatsSource{}
	w := NewStatsWorker(src, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for src.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("reports = %d, want at least 3", src.callCount())
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run returned %v", err)
	}
}

func TestStatsWorker_KeepsRunningOnError(t *testing.T) {
	t.Parallel()
	src := &fakeStatsSource{err: errors.New("store gone")}
	w := NewStatsWorker(src, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for src.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("reports = %d, want at least 2 despite errors", src.callCount())
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run returned %v", err)
	}
}
