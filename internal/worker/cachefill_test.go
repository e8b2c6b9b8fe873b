package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/testutil"
)

type fakeFillStore struct {
	mu   sync.Mutex
	puts map[string]*airlock.StoredResponse
}

func newFakeFillStore() *fakeFillStore {
	return &fakeFillStore{puts: make(map[string]*airlock.StoredResponse)}
}

func (s *fakeFillStore) Put(_ context.Context, key string, resp *airlock.StoredResponse) error {
	s.mu.Lock()
	s.puts[key] = resp
	s.mu.Unlock()
	return nil
}

func (s *fakeFillStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

func TestCacheFill_WritesQueued(t *testing.T) {
	t.Parallel()
	store := newFakeFillStore()
	fill := NewCacheFill(store, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fill.Run(ctx)
		close(done)
	}()

	fill.Enqueue("GET /a.js", testutil.Stored(200, "a"))
	fill.Enqueue("GET /b.js", testutil.Stored(200, "b"))
	fill.Enqueue("GET /c.css", testutil.Stored(200, "c"))

	deadline := time.After(2 * time.Second)
	for store.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("items not written; got %d", store.count())
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	<-done
}

func TestCacheFill_DropOnFull(t *testing.T) {
	t.Parallel()
	fill := &CacheFill{
		ch:    make(chan fillItem, 2), // tiny buffer
		store: newFakeFillStore(),
	}

	// No Run loop, so the channel only fills.
	fill.Enqueue("GET /1", testutil.Stored(200, "1"))
	fill.Enqueue("GET /2", testutil.Stored(200, "2"))
	fill.Enqueue("GET /3", testutil.Stored(200, "3"))

	if len(fill.ch) != 2 {
		t.Errorf("channel len = %d, want 2", len(fill.ch))
	}
}

func TestCacheFill_DrainOnShutdown(t *testing.T) {
	t.Parallel()
	store := newFakeFillStore()
	fill := NewCacheFill(store, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fill.Run(ctx)
		close(done)
	}()

	fill.Enqueue("GET /drain-1", testutil.Stored(200, "1"))
	fill.Enqueue("GET /drain-2", testutil.Stored(200, "2"))

	time.Sleep(50 * time.Millisecond) // let the goroutine start
	cancel()
	<-done

	if store.count() < 2 {
		t.Errorf("expected at least 2 drained items, got %d", store.count())
	}
}
