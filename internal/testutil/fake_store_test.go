package testutil

import (
	"context"
	"errors"
	"testing"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/storage"
)

// The fake must honor the same contract as the real backends, otherwise
// tests built on it prove nothing.
func TestFakeStoreConformance(t *testing.T) {
	RunGenerationStoreTests(t, func(t *testing.T) storage.GenerationStore {
		return NewFakeStore()
	})
}

func TestFakeStoreInjection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	boom := errors.New("boom")
	s := NewFakeStore()
	s.PingFn = func(context.Context) error { return boom }

	if err := s.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping error = %v, want injected error", err)
	}

	s.GetEntryFn = func(context.Context, string, string) (*airlock.StoredResponse, error) {
		return nil, boom
	}
	if _, err := s.GetEntry(ctx, "g", "k"); !errors.Is(err, boom) {
		t.Errorf("GetEntry error = %v, want injected error", err)
	}
}

func TestFakeStoreClonesOnGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewFakeStore()
	if err := s.EnsureGeneration(ctx, "g1", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.PutEntry(ctx, "g1", "GET /", Stored(200, "original")); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEntry(ctx, "g1", "GET /")
	if err != nil {
		t.Fatal(err)
	}
	got.Body[0] = 'X'

	again, err := s.GetEntry(ctx, "g1", "GET /")
	if err != nil {
		t.Fatal(err)
	}
	if string(again.Body) != "original" {
		t.Errorf("stored body mutated through returned copy: %q", again.Body)
	}
}
