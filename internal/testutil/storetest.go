package testutil

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/storage"
)

// RunGenerationStoreTests exercises the storage.GenerationStore contract.
// Every backend runs this same suite; open must return a fresh empty store.
func RunGenerationStoreTests(t *testing.T, open func(t *testing.T) storage.GenerationStore) {
	ctx := context.Background()

	sample := func() *airlock.StoredResponse {
		return &airlock.StoredResponse{
			Status: http.StatusOK,
			Header: http.Header{
				"Content-Type": {"text/html; charset=utf-8"},
				"Set-Cookie":   {"a=1", "b=2"},
			},
			Body:     []byte{'<', 0x00, 0xff, '>'},
			StoredAt: time.Now().UTC().Truncate(time.Second),
		}
	}

	t.Run("ensure and get generation", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		if err := s.EnsureGeneration(ctx, "airlock-1.0.0", "1.0.0"); err != nil {
			t.Fatal("ensure:", err)
		}
		g, err := s.GetGeneration(ctx, "airlock-1.0.0")
		if err != nil {
			t.Fatal("get:", err)
		}
		if g.Name != "airlock-1.0.0" {
			t.Errorf("name = %q, want %q", g.Name, "airlock-1.0.0")
		}
		if g.Version != "1.0.0" {
			t.Errorf("version = %q, want %q", g.Version, "1.0.0")
		}
		if g.Complete {
			t.Error("new generation should not be complete")
		}
		if g.CreatedAt.IsZero() {
			t.Error("created_at not set")
		}
	})

	t.Run("ensure is idempotent", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		if err := s.EnsureGeneration(ctx, "g1", "v1"); err != nil {
			t.Fatal(err)
		}
		if err := s.PutEntry(ctx, "g1", "GET /", sample()); err != nil {
			t.Fatal(err)
		}
		if err := s.CompleteGeneration(ctx, "g1"); err != nil {
			t.Fatal(err)
		}

		if err := s.EnsureGeneration(ctx, "g1", "v1"); err != nil {
			t.Fatal("second ensure:", err)
		}
		g, err := s.GetGeneration(ctx, "g1")
		if err != nil {
			t.Fatal(err)
		}
		if !g.Complete {
			t.Error("re-ensure cleared the complete flag")
		}
		if n, _ := s.CountEntries(ctx, "g1"); n != 1 {
			t.Errorf("re-ensure dropped entries: count = %d, want 1", n)
		}
	})

	t.Run("missing generation", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		if _, err := s.GetGeneration(ctx, "nope"); !errors.Is(err, airlock.ErrGenerationMissing) {
			t.Errorf("GetGeneration error = %v, want ErrGenerationMissing", err)
		}
		if err := s.CompleteGeneration(ctx, "nope"); !errors.Is(err, airlock.ErrGenerationMissing) {
			t.Errorf("CompleteGeneration error = %v, want ErrGenerationMissing", err)
		}
	})

	t.Run("entry round trip", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		if err := s.EnsureGeneration(ctx, "g1", "v1"); err != nil {
			t.Fatal(err)
		}
		want := sample()
		key := airlock.EntryKey(http.MethodGet, "/api/tree?from=2024-01-01&to=2024-02-01")
		if err := s.PutEntry(ctx, "g1", key, want); err != nil {
			t.Fatal("put:", err)
		}

		got, err := s.GetEntry(ctx, "g1", key)
		if err != nil {
			t.Fatal("get:", err)
		}
		if got.Status != want.Status {
			t.Errorf("status = %d, want %d", got.Status, want.Status)
		}
		if !reflect.DeepEqual(got.Header, want.Header) {
			t.Errorf("header = %v, want %v", got.Header, want.Header)
		}
		if !reflect.DeepEqual(got.Body, want.Body) {
			t.Errorf("body = %v, want %v", got.Body, want.Body)
		}
		if !got.StoredAt.Equal(want.StoredAt) {
			t.Errorf("stored_at = %v, want %v", got.StoredAt, want.StoredAt)
		}

		if _, err := s.GetEntry(ctx, "g1", "GET /other"); !errors.Is(err, airlock.ErrNotFound) {
			t.Errorf("missing entry error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		if err := s.EnsureGeneration(ctx, "g1", "v1"); err != nil {
			t.Fatal(err)
		}
		first := sample()
		if err := s.PutEntry(ctx, "g1", "GET /", first); err != nil {
			t.Fatal(err)
		}
		second := sample()
		second.Status = http.StatusNotFound
		second.Body = []byte("gone")
		if err := s.PutEntry(ctx, "g1", "GET /", second); err != nil {
			t.Fatal(err)
		}

		got, err := s.GetEntry(ctx, "g1", "GET /")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != http.StatusNotFound || string(got.Body) != "gone" {
			t.Errorf("got status=%d body=%q, want overwritten entry", got.Status, got.Body)
		}
		if n, _ := s.CountEntries(ctx, "g1"); n != 1 {
			t.Errorf("count = %d, want 1 after overwrite", n)
		}
	})

	t.Run("batch put and count", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		if err := s.EnsureGeneration(ctx, "g1", "v1"); err != nil {
			t.Fatal(err)
		}
		batch := map[string]*airlock.StoredResponse{
			"GET /":         sample(),
			"GET /offline":  sample(),
			"GET /manifest": sample(),
		}
		if err := s.PutEntries(ctx, "g1", batch); err != nil {
			t.Fatal("batch put:", err)
		}
		n, err := s.CountEntries(ctx, "g1")
		if err != nil {
			t.Fatal(err)
		}
		if n != 3 {
			t.Errorf("count = %d, want 3", n)
		}
		for key := range batch {
			if _, err := s.GetEntry(ctx, "g1", key); err != nil {
				t.Errorf("get %q: %v", key, err)
			}
		}
	})

	t.Run("generations are isolated", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		for _, g := range []string{"g1", "g2"} {
			if err := s.EnsureGeneration(ctx, g, "v"); err != nil {
				t.Fatal(err)
			}
		}
		r1 := sample()
		r1.Body = []byte("one")
		r2 := sample()
		r2.Body = []byte("two")
		if err := s.PutEntry(ctx, "g1", "GET /", r1); err != nil {
			t.Fatal(err)
		}
		if err := s.PutEntry(ctx, "g2", "GET /", r2); err != nil {
			t.Fatal(err)
		}

		got, err := s.GetEntry(ctx, "g1", "GET /")
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Body) != "one" {
			t.Errorf("g1 body = %q, want %q", got.Body, "one")
		}
		got, err = s.GetEntry(ctx, "g2", "GET /")
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Body) != "two" {
			t.Errorf("g2 body = %q, want %q", got.Body, "two")
		}
	})

	t.Run("delete except", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		for _, g := range []string{"g1", "g2", "g3"} {
			if err := s.EnsureGeneration(ctx, g, "v"); err != nil {
				t.Fatal(err)
			}
			if err := s.PutEntry(ctx, g, "GET /", sample()); err != nil {
				t.Fatal(err)
			}
		}

		n, err := s.DeleteGenerationsExcept(ctx, "g2")
		if err != nil {
			t.Fatal("delete:", err)
		}
		if n != 2 {
			t.Errorf("deleted = %d, want 2", n)
		}

		if _, err := s.GetGeneration(ctx, "g1"); !errors.Is(err, airlock.ErrGenerationMissing) {
			t.Errorf("g1 should be gone, got %v", err)
		}
		if _, err := s.GetEntry(ctx, "g1", "GET /"); !errors.Is(err, airlock.ErrNotFound) {
			t.Errorf("g1 entries should be gone, got %v", err)
		}
		if _, err := s.GetGeneration(ctx, "g2"); err != nil {
			t.Errorf("kept generation lost: %v", err)
		}
		if _, err := s.GetEntry(ctx, "g2", "GET /"); err != nil {
			t.Errorf("kept generation entry lost: %v", err)
		}

		gens, err := s.ListGenerations(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(gens) != 1 || gens[0].Name != "g2" {
			t.Errorf("list after delete = %v, want only g2", names(gens))
		}

		// Deleting with nothing else present is a no-op.
		n, err = s.DeleteGenerationsExcept(ctx, "g2")
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("second delete = %d, want 0", n)
		}
	})

	t.Run("list order", func(t *testing.T) {
		t.Parallel()
		s := open(t)

		for _, g := range []string{"g-a", "g-b", "g-c"} {
			if err := s.EnsureGeneration(ctx, g, "v"); err != nil {
				t.Fatal(err)
			}
		}
		gens, err := s.ListGenerations(ctx)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"g-a", "g-b", "g-c"}
		if !reflect.DeepEqual(names(gens), want) {
			t.Errorf("order = %v, want %v", names(gens), want)
		}
	})

	t.Run("ping", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		if err := s.Ping(ctx); err != nil {
			t.Errorf("ping: %v", err)
		}
	})
}

func names(gens []*airlock.Generation) []string {
	out := make([]string, len(gens))
	for i, g := range gens {
		out[i] = g.Name
	}
	return out
}
