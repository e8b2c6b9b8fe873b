package leveldb

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/storage"
	"github.com/reodash/airlock/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir() + "/cache")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerationStore(t *testing.T) {
	t.Parallel()
	testutil.RunGenerationStoreTests(t, func(t *testing.T) storage.GenerationStore {
		return newTestStore(t)
	})
}

func TestReopenPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := t.TempDir() + "/cache"

	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureGeneration(ctx, "airlock-1.0.0", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	resp := &airlock.StoredResponse{
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {"application/manifest+json"}},
		Body:     []byte(`{"name":"reodash"}`),
		StoredAt: time.Now().UTC(),
	}
	if err := s.PutEntry(ctx, "airlock-1.0.0", "GET /manifest.webmanifest", resp); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteGeneration(ctx, "airlock-1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := New(path)
	if err != nil {
		t.Fatal("reopen:", err)
	}
	t.Cleanup(func() { s2.Close() })

	g, err := s2.GetGeneration(ctx, "airlock-1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !g.Complete {
		t.Error("complete flag lost on reopen")
	}
	got, err := s2.GetEntry(ctx, "airlock-1.0.0", "GET /manifest.webmanifest")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Body) != `{"name":"reodash"}` {
		t.Errorf("body = %q after reopen", got.Body)
	}
}

func TestEntryPrefixNoCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	// airlock-1 is a name-prefix of airlock-10; entry scans must not leak.
	for _, g := range []string{"airlock-1", "airlock-10"} {
		if err := s.EnsureGeneration(ctx, g, "v"); err != nil {
			t.Fatal(err)
		}
	}
	resp := &airlock.StoredResponse{Status: http.StatusOK, StoredAt: time.Now()}
	if err := s.PutEntry(ctx, "airlock-10", "GET /", resp); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountEntries(ctx, "airlock-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("airlock-1 count = %d, want 0", n)
	}
	if _, err := s.GetEntry(ctx, "airlock-1", "GET /"); !errors.Is(err, airlock.ErrNotFound) {
		t.Errorf("cross-generation read = %v, want ErrNotFound", err)
	}

	if _, err := s.DeleteGenerationsExcept(ctx, "airlock-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetGeneration(ctx, "airlock-10"); !errors.Is(err, airlock.ErrGenerationMissing) {
		t.Errorf("airlock-10 should be deleted, got %v", err)
	}
}
