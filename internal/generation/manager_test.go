package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/testutil"
)

func newTestManager(store *testutil.FakeStore, hot *testutil.FakeCache, origin *testutil.FakeOrigin, version string) *Manager {
	return NewManager(Config{
		Store:   store,
		Hot:     hot,
		Fetcher: origin,
		Version: version,
	})
}

func TestPopulate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	hot := testutil.NewFakeCache()
	origin := &testutil.FakeOrigin{}
	m := newTestManager(store, hot, origin, "1.0.0")

	if err := m.Populate(ctx); err != nil {
		t.Fatal("populate:", err)
	}

	if m.Active() != "airlock-1.0.0" {
		t.Errorf("active = %q, want %q", m.Active(), "airlock-1.0.0")
	}
	g, err := store.GetGeneration(ctx, "airlock-1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !g.Complete {
		t.Error("populated generation should be complete")
	}
	if g.Version != "1.0.0" {
		t.Errorf("version = %q, want %q", g.Version, "1.0.0")
	}

	n, err := store.CountEntries(ctx, "airlock-1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if n != len(airlock.PrecachePaths) {
		t.Errorf("entries = %d, want %d", n, len(airlock.PrecachePaths))
	}
	for _, path := range airlock.PrecachePaths {
		key := airlock.EntryKey(http.MethodGet, path)
		resp, err := store.GetEntry(ctx, "airlock-1.0.0", key)
		if err != nil {
			t.Fatalf("entry %q: %v", key, err)
		}
		if want := "origin body for " + path; string(resp.Body) != want {
			t.Errorf("entry %q body = %q, want %q", key, resp.Body, want)
		}
	}
	if hot.Len() != len(airlock.PrecachePaths) {
		t.Errorf("hot cache entries = %d, want %d", hot.Len(), len(airlock.PrecachePaths))
	}
}

func TestPopulateFetchFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	if err := store.EnsureGeneration(ctx, "airlock-1.0.0", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := store.PutEntry(ctx, "airlock-1.0.0", "GET /", testutil.Stored(200, "old shell")); err != nil {
		t.Fatal(err)
	}
	if err := store.CompleteGeneration(ctx, "airlock-1.0.0"); err != nil {
		t.Fatal(err)
	}

	origin := &testutil.FakeOrigin{
		SnapshotFn: func(_ context.Context, requestURI string) (*airlock.StoredResponse, error) {
			if requestURI == airlock.OfflinePath {
				return nil, airlock.ErrOriginUnreachable
			}
			return testutil.Stored(200, "new shell"), nil
		},
	}
	m := newTestManager(store, testutil.NewFakeCache(), origin, "1.1.0")

	err := m.Populate(ctx)
	if !errors.Is(err, airlock.ErrOriginUnreachable) {
		t.Fatalf("populate error = %v, want ErrOriginUnreachable", err)
	}
	if !strings.Contains(err.Error(), airlock.OfflinePath) {
		t.Errorf("error %q should name the failing path", err)
	}

	// A failed run must write nothing: no new generation, old one intact.
	if _, err := store.GetGeneration(ctx, "airlock-1.1.0"); !errors.Is(err, airlock.ErrGenerationMissing) {
		t.Errorf("failed populate created a generation: %v", err)
	}
	g, err := store.GetGeneration(ctx, "airlock-1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !g.Complete {
		t.Error("prior generation lost its complete flag")
	}
	if _, err := store.GetEntry(ctx, "airlock-1.0.0", "GET /"); err != nil {
		t.Errorf("prior generation entry lost: %v", err)
	}
}

func TestPopulateRejectsErrorStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	origin := &testutil.FakeOrigin{
		SnapshotFn: func(_ context.Context, requestURI string) (*airlock.StoredResponse, error) {
			if requestURI == "/manifest.webmanifest" {
				return testutil.Stored(http.StatusInternalServerError, "boom"), nil
			}
			return testutil.Stored(200, "ok"), nil
		},
	}
	m := newTestManager(store, nil, origin, "1.0.0")

	err := m.Populate(ctx)
	if err == nil {
		t.Fatal("populate accepted a 500 precache response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q should name the status", err)
	}
	if _, err := store.GetGeneration(ctx, "airlock-1.0.0"); !errors.Is(err, airlock.ErrGenerationMissing) {
		t.Errorf("failed populate created a generation: %v", err)
	}
}

func TestPopulateWriteFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	boom := errors.New("disk full")
	store := testutil.NewFakeStore()
	store.PutEntriesFn = func(context.Context, string, map[string]*airlock.StoredResponse) error {
		return boom
	}
	m := newTestManager(store, nil, &testutil.FakeOrigin{}, "1.0.0")

	if err := m.Populate(ctx); !errors.Is(err, boom) {
		t.Fatalf("populate error = %v, want write failure", err)
	}

	// The generation record exists but was never marked complete, so it can
	// never be adopted.
	g, err := store.GetGeneration(ctx, "airlock-1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if g.Complete {
		t.Error("generation marked complete despite failed write")
	}
}

func TestAdoptLatest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	for _, g := range []struct {
		name, version string
		complete      bool
	}{
		{"airlock-0.9.0", "0.9.0", true},
		{"airlock-1.0.0", "1.0.0", true},
		{"airlock-1.1.0", "1.1.0", false},
	} {
		if err := store.EnsureGeneration(ctx, g.name, g.version); err != nil {
			t.Fatal(err)
		}
		if g.complete {
			if err := store.CompleteGeneration(ctx, g.name); err != nil {
				t.Fatal(err)
			}
		}
	}

	hot := testutil.NewFakeCache()
	hot.Set(ctx, "GET /", testutil.Stored(200, "stale"), 0)
	m := newTestManager(store, hot, &testutil.FakeOrigin{}, "1.1.0")

	name, err := m.AdoptLatest(ctx)
	if err != nil {
		t.Fatal("adopt:", err)
	}
	if name != "airlock-1.0.0" {
		t.Errorf("adopted = %q, want newest complete %q", name, "airlock-1.0.0")
	}
	if m.Active() != "airlock-1.0.0" {
		t.Errorf("active = %q, want %q", m.Active(), "airlock-1.0.0")
	}
	if hot.Len() != 0 {
		t.Error("hot cache not purged on adoption")
	}
}

func TestAdoptLatestNothingAdoptable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	if err := store.EnsureGeneration(ctx, "airlock-1.0.0", "1.0.0"); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(store, nil, &testutil.FakeOrigin{}, "1.1.0")
	if _, err := m.AdoptLatest(ctx); !errors.Is(err, airlock.ErrGenerationMissing) {
		t.Errorf("adopt error = %v, want ErrGenerationMissing", err)
	}
	if m.Active() != "airlock-1.1.0" {
		t.Errorf("failed adopt changed active to %q", m.Active())
	}
}

func TestGetBackfillsHot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	if err := store.EnsureGeneration(ctx, "airlock-1.0.0", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := store.PutEntry(ctx, "airlock-1.0.0", "GET /app.js", testutil.Stored(200, "js")); err != nil {
		t.Fatal(err)
	}

	hot := testutil.NewFakeCache()
	m := newTestManager(store, hot, &testutil.FakeOrigin{}, "1.0.0")

	resp, err := m.Get(ctx, "GET /app.js")
	if err != nil {
		t.Fatal("get:", err)
	}
	if string(resp.Body) != "js" {
		t.Errorf("body = %q, want %q", resp.Body, "js")
	}
	if hot.Len() != 1 {
		t.Fatalf("hot entries = %d, want 1 after backfill", hot.Len())
	}

	// The durable store failing no longer matters once the hot layer holds
	// the entry.
	store.GetEntryFn = func(context.Context, string, string) (*airlock.StoredResponse, error) {
		return nil, errors.New("db gone")
	}
	resp, err = m.Get(ctx, "GET /app.js")
	if err != nil {
		t.Fatal("hot get:", err)
	}
	if string(resp.Body) != "js" {
		t.Errorf("hot body = %q, want %q", resp.Body, "js")
	}
}

func TestGetMiss(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	if err := store.EnsureGeneration(ctx, "airlock-1.0.0", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(store, testutil.NewFakeCache(), &testutil.FakeOrigin{}, "1.0.0")

	if _, err := m.Get(ctx, "GET /missing"); !errors.Is(err, airlock.ErrNotFound) {
		t.Errorf("get error = %v, want ErrNotFound", err)
	}
}

func TestPut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	if err := store.EnsureGeneration(ctx, "airlock-1.0.0", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	hot := testutil.NewFakeCache()
	m := newTestManager(store, hot, &testutil.FakeOrigin{}, "1.0.0")

	if err := m.Put(ctx, "GET /style.css", testutil.Stored(200, "css")); err != nil {
		t.Fatal("put:", err)
	}
	if _, err := store.GetEntry(ctx, "airlock-1.0.0", "GET /style.css"); err != nil {
		t.Errorf("durable entry missing: %v", err)
	}
	if _, ok := hot.Get(ctx, "GET /style.css"); !ok {
		t.Error("hot layer not refreshed on put")
	}

	boom := errors.New("write failed")
	store.PutEntryFn = func(context.Context, string, string, *airlock.StoredResponse) error {
		return boom
	}
	if err := m.Put(ctx, "GET /other.css", testutil.Stored(200, "x")); !errors.Is(err, boom) {
		t.Errorf("put error = %v, want store failure", err)
	}
	if _, ok := hot.Get(ctx, "GET /other.css"); ok {
		t.Error("hot layer updated despite failed durable write")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	if err := store.EnsureGeneration(ctx, "airlock-1.0.0", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := store.CompleteGeneration(ctx, "airlock-1.0.0"); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		key := fmt.Sprintf("GET /asset-%d", i)
		if err := store.PutEntry(ctx, "airlock-1.0.0", key, testutil.Stored(200, "x")); err != nil {
			t.Fatal(err)
		}
	}

	m := newTestManager(store, nil, &testutil.FakeOrigin{}, "1.0.0")
	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatal("stats:", err)
	}
	want := airlock.GenerationStats{Generation: "airlock-1.0.0", Complete: true, Entries: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestPruneOthers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testutil.NewFakeStore()
	for _, name := range []string{"airlock-0.9.0", "airlock-1.0.0", "airlock-1.1.0"} {
		if err := store.EnsureGeneration(ctx, name, "v"); err != nil {
			t.Fatal(err)
		}
	}

	m := newTestManager(store, nil, &testutil.FakeOrigin{}, "1.1.0")
	if err := m.PruneOthers(ctx); err != nil {
		t.Fatal("prune:", err)
	}

	gens, err := store.ListGenerations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 1 || gens[0].Name != "airlock-1.1.0" {
		t.Errorf("generations after prune = %v, want only airlock-1.1.0", gens)
	}
}
