// Package generation implements the cache generation manager: population of
// the precache set, promotion and pruning of generations, and the read/write
// path across the hot and durable layers.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/cache"
	"github.com/reodash/airlock/internal/storage"
)

// populateConcurrency bounds parallel precache fetches so population never
// floods an origin that just came up.
const populateConcurrency = 4

// Fetcher fetches a buffered snapshot of an origin path.
type Fetcher interface {
	Snapshot(ctx context.Context, requestURI string) (*airlock.StoredResponse, error)
}

// Config assembles a Manager's dependencies.
type Config struct {
	Store   storage.GenerationStore
	Hot     cache.Cache // nil disables the hot layer
	Fetcher Fetcher
	Version string
	HotTTL  time.Duration
}

// Manager owns the serving generation. One process serves from exactly one
// generation at a time; the manager decides which and mediates every read
// and write against it.
type Manager struct {
	store   storage.GenerationStore
	hot     cache.Cache
	fetch   Fetcher
	version string
	hotTTL  time.Duration

	// active is written only during installation/adoption, before traffic
	// is admitted; the lifecycle controller's state flag orders it ahead of
	// request reads.
	active string
}

// NewManager creates a Manager targeting the generation for Version.
func NewManager(cfg Config) *Manager {
	ttl := cfg.HotTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		store:   cfg.Store,
		hot:     cfg.Hot,
		fetch:   cfg.Fetcher,
		version: cfg.Version,
		hotTTL:  ttl,
		active:  airlock.GenerationName(cfg.Version),
	}
}

// Active returns the serving generation name.
func (m *Manager) Active() string { return m.active }

// Populate fetches the full precache set and stores it in the serving
// generation. Population is all-or-nothing: every path must come back with a
// success status before anything is written, so a failure leaves whatever
// was on disk, including a prior release's complete generation, untouched.
func (m *Manager) Populate(ctx context.Context) error {
	snaps := make(map[string]*airlock.StoredResponse, len(airlock.PrecachePaths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(populateConcurrency)
	for _, path := range airlock.PrecachePaths {
		g.Go(func() error {
			resp, err := m.fetch.Snapshot(gctx, path)
			if err != nil {
				return fmt.Errorf("precache %s: %w", path, err)
			}
			if resp.Status < 200 || resp.Status >= 300 {
				return fmt.Errorf("precache %s: origin returned %d", path, resp.Status)
			}
			mu.Lock()
			snaps[airlock.EntryKey(http.MethodGet, path)] = resp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := m.store.EnsureGeneration(ctx, m.active, m.version); err != nil {
		return fmt.Errorf("ensure generation: %w", err)
	}
	if err := m.store.PutEntries(ctx, m.active, snaps); err != nil {
		return fmt.Errorf("write precache: %w", err)
	}
	if err := m.store.CompleteGeneration(ctx, m.active); err != nil {
		return fmt.Errorf("complete generation: %w", err)
	}

	m.warmHot(ctx, snaps)
	slog.Info("generation populated", "generation", m.active, "entries", len(snaps))
	return nil
}

// PruneOthers deletes every generation except the serving one.
func (m *Manager) PruneOthers(ctx context.Context) error {
	n, err := m.store.DeleteGenerationsExcept(ctx, m.active)
	if err != nil {
		return fmt.Errorf("prune generations: %w", err)
	}
	if n > 0 {
		slog.Info("pruned stale generations", "removed", n, "kept", m.active)
	}
	return nil
}

// AdoptLatest switches the manager to the newest complete generation on
// disk. Used when population fails but a prior release's cache can still
// serve. Returns airlock.ErrGenerationMissing when nothing is adoptable.
func (m *Manager) AdoptLatest(ctx context.Context) (string, error) {
	gens, err := m.store.ListGenerations(ctx)
	if err != nil {
		return "", fmt.Errorf("list generations: %w", err)
	}

	// The list is oldest-first, so the last complete one wins.
	var latest *airlock.Generation
	for _, g := range gens {
		if g.Complete {
			latest = g
		}
	}
	if latest == nil {
		return "", airlock.ErrGenerationMissing
	}

	m.active = latest.Name
	if m.hot != nil {
		m.hot.Purge(ctx)
	}
	return latest.Name, nil
}

// Get returns the response stored under key in the serving generation,
// consulting the hot layer first and backfilling it on a durable hit.
// The returned response is shared; callers must not modify it.
func (m *Manager) Get(ctx context.Context, key string) (*airlock.StoredResponse, error) {
	if m.hot != nil {
		if resp, ok := m.hot.Get(ctx, key); ok {
			return resp, nil
		}
	}
	resp, err := m.store.GetEntry(ctx, m.active, key)
	if err != nil {
		return nil, err
	}
	if m.hot != nil {
		m.hot.Set(ctx, key, resp, m.hotTTL)
	}
	return resp, nil
}

// Put stores a response under key in the serving generation and refreshes
// the hot layer. A failed put never affects a response already handed to a
// client; callers log and move on.
func (m *Manager) Put(ctx context.Context, key string, resp *airlock.StoredResponse) error {
	if err := m.store.PutEntry(ctx, m.active, key, resp); err != nil {
		return err
	}
	if m.hot != nil {
		m.hot.Set(ctx, key, resp, m.hotTTL)
	}
	return nil
}

// Stats reports the serving generation and its entry count.
func (m *Manager) Stats(ctx context.Context) (airlock.GenerationStats, error) {
	g, err := m.store.GetGeneration(ctx, m.active)
	if err != nil {
		return airlock.GenerationStats{Generation: m.active}, err
	}
	n, err := m.store.CountEntries(ctx, m.active)
	if err != nil {
		return airlock.GenerationStats{Generation: m.active}, err
	}
	return airlock.GenerationStats{
		Generation: m.active,
		Complete:   g.Complete,
		Entries:    n,
	}, nil
}

func (m *Manager) warmHot(ctx context.Context, snaps map[string]*airlock.StoredResponse) {
	if m.hot == nil {
		return
	}
	for key, resp := range snaps {
		m.hot.Set(ctx, key, resp, m.hotTTL)
	}
}
