// Package testutil provides configurable test fakes for gateway interfaces.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	airlock "github.com/reodash/airlock/internal"
)

// FakeStore is an in-memory storage.GenerationStore for testing. Every
// method delegates to its Fn field when set, so tests can inject failures
// without standing up a real backend. Responses are cloned on the way in
// and out, matching how the real backends serialize.
type FakeStore struct {
	mu          sync.Mutex
	generations map[string]*airlock.Generation
	entries     map[string]map[string]*airlock.StoredResponse
	order       map[string]int
	seq         int

	EnsureGenerationFn        func(ctx context.Context, name, version string) error
	CompleteGenerationFn      func(ctx context.Context, name string) error
	GetGenerationFn           func(ctx context.Context, name string) (*airlock.Generation, error)
	ListGenerationsFn         func(ctx context.Context) ([]*airlock.Generation, error)
	DeleteGenerationsExceptFn func(ctx context.Context, keep string) (int, error)
	GetEntryFn                func(ctx context.Context, generation, key string) (*airlock.StoredResponse, error)
	PutEntryFn                func(ctx context.Context, generation, key string, resp *airlock.StoredResponse) error
	PutEntriesFn              func(ctx context.Context, generation string, entries map[string]*airlock.StoredResponse) error
	CountEntriesFn            func(ctx context.Context, generation string) (int, error)
	PingFn                    func(ctx context.Context) error
}

// NewFakeStore returns a FakeStore with empty collections.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		generations: make(map[string]*airlock.Generation),
		entries:     make(map[string]map[string]*airlock.StoredResponse),
		order:       make(map[string]int),
	}
}

// EnsureGeneration delegates to EnsureGenerationFn or creates the record.
func (s *FakeStore) EnsureGeneration(ctx context.Context, name, version string) error {
	if s.EnsureGenerationFn != nil {
		return s.EnsureGenerationFn(ctx, name, version)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[name]; ok {
		return nil
	}
	s.generations[name] = &airlock.Generation{
		Name:      name,
		Version:   version,
		CreatedAt: time.Now().UTC(),
	}
	s.entries[name] = make(map[string]*airlock.StoredResponse)
	s.order[name] = s.seq
	s.seq++
	return nil
}

// CompleteGeneration delegates to CompleteGenerationFn or flips the flag.
func (s *FakeStore) CompleteGeneration(ctx context.Context, name string) error {
	if s.CompleteGenerationFn != nil {
		return s.CompleteGenerationFn(ctx, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generations[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, airlock.ErrGenerationMissing)
	}
	g.Complete = true
	return nil
}

// GetGeneration delegates to GetGenerationFn or reads the record.
func (s *FakeStore) GetGeneration(ctx context.Context, name string) (*airlock.Generation, error) {
	if s.GetGenerationFn != nil {
		return s.GetGenerationFn(ctx, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generations[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, airlock.ErrGenerationMissing)
	}
	cp := *g
	return &cp, nil
}

// ListGenerations delegates to ListGenerationsFn or lists in creation order.
func (s *FakeStore) ListGenerations(ctx context.Context) ([]*airlock.Generation, error) {
	if s.ListGenerationsFn != nil {
		return s.ListGenerationsFn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*airlock.Generation, 0, len(s.generations))
	for _, g := range s.generations {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.order[out[i].Name] != s.order[out[j].Name] {
			return s.order[out[i].Name] < s.order[out[j].Name]
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DeleteGenerationsExcept delegates to DeleteGenerationsExceptFn or removes
// every generation other than keep.
func (s *FakeStore) DeleteGenerationsExcept(ctx context.Context, keep string) (int, error) {
	if s.DeleteGenerationsExceptFn != nil {
		return s.DeleteGenerationsExceptFn(ctx, keep)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for name := range s.generations {
		if name == keep {
			continue
		}
		delete(s.generations, name)
		delete(s.entries, name)
		delete(s.order, name)
		removed++
	}
	return removed, nil
}

// GetEntry delegates to GetEntryFn or reads a clone of the stored response.
func (s *FakeStore) GetEntry(ctx context.Context, generation, key string) (*airlock.StoredResponse, error) {
	if s.GetEntryFn != nil {
		return s.GetEntryFn(ctx, generation, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.entries[generation][key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, airlock.ErrNotFound)
	}
	return resp.Clone(), nil
}

// PutEntry delegates to PutEntryFn or stores a clone of the response.
func (s *FakeStore) PutEntry(ctx context.Context, generation, key string, resp *airlock.StoredResponse) error {
	if s.PutEntryFn != nil {
		return s.PutEntryFn(ctx, generation, key, resp)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[generation]; !ok {
		return fmt.Errorf("%s: %w", generation, airlock.ErrGenerationMissing)
	}
	s.entries[generation][key] = resp.Clone()
	return nil
}

// PutEntries delegates to PutEntriesFn or stores all responses.
func (s *FakeStore) PutEntries(ctx context.Context, generation string, entries map[string]*airlock.StoredResponse) error {
	if s.PutEntriesFn != nil {
		return s.PutEntriesFn(ctx, generation, entries)
	}
	for key, resp := range entries {
		if err := s.PutEntry(ctx, generation, key, resp); err != nil {
			return err
		}
	}
	return nil
}

// CountEntries delegates to CountEntriesFn or counts stored responses.
func (s *FakeStore) CountEntries(ctx context.Context, generation string) (int, error) {
	if s.CountEntriesFn != nil {
		return s.CountEntriesFn(ctx, generation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[generation]), nil
}

// Ping delegates to PingFn or reports healthy.
func (s *FakeStore) Ping(ctx context.Context) error {
	if s.PingFn != nil {
		return s.PingFn(ctx)
	}
	return nil
}

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }
