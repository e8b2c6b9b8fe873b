// Package storage defines persistence interfaces for the gateway.
package storage

import (
	"context"

	airlock "github.com/reodash/airlock/internal"
)

// GenerationStore manages versioned cache generations and the responses
// stored inside them. Implementations must be safe for concurrent use.
//
// Generation lookups report airlock.ErrGenerationMissing for unknown names;
// entry lookups report airlock.ErrNotFound for unknown keys.
type GenerationStore interface {
	// EnsureGeneration creates the generation record if absent. An existing
	// generation keeps its entries and complete flag.
	EnsureGeneration(ctx context.Context, name, version string) error

	// CompleteGeneration marks a generation as fully populated. Only
	// complete generations may be promoted to serve traffic.
	CompleteGeneration(ctx context.Context, name string) error

	// GetGeneration returns the metadata record for one generation.
	GetGeneration(ctx context.Context, name string) (*airlock.Generation, error)

	// ListGenerations returns all generations ordered by creation time,
	// oldest first, ties broken by name.
	ListGenerations(ctx context.Context) ([]*airlock.Generation, error)

	// DeleteGenerationsExcept removes every generation other than keep,
	// entries included, and reports how many generations were removed.
	DeleteGenerationsExcept(ctx context.Context, keep string) (int, error)

	// GetEntry returns the response stored under key.
	GetEntry(ctx context.Context, generation, key string) (*airlock.StoredResponse, error)

	// PutEntry stores or replaces the response under key. The generation
	// must already exist.
	PutEntry(ctx context.Context, generation, key string, resp *airlock.StoredResponse) error

	// PutEntries stores a batch of responses as a single atomic write.
	PutEntries(ctx context.Context, generation string, entries map[string]*airlock.StoredResponse) error

	// CountEntries returns the number of responses stored in the generation.
	CountEntries(ctx context.Context, generation string) (int, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
