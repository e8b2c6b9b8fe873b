// Package cache provides the in-memory hot layer in front of the durable
// generation store.
package cache

import (
	"context"
	"time"

	airlock "github.com/reodash/airlock/internal"
)

// Cache is the interface for the hot read layer. A miss here is not a cache
// miss for the gateway, only a trip to the durable store.
//
// Stored responses are treated as immutable once cached; callers must not
// modify a response returned by Get.
type Cache interface {
	// Get retrieves a cached response by entry key.
	Get(ctx context.Context, key string) (*airlock.StoredResponse, bool)
	// Set stores a response with the given TTL.
	Set(ctx context.Context, key string, resp *airlock.StoredResponse, ttl time.Duration)
	// Delete removes a cached response.
	Delete(ctx context.Context, key string)
	// Purge removes all cached responses. Called on generation switch so no
	// reader is served from a generation that is being replaced.
	Purge(ctx context.Context)
}
