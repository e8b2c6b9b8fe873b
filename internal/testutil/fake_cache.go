package testutil

import (
	"context"
	"sync"
	"time"

	airlock "github.com/reodash/airlock/internal"
)

// FakeCache is a plain map-backed cache.Cache. Unlike the real hot cache it
// is fully synchronous, so tests can assert on contents immediately.
type FakeCache struct {
	mu sync.Mutex
	m  map[string]*airlock.StoredResponse
}

// NewFakeCache returns an empty FakeCache.
func NewFakeCache() *FakeCache {
	return &FakeCache{m: make(map[string]*airlock.StoredResponse)}
}

// Get retrieves a cached response.
func (c *FakeCache) Get(_ context.Context, key string) (*airlock.StoredResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.m[key]
	return resp, ok
}

// Set stores a response. The TTL is ignored.
func (c *FakeCache) Set(_ context.Context, key string, resp *airlock.StoredResponse, _ time.Duration) {
	c.mu.Lock()
	c.m[key] = resp
	c.mu.Unlock()
}

// Delete removes a cached response.
func (c *FakeCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Purge removes all cached responses.
func (c *FakeCache) Purge(context.Context) {
	c.mu.Lock()
	c.m = make(map[string]*airlock.StoredResponse)
	c.mu.Unlock()
}

// Len reports the number of cached responses.
func (c *FakeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
