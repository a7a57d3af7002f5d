package osint

import (
	"context"
	"sync"
	"time"

	"soc-triage/internal/schema"
)

// Cache stores reputation findings keyed by indicator value. Entries
// expire after the TTL given at Set. Implementations must be safe for
// concurrent use by multiple pipeline runs.
type Cache interface {
	Get(ctx context.Context, value string) (schema.Finding, bool)
	Set(ctx context.Context, value string, finding schema.Finding, ttl time.Duration)
}

type memoryEntry struct {
	finding   schema.Finding
	expiresAt time.Time
}

// MemoryCache is a mutex-guarded in-process cache. Expired entries are
// evicted lazily on the next access.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached finding for a value if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, value string) (schema.Finding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[value]
	if !ok {
		return schema.Finding{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, value)
		return schema.Finding{}, false
	}
	return entry.finding, true
}

// Set stores a finding for a value with the given TTL.
func (c *MemoryCache) Set(_ context.Context, value string, finding schema.Finding, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[value] = memoryEntry{
		finding:   finding,
		expiresAt: c.now().Add(ttl),
	}
}

// Len returns the number of entries currently in the cache, counting
// expired entries not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
