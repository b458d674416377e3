// Package cache holds the latest Result per (server, resolver) pair.
// The scheduler writes to it and the exporter reads full snapshots from it;
// Results are immutable, so entries are swapped in as a unit.
package cache

import (
	"sync"

	"github.com/Guliveer/vitalis/data-collector/internal/models"
)

// Snapshot maps server id -> resolver id -> latest Result.
type Snapshot map[string]map[string]*models.Result

// Cache is a concurrency-safe two-level result store.
type Cache struct {
	mu   sync.RWMutex
	data map[string]map[string]*models.Result
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		data: make(map[string]map[string]*models.Result),
	}
}

// Get returns the cached Result for the key, or nil if none was ever stored.
func (c *Cache) Get(serverID, resolverID string) *models.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.data[serverID][resolverID]
}

// Update replaces the entry for the key. A nil result is ignored.
func (c *Cache) Update(serverID, resolverID string, result *models.Result) {
	if result == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resolvers, ok := c.data[serverID]
	if !ok {
		resolvers = make(map[string]*models.Result)
		c.data[serverID] = resolvers
	}
	resolvers[resolverID] = result
}

// Snapshot returns a point-in-time copy of the cache. The maps are new; the
// Results are shared, which is safe because they are immutable.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(Snapshot, len(c.data))
	for serverID, resolvers := range c.data {
		entries := make(map[string]*models.Result, len(resolvers))
		for resolverID, result := range resolvers {
			entries[resolverID] = result
		}
		snap[serverID] = entries
	}
	return snap
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, resolvers := range c.data {
		n += len(resolvers)
	}
	return n
}
