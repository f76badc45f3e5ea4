package cache

import (
	"context"
	"sync"

	"github.com/gridsync/gridsync/pkg/types"
)

// MemoryCache is an in-process tier, useful as a stand-in shared tier
// in tests and single-process deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]types.CacheEntry
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]types.CacheEntry),
	}
}

func (c *MemoryCache) Read(_ context.Context, viewID string) (*types.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[viewID]
	if !ok {
		return nil, nil
	}
	cp := entry
	cp.Payload = append([]byte(nil), entry.Payload...)
	return &cp, nil
}

func (c *MemoryCache) Write(_ context.Context, entry *types.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *entry
	cp.Payload = append([]byte(nil), entry.Payload...)
	c.entries[entry.ViewID] = cp
	return nil
}

// Close is a no-op for the memory tier
func (c *MemoryCache) Close() error {
	return nil
}
