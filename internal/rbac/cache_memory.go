package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemoryCacheSize = 10000

type memoryEntry struct {
	value     CachedCapabilities
	expiresAt time.Time
}

// MemoryCache is a bounded in-process Cache for single instance deployments
// and tests.
type MemoryCache struct {
	entries *expirable.LRU[string, memoryEntry]

	mu      sync.Mutex
	version uint64
	epochs  map[int64]uint64
	now     func() time.Time
}

// NewMemoryCache builds a cache holding at most size entries, each kept for at
// most maxTTL.
func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	return &MemoryCache{
		entries: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		version: 1,
		epochs:  make(map[int64]uint64),
		now:     time.Now,
	}
}

// Key implements Cache.
func (c *MemoryCache) Key(ctx context.Context, revision string, userID int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("rbac:caps:%d:%s:%d:%d", c.version, revision, userID, c.epochs[userID]), nil
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, key string) (CachedCapabilities, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return CachedCapabilities{}, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return CachedCapabilities{}, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, key string, value CachedCapabilities, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, entry)
	return nil
}

// Invalidate implements Cache. Entries under the old epoch are left to age out
// of the LRU since they are unreachable.
func (c *MemoryCache) Invalidate(ctx context.Context, userID int64) error {
	c.mu.Lock()
	c.epochs[userID]++
	c.mu.Unlock()
	return nil
}

// InvalidateAll implements Cache.
func (c *MemoryCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.version++
	c.epochs = make(map[int64]uint64)
	c.mu.Unlock()
	c.entries.Purge()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
