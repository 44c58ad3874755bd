package rbac

import (
	"context"
	"time"
)

// CachedCapabilities is a capability map as stored in a Cache.
type CachedCapabilities struct {
	UserID       int64           `json:"user_id"`
	Capabilities map[string]bool `json:"capabilities"`
	ResolvedAt   time.Time       `json:"resolved_at"`
}

// Cache stores resolved capability maps. The cache is advisory: callers must
// behave correctly when every call misses or fails.
//
// Key embeds the current catalog version, the revision of the catalog the
// caller resolves against, and the user's epoch. Invalidate bumps the user's
// epoch and InvalidateAll bumps the catalog version, so an entry written under
// a key obtained before an invalidation is never read again. A process whose
// registry has not reloaded yet writes under its own revision, which reloaded
// processes never read.
type Cache interface {
	Key(ctx context.Context, revision string, userID int64) (string, error)
	Get(ctx context.Context, key string) (CachedCapabilities, bool, error)
	Set(ctx context.Context, key string, value CachedCapabilities, ttl time.Duration) error
	Invalidate(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}
