package mirrorm

import (
	"context"
	"fmt"
	"time"
)

// Cache is the interface for caching primary-key lookups.
// Implementations live in the cache package (in-memory and Redis);
// users may plug any other store.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies one cached row.
type CacheKey struct {
	Table string
	ID    any
}

// Prefix returns the key prefix shared by every row of the table.
func (k CacheKey) Prefix() string {
	return "mirrorm:" + k.Table + ":"
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s%v", k.Prefix(), k.ID)
}
