// Package cache provides a short-TTL key/value store used for processing
// guards and metadata memoization. The cache is non-authoritative: losing an
// entry causes redundant work, never incorrect behavior.
package cache

import (
	"context"
	"time"
)

// Cache is the interface shared by the in-memory and Redis implementations.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent. Returns true if the value
	// was stored, false if the key was already held.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	Close() error
}
