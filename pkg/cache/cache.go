// Package cache provides build-fingerprint caching so unchanged devices
// can be skipped on rebuild. Backends are pluggable: a file-based cache
// for normal CLI usage and a null cache when caching is disabled.
package cache

import (
	"context"
	"time"
)

// Cache is the backend interface.
type Cache interface {
	// Get retrieves a value. The second return reports a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with an optional TTL (0 means no expiry).
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
