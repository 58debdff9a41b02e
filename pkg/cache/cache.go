package cache

import "time"

// Cache stores values read from slow backends, such as immutable contract
// state, for a bounded time.
type Cache interface {
	// Get returns (value, true) if found.
	Get(key string) (any, bool)

	// Set stores a value with a TTL. A false return means the write was dropped.
	Set(key string, value any, ttl time.Duration) bool

	Delete(key string)

	Clear()

	// Close releases resources. The cache must not be used afterwards.
	Close()
}
