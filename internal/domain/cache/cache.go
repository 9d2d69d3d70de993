// Package cache defines the key/value capability used by read-side aggregates.
package cache

import "time"

// Cache stores opaque values under string keys with a per-entry TTL.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(keys ...string)
}
